package codeextract

import (
	"testing"

	"github.com/shushantbk16/inference-verification-gateway/internal/model"
)

func TestExtract_LanguageNormalization(t *testing.T) {
	cases := []struct {
		name string
		tag  string
		want model.Language
	}{
		{"python short", "py", model.LangPython},
		{"python long", "python", model.LangPython},
		{"javascript short", "js", model.LangJavaScript},
		{"javascript node", "node", model.LangJavaScript},
		{"typescript", "ts", model.LangTypeScript},
		{"bash sh", "sh", model.LangBash},
		{"bash shell", "shell", model.LangBash},
		{"no tag", "", model.LangUnknown},
		{"unrecognized", "rust", model.LangUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text := "```" + tc.tag + "\nprint(1)\n```"
			blocks := Extract(text)
			if len(blocks) != 1 {
				t.Fatalf("expected 1 block, got %d", len(blocks))
			}
			if blocks[0].Language != tc.want {
				t.Errorf("expected %q, got %q", tc.want, blocks[0].Language)
			}
		})
	}
}

func TestExtract_MultipleBlocksAndLineNumbers(t *testing.T) {
	text := "intro text\n```python\nx = 1\ny = 2\n```\nmiddle\n```bash\necho hi\n```\n"
	blocks := Extract(text)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].LineStart != 2 {
		t.Errorf("expected first block to start at line 2, got %d", blocks[0].LineStart)
	}
	if blocks[0].LineEnd != blocks[0].LineStart+1 {
		t.Errorf("expected a 2-line block, got start=%d end=%d", blocks[0].LineStart, blocks[0].LineEnd)
	}
	if blocks[1].Language != model.LangBash {
		t.Errorf("expected second block bash, got %q", blocks[1].Language)
	}
}

func TestExtract_NoBlocks(t *testing.T) {
	if blocks := Extract("just plain text, no fences here"); blocks != nil {
		t.Errorf("expected nil, got %v", blocks)
	}
}

func TestFilterExecutable(t *testing.T) {
	blocks := []model.CodeBlock{
		{Language: model.LangPython},
		{Language: model.LangTypeScript},
		{Language: model.LangBash},
		{Language: model.LangUnknown},
		{Language: model.LangJavaScript},
	}
	filtered := FilterExecutable(blocks)
	if len(filtered) != 3 {
		t.Fatalf("expected 3 executable blocks, got %d", len(filtered))
	}
	for _, b := range filtered {
		if !model.ExecutableLanguages[b.Language] {
			t.Errorf("unexpected non-executable language in filtered set: %q", b.Language)
		}
	}
}

func TestValidateSyntax(t *testing.T) {
	cases := []struct {
		name    string
		block   model.CodeBlock
		wantOK  bool
	}{
		{"valid python", model.CodeBlock{Language: model.LangPython, Code: "print('hi')"}, true},
		{"unbalanced brackets", model.CodeBlock{Language: model.LangPython, Code: "print('hi'"}, false},
		{"unterminated string", model.CodeBlock{Language: model.LangPython, Code: "x = 'unterminated"}, false},
		{"empty bash", model.CodeBlock{Language: model.LangBash, Code: "   "}, false},
		{"nonempty bash", model.CodeBlock{Language: model.LangBash, Code: "echo hi"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := ValidateSyntax(tc.block)
			if ok != tc.wantOK {
				t.Errorf("expected ok=%v, got ok=%v (reason=%q)", tc.wantOK, ok, reason)
			}
		})
	}
}

func TestExtract_RoundTripIdempotent(t *testing.T) {
	original := []model.CodeBlock{
		{Language: model.LangPython, Code: "print(1)"},
		{Language: model.LangJavaScript, Code: "console.log(2)"},
	}

	var rendered string
	for _, b := range original {
		rendered += "```" + string(b.Language) + "\n" + b.Code + "\n```\n"
	}

	reExtracted := Extract(rendered)
	if len(reExtracted) != len(original) {
		t.Fatalf("expected %d blocks, got %d", len(original), len(reExtracted))
	}
	for i := range original {
		if reExtracted[i].Language != original[i].Language || reExtracted[i].Code != original[i].Code {
			t.Errorf("block %d: expected %+v, got %+v", i, original[i], reExtracted[i])
		}
	}
}
