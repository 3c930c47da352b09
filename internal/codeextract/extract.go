// Package codeextract pulls fenced code blocks out of LLM text output and
// normalizes their declared language to the set the sandbox understands.
package codeextract

import (
	"regexp"
	"strings"

	"github.com/shushantbk16/inference-verification-gateway/internal/model"
)

// fencePattern matches ```lang\ncode``` blocks, including an absent
// language tag. (?s) makes "." match newlines so multi-line bodies work.
var fencePattern = regexp.MustCompile("(?s)```(\\w+)?\\n(.*?)```")

// languageAliases maps a fence tag to its normalized model.Language. Tags
// not present here normalize to LangUnknown.
var languageAliases = map[string]model.Language{
	"py":         model.LangPython,
	"python":     model.LangPython,
	"js":         model.LangJavaScript,
	"node":       model.LangJavaScript,
	"javascript": model.LangJavaScript,
	"ts":         model.LangTypeScript,
	"typescript": model.LangTypeScript,
	"sh":         model.LangBash,
	"shell":      model.LangBash,
	"bash":       model.LangBash,
}

// Extract finds every fenced code block in text and returns them in
// document order with normalized language tags and 1-based line ranges.
func Extract(text string) []model.CodeBlock {
	matches := fencePattern.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return nil
	}

	blocks := make([]model.CodeBlock, 0, len(matches))
	for _, m := range matches {
		langStart, langEnd := m[2], m[3]
		codeStart, codeEnd := m[4], m[5]

		lang := ""
		if langStart >= 0 {
			lang = text[langStart:langEnd]
		}
		code := strings.TrimSpace(text[codeStart:codeEnd])

		lineStart := strings.Count(text[:m[0]], "\n") + 1
		lineEnd := lineStart + strings.Count(code, "\n")

		blocks = append(blocks, model.CodeBlock{
			Language:  normalizeLanguage(lang),
			Code:      code,
			LineStart: lineStart,
			LineEnd:   lineEnd,
		})
	}
	return blocks
}

func normalizeLanguage(tag string) model.Language {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return model.LangUnknown
	}
	if lang, ok := languageAliases[tag]; ok {
		return lang
	}
	return model.LangUnknown
}

// FilterExecutable keeps only the blocks the sandbox can actually run,
// preserving their original relative order.
func FilterExecutable(blocks []model.CodeBlock) []model.CodeBlock {
	filtered := make([]model.CodeBlock, 0, len(blocks))
	for _, b := range blocks {
		if model.ExecutableLanguages[b.Language] {
			filtered = append(filtered, b)
		}
	}
	return filtered
}

// ValidateSyntax performs a best-effort offline check before a block reaches
// the sandbox. There is no Python compiler available at this layer, so
// Python blocks get a bracket/quote balance scan instead of a real parse;
// non-Python blocks are only rejected when empty, matching the reference
// extractor's tolerance for languages it can't validate offline.
func ValidateSyntax(block model.CodeBlock) (bool, string) {
	if strings.TrimSpace(block.Code) == "" {
		return false, "empty code block"
	}
	if block.Language != model.LangPython {
		return true, ""
	}
	if ok, reason := balancedDelimiters(block.Code); !ok {
		return false, "python syntax error: " + reason
	}
	return true, ""
}

// balancedDelimiters walks the source once tracking bracket depth and
// string-quote state so an unterminated string or a stray closing bracket
// is caught without a real Python grammar.
func balancedDelimiters(code string) (bool, string) {
	var depth int
	var inString rune
	escaped := false

	for _, r := range code {
		if inString != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == inString:
				inString = 0
			}
			continue
		}

		switch r {
		case '\'', '"':
			inString = r
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth < 0 {
				return false, "unbalanced brackets"
			}
		}
	}

	if inString != 0 {
		return false, "unterminated string literal"
	}
	if depth != 0 {
		return false, "unbalanced brackets"
	}
	return true, ""
}
