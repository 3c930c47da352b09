package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/shushantbk16/inference-verification-gateway/internal/model"
)

var interpreters = map[model.Language][]string{
	model.LangPython:     {"python3"},
	model.LangJavaScript: {"node"},
	model.LangBash:       {"bash"},
}

// SubprocessBackend runs code as a plain child process. It is the fallback
// used when no Docker daemon is reachable. It enforces a wall-clock
// timeout but no memory or CPU caps — it is explicitly not a security
// boundary, only a best-effort way to keep the gateway working in
// environments without Docker.
type SubprocessBackend struct {
	logger *zap.Logger
}

// NewSubprocessBackend creates a subprocess backend.
func NewSubprocessBackend(logger *zap.Logger) *SubprocessBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubprocessBackend{logger: logger}
}

func (b *SubprocessBackend) Name() string { return "subprocess" }

func (b *SubprocessBackend) Execute(ctx context.Context, block model.CodeBlock, cfg model.ExecutionConfig) (model.ExecutionResult, error) {
	interpreter, ok := interpreters[block.Language]
	if !ok {
		return model.ExecutionResult{}, errors.New("sandbox: unsupported language " + string(block.Language))
	}

	tmpFile, err := os.CreateTemp("", "sandbox-*"+fileExtensions[block.Language])
	if err != nil {
		return model.ExecutionResult{}, err
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(block.Code); err != nil {
		tmpFile.Close()
		return model.ExecutionResult{}, err
	}
	tmpFile.Close()

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, interpreter[1:]...), tmpFile.Name())
	cmd := exec.CommandContext(runCtx, interpreter[0], args...)
	cmd.Dir = os.TempDir()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start).Seconds()

	if runCtx.Err() == context.DeadlineExceeded {
		return model.ExecutionResult{
			Success:        false,
			ExitCode:       -1,
			Stdout:         stdout.String(),
			Stderr:         stderr.String(),
			ExecutionTimeS: elapsed,
			Error:          "Execution failed",
		}, nil
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return model.ExecutionResult{}, runErr
		}
	}

	return model.ExecutionResult{
		Success:        exitCode == 0,
		ExitCode:       exitCode,
		Stdout:         stdout.String(),
		Stderr:         stderr.String(),
		ExecutionTimeS: elapsed,
	}, nil
}
