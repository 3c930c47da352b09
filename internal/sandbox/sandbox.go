// Package sandbox runs untrusted code blocks extracted from LLM output in
// an isolated environment: a Docker container when available, falling back
// to a bare subprocess otherwise. Neither backend is a hard security
// boundary by itself — the container backend is the one that actually
// isolates the filesystem and network; the subprocess backend only bounds
// wall-clock time.
package sandbox

import (
	"context"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/shushantbk16/inference-verification-gateway/internal/config"
	"github.com/shushantbk16/inference-verification-gateway/internal/model"
)

// Backend executes one code block under the given limits and returns its
// outcome. Implementations never return a non-nil error for a failing
// program — a failing program is a successful ExecutionResult with
// Success=false. A non-nil error means the backend itself could not run
// the request at all (e.g. docker daemon unreachable).
type Backend interface {
	Execute(ctx context.Context, block model.CodeBlock, cfg model.ExecutionConfig) (model.ExecutionResult, error)
	Name() string
}

// Executor picks a backend and applies the language allow-list and
// unsupported-language short circuit shared by every backend.
type Executor struct {
	backend Backend
	logger  *zap.Logger
}

// New selects the container backend when the docker CLI is reachable, and
// falls back to the subprocess backend otherwise. The choice is made once
// at startup instead of probing per request.
func New(cfg config.SandboxConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}

	var backend Backend
	if dockerAvailable(cfg.DockerHost) {
		backend = NewContainerBackend(cfg, logger)
		logger.Info("sandbox backend selected", zap.String("backend", backend.Name()))
	} else {
		backend = NewSubprocessBackend(logger)
		logger.Warn("docker unavailable, falling back to subprocess sandbox",
			zap.String("backend", backend.Name()))
	}

	return &Executor{backend: backend, logger: logger}
}

// NewWithBackend is used by tests and callers that want to force a specific
// backend instead of the docker-availability probe in New.
func NewWithBackend(backend Backend, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{backend: backend, logger: logger}
}

// BackendName reports which backend this executor is running, for health
// and metrics reporting.
func (e *Executor) BackendName() string { return e.backend.Name() }

// Execute runs block under the configured backend. Unsupported languages
// never reach the backend — they're rejected here with the same
// ExecutionResult shape a real execution would return, which keeps backends simple.
func (e *Executor) Execute(ctx context.Context, block model.CodeBlock, cfg model.ExecutionConfig) model.ExecutionResult {
	if !model.ExecutableLanguages[block.Language] {
		return model.ExecutionResult{
			Success:  false,
			ExitCode: -1,
			Stderr:   "Unsupported language: " + string(block.Language),
		}
	}

	start := time.Now()
	result, err := e.backend.Execute(ctx, block, cfg)
	if err != nil {
		e.logger.Error("sandbox execution failed",
			zap.String("backend", e.backend.Name()),
			zap.String("language", string(block.Language)),
			zap.Error(err),
		)
		return model.ExecutionResult{
			Success:        false,
			ExitCode:       -1,
			Error:          "Execution failed",
			ExecutionTimeS: time.Since(start).Seconds(),
		}
	}
	return result
}

// dockerAvailable reports whether a docker daemon answers `docker info`
// within a short grace period. host, when non-empty, is passed through
// DOCKER_HOST so a remote daemon can be targeted.
func dockerAvailable(host string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "info")
	if host != "" {
		cmd.Env = append(cmd.Environ(), "DOCKER_HOST="+host)
	}
	return cmd.Run() == nil
}
