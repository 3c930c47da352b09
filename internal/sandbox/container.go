package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/shushantbk16/inference-verification-gateway/internal/config"
	"github.com/shushantbk16/inference-verification-gateway/internal/model"
)

// images maps a language to the image that runs it. Bash shares the
// Python image since it only needs a POSIX shell, which the Python image
// already ships.
var images = map[model.Language]string{
	model.LangPython:     "inference-gateway-python-sandbox",
	model.LangJavaScript: "inference-gateway-js-sandbox",
	model.LangBash:       "inference-gateway-python-sandbox",
}

var fileExtensions = map[model.Language]string{
	model.LangPython:     ".py",
	model.LangJavaScript: ".js",
	model.LangBash:       ".sh",
}

var runCommands = map[model.Language][]string{
	model.LangPython:     {"python3", "/workspace/code"},
	model.LangJavaScript: {"node", "/workspace/code"},
	model.LangBash:       {"sh", "/workspace/code"},
}

// ContainerBackend runs code in a detached, resource-capped Docker
// container via the docker CLI. No Docker Go SDK exists in the dependency
// set this gateway draws from, so every operation shells out with
// os/exec — the one place in this codebase that talks to an external
// binary instead of a library.
type ContainerBackend struct {
	cfg    config.SandboxConfig
	logger *zap.Logger
}

// NewContainerBackend creates a container backend bound to cfg.
func NewContainerBackend(cfg config.SandboxConfig, logger *zap.Logger) *ContainerBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContainerBackend{cfg: cfg, logger: logger}
}

func (b *ContainerBackend) Name() string { return "docker" }

func (b *ContainerBackend) Execute(ctx context.Context, block model.CodeBlock, cfg model.ExecutionConfig) (model.ExecutionResult, error) {
	image, ok := images[block.Language]
	if !ok {
		return model.ExecutionResult{}, fmt.Errorf("sandbox: no image configured for language %q", block.Language)
	}

	start := time.Now()

	tmpFile, err := os.CreateTemp("", "sandbox-*"+fileExtensions[block.Language])
	if err != nil {
		return model.ExecutionResult{}, fmt.Errorf("sandbox: create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(block.Code); err != nil {
		tmpFile.Close()
		return model.ExecutionResult{}, fmt.Errorf("sandbox: write temp file: %w", err)
	}
	tmpFile.Close()

	containerID, err := b.runDetached(ctx, image, tmpFile.Name(), block.Language, cfg)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	if b.cfg.CleanupContainers {
		defer b.remove(containerID)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(b.cfg.TimeoutSeconds) * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exitCode, waitErr := b.wait(waitCtx, containerID)
	elapsed := time.Since(start).Seconds()

	if waitErr != nil {
		b.kill(containerID)
		return model.ExecutionResult{
			Success:        false,
			ExitCode:       -1,
			ExecutionTimeS: elapsed,
			Error:          "Execution failed",
		}, nil
	}

	stdout, stderr := b.logs(containerID)

	return model.ExecutionResult{
		Success:        exitCode == 0,
		ExitCode:       exitCode,
		Stdout:         stdout,
		Stderr:         stderr,
		ExecutionTimeS: elapsed,
	}, nil
}

func (b *ContainerBackend) runDetached(ctx context.Context, image, hostFile string, lang model.Language, cfg model.ExecutionConfig) (string, error) {
	memLimit := cfg.MemoryLimit
	if memLimit == "" {
		memLimit = b.cfg.MemoryLimit
	}
	cpuFraction := cfg.CPUFraction
	if cpuFraction <= 0 {
		cpuFraction = b.cfg.CPUFraction
	}
	networkDisabled := cfg.NetworkDisabled || b.cfg.NetworkDisabled

	args := []string{
		"run", "--detach",
		"--memory", memLimit,
		"--cpus", strconv.FormatFloat(cpuFraction, 'f', -1, 64),
		"--volume", hostFile + ":/workspace/code:ro",
	}
	if networkDisabled {
		args = append(args, "--network", "none")
	}
	args = append(args, image)
	args = append(args, runCommands[lang]...)

	out, err := b.docker(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("sandbox: docker run: %w", err)
	}
	return trimID(out), nil
}

func (b *ContainerBackend) wait(ctx context.Context, containerID string) (int, error) {
	out, err := b.docker(ctx, "wait", containerID)
	if err != nil {
		return -1, err
	}
	code, convErr := strconv.Atoi(trimID(out))
	if convErr != nil {
		return -1, convErr
	}
	return code, nil
}

func (b *ContainerBackend) logs(containerID string) (stdout, stderr string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var outBuf, errBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, "docker", "logs", containerID)
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		b.logger.Warn("failed to collect container logs", zap.String("container", containerID), zap.Error(err))
	}
	return outBuf.String(), errBuf.String()
}

func (b *ContainerBackend) kill(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := b.docker(ctx, "kill", containerID); err != nil {
		b.logger.Warn("failed to kill container", zap.String("container", containerID), zap.Error(err))
	}
}

func (b *ContainerBackend) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := b.docker(ctx, "rm", "-f", containerID); err != nil {
		b.logger.Warn("failed to remove container", zap.String("container", containerID), zap.Error(err))
	}
}

func (b *ContainerBackend) docker(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	if b.cfg.DockerHost != "" {
		cmd.Env = append(cmd.Environ(), "DOCKER_HOST="+b.cfg.DockerHost)
	}
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %s", err, errOut.String())
	}
	return out.String(), nil
}

func trimID(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}
