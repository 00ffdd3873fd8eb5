// Package sandbox runs task code inside a disposable Docker container. The
// container mounts the task workspace at /workspace, so files the code
// writes are visible to the host without copying. Observations come back as
// plain text; classifying failures is the loop's job, not the sandbox's.
package sandbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/Mikeyy1405/Writgoai.nl/internal/logging"
	"github.com/Mikeyy1405/Writgoai.nl/internal/workspace"
)

const (
	// DefaultImage is the sandbox image used when none is configured.
	DefaultImage = "writgo-agent-sandbox:latest"

	containerWorkspace = "/workspace"

	defaultMemoryLimit = "2g"
	defaultCPULimit    = 2.0
	defaultExecTimeout = 300 * time.Second
	stopGracePeriod    = 5 * time.Second
)

// Config tunes the sandbox. Zero values fall back to defaults.
type Config struct {
	// Image is the Docker image the container is created from.
	Image string
	// ExecTimeout bounds a single code or shell execution.
	ExecTimeout time.Duration
	// Memory is the container memory limit.
	Memory string
	// CPUs is the container CPU limit.
	CPUs float64
}

// Sandbox is one task's execution container plus its host-side workspace.
type Sandbox struct {
	client Client
	store  *workspace.Store
	cfg    Config
	logger logging.Logger

	containerID string
}

// New builds a Sandbox over an existing workspace store. The container is
// not created until Start.
func New(client Client, store *workspace.Store, cfg Config) *Sandbox {
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = defaultExecTimeout
	}
	if cfg.Memory == "" {
		cfg.Memory = defaultMemoryLimit
	}
	if cfg.CPUs <= 0 {
		cfg.CPUs = defaultCPULimit
	}

	return &Sandbox{
		client: client,
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger("sandbox"),
	}
}

// Start verifies the sandbox image exists, then creates and starts the
// container with the workspace bind-mounted at /workspace.
func (s *Sandbox) Start(ctx context.Context) error {
	s.logger.Info("Starting sandbox container with image: %s", s.cfg.Image)

	exists, err := s.client.ImageExists(ctx, s.cfg.Image)
	if err != nil {
		return fmt.Errorf("check sandbox image: %w", err)
	}
	if !exists {
		return fmt.Errorf("sandbox image %s not found; build it first: docker build -t %s -f Dockerfile.sandbox .",
			s.cfg.Image, s.cfg.Image)
	}

	id, err := s.client.CreateContainer(ctx, CreateOpts{
		Image:  s.cfg.Image,
		Memory: s.cfg.Memory,
		CPUs:   s.cfg.CPUs,
		Volumes: map[string]string{
			s.store.Root(): containerWorkspace,
		},
		Env: map[string]string{
			"PYTHONPATH": containerWorkspace,
		},
		WorkDir:   containerWorkspace,
		StdinOpen: true,
		TTY:       true,
	})
	if err != nil {
		return fmt.Errorf("create sandbox container: %w", err)
	}

	if err := s.client.StartContainer(ctx, id); err != nil {
		_ = s.client.RemoveContainer(ctx, id)
		return fmt.Errorf("start sandbox container: %w", err)
	}

	s.containerID = id
	s.logger.Info("Sandbox container started: %s", shortID(id))
	return nil
}

// Stop stops and removes the container. Failures are logged, not returned,
// so Stop is safe to defer.
func (s *Sandbox) Stop(ctx context.Context) {
	if s.containerID == "" {
		return
	}

	s.logger.Info("Stopping sandbox container")
	if err := s.client.StopContainer(ctx, s.containerID, stopGracePeriod); err != nil {
		s.logger.Error("Error stopping container: %v", err)
	}
	if err := s.client.RemoveContainer(ctx, s.containerID); err != nil {
		s.logger.Error("Error removing container: %v", err)
	}
	s.containerID = ""
}

// ExecutePython stages code as a workspace file and runs it with python3.
func (s *Sandbox) ExecutePython(ctx context.Context, code string) (string, error) {
	s.logger.Info("Executing Python code in sandbox")

	name := fmt.Sprintf("_agent_code_%s.py", nonce())
	if err := s.store.Save(name, code); err != nil {
		return "", fmt.Errorf("stage python code: %w", err)
	}

	return s.exec(ctx, []string{"python3", containerWorkspace + "/" + name}, "Code executed successfully")
}

// ExecuteShell runs a shell command inside the container.
func (s *Sandbox) ExecuteShell(ctx context.Context, command string) (string, error) {
	s.logger.Info("Executing shell command: %s", preview(command, 100))

	return s.exec(ctx, []string{"bash", "-c", command}, "Command executed")
}

func (s *Sandbox) exec(ctx context.Context, cmd []string, silentMsg string) (string, error) {
	if s.containerID == "" {
		return "", fmt.Errorf("sandbox not started")
	}

	result, err := s.client.Exec(ctx, s.containerID, cmd, s.cfg.ExecTimeout)
	if err != nil {
		return "", err
	}

	s.logger.Debug("Execution completed with exit code: %d", result.ExitCode)
	return formatObservation(result, silentMsg), nil
}

// formatObservation merges stdout and stderr the way the model expects: raw
// stdout first, then a labelled STDERR block. Fully silent commands report
// the exit code instead of an empty string.
func formatObservation(result *ExecResult, silentMsg string) string {
	var b strings.Builder
	if result.Stdout != "" {
		b.WriteString(result.Stdout)
	}
	if result.Stderr != "" {
		b.WriteString("\nSTDERR:\n")
		b.WriteString(result.Stderr)
	}
	if b.Len() == 0 {
		return fmt.Sprintf("%s (exit code: %d)", silentMsg, result.ExitCode)
	}
	return b.String()
}

func nonce() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func preview(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
