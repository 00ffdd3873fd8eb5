package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Client is the container-runtime surface the sandbox needs.
type Client interface {
	Ping(ctx context.Context) error
	ImageExists(ctx context.Context, image string) (bool, error)
	CreateContainer(ctx context.Context, opts CreateOpts) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, timeout time.Duration) error
	RemoveContainer(ctx context.Context, id string) error
	Exec(ctx context.Context, id string, cmd []string, timeout time.Duration) (*ExecResult, error)
}

// CreateOpts defines options for creating a container.
type CreateOpts struct {
	Image     string
	Memory    string            // e.g. "2g"
	CPUs      float64           // e.g. 2.0
	Volumes   map[string]string // host path -> container path
	Env       map[string]string
	WorkDir   string
	StdinOpen bool
	TTY       bool
}

// ExecResult carries the raw outcome of a command run inside a container.
// A non-zero exit code is not an error at this layer.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// DockerClient implements Client by shelling out to the docker CLI.
type DockerClient struct {
	dockerBin string
}

// NewDockerClient creates a new CLI-based Docker client.
func NewDockerClient() *DockerClient {
	bin := "docker"
	if p, err := exec.LookPath("docker"); err == nil {
		bin = p
	}
	return &DockerClient{dockerBin: bin}
}

func (c *DockerClient) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.dockerBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("docker %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(stderr.String()), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Ping verifies the docker daemon is reachable.
func (c *DockerClient) Ping(ctx context.Context) error {
	_, err := c.run(ctx, "info", "--format", "{{.ServerVersion}}")
	return err
}

// ImageExists reports whether image is present in the local image store.
func (c *DockerClient) ImageExists(ctx context.Context, image string) (bool, error) {
	_, err := c.run(ctx, "image", "inspect", "--format", "{{.Id}}", image)
	if err != nil {
		if strings.Contains(err.Error(), "No such image") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateContainer creates a container and returns its ID.
func (c *DockerClient) CreateContainer(ctx context.Context, opts CreateOpts) (string, error) {
	return c.run(ctx, createArgs(opts)...)
}

func (c *DockerClient) StartContainer(ctx context.Context, id string) error {
	_, err := c.run(ctx, "start", id)
	return err
}

func (c *DockerClient) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	args := []string{"stop"}
	if timeout > 0 {
		args = append(args, "-t", strconv.Itoa(int(timeout.Seconds())))
	}
	args = append(args, id)
	_, err := c.run(ctx, args...)
	return err
}

func (c *DockerClient) RemoveContainer(ctx context.Context, id string) error {
	_, err := c.run(ctx, "rm", id)
	return err
}

// Exec runs cmd inside the container and captures stdout, stderr, and the
// exit code. A timeout > 0 bounds the execution; hitting it kills the exec.
func (c *DockerClient) Exec(ctx context.Context, id string, cmd []string, timeout time.Duration) (*ExecResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := append([]string{"exec", id}, cmd...)
	execCmd := exec.CommandContext(ctx, c.dockerBin, args...)
	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()
	result := &ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err == nil {
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return result, fmt.Errorf("exec in %s timed out after %v: %w", shortID(id), timeout, ctxErr)
		}
		return result, fmt.Errorf("exec in %s canceled: %w", shortID(id), ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Command ran and exited non-zero; the caller decides what that means.
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	return result, fmt.Errorf("docker exec in %s: %s: %w", shortID(id), strings.TrimSpace(stderr.String()), err)
}

// createArgs builds the docker create argument list. Map-backed flags are
// emitted in sorted key order so invocations are reproducible in logs.
func createArgs(opts CreateOpts) []string {
	args := []string{"create"}

	if opts.Memory != "" {
		args = append(args, "--memory", opts.Memory)
	}
	if opts.CPUs > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(opts.CPUs, 'f', -1, 64))
	}

	envKeys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	for _, k := range envKeys {
		args = append(args, "-e", k+"="+opts.Env[k])
	}

	volKeys := make([]string, 0, len(opts.Volumes))
	for hostPath := range opts.Volumes {
		volKeys = append(volKeys, hostPath)
	}
	sort.Strings(volKeys)
	for _, hostPath := range volKeys {
		args = append(args, "-v", hostPath+":"+opts.Volumes[hostPath])
	}

	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}
	if opts.StdinOpen {
		args = append(args, "-i")
	}
	if opts.TTY {
		args = append(args, "-t")
	}

	args = append(args, opts.Image)
	return args
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
