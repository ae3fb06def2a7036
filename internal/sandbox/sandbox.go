// Package sandbox provides one-shot ephemeral containers for running the
// LLM agent CLI against a per-job working copy. The original worker shells
// out to a local agent binary directly on the host; this package replaces
// that with the Docker Engine API, grounded in the container lifecycle
// pattern from the example pack's agent-orchestration repo
// (ImagePull/ContainerCreate/Start/Stop/Remove), extended with exec support
// that has no equivalent anywhere in the retrieval pack and is therefore
// authored from the Docker SDK's own exec conventions.
package sandbox

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog/log"
)

// ErrTimeout is raised by ExecWithTimeout when the wall clock expires
// before the command finishes; the container is sent SIGTERM first.
var ErrTimeout = errors.New("sandbox: exec timed out")

// Result is one exec invocation's captured output.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Handle identifies one running container started by Start.
type Handle struct {
	ID string
}

// Sandbox manages ephemeral containers on a single Docker daemon.
type Sandbox struct {
	cli *client.Client
}

// New connects to the Docker daemon at the given host (empty = default
// socket) using API version negotiation.
func New(host string) (*Sandbox, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("sandbox: create docker client: %w", err)
	}
	return &Sandbox{cli: cli}, nil
}

// Start pulls the image if absent, creates a container bind-mounting
// workDir at /repo, and starts it. AutoRemove is left off: Stop explicitly
// removes the container so logs survive if the caller crashes mid-job.
func (s *Sandbox) Start(ctx context.Context, img, workDir string) (*Handle, error) {
	if _, _, err := s.cli.ImageInspectWithRaw(ctx, img); err != nil {
		log.Info().Str("image", img).Msg("pulling sandbox image")
		reader, err := s.cli.ImagePull(ctx, img, image.PullOptions{})
		if err != nil {
			return nil, fmt.Errorf("sandbox: pull image %s: %w", img, err)
		}
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
	}

	containerCfg := &container.Config{
		Image:      img,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: "/repo",
		Tty:        false,
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: workDir,
			Target: "/repo",
		}},
		AutoRemove: false,
	}

	resp, err := s.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("sandbox: create container: %w", err)
	}

	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("sandbox: start container: %w", err)
	}

	return &Handle{ID: resp.ID}, nil
}

// Exec runs argv inside the container and collects stdout/stderr.
func (s *Sandbox) Exec(ctx context.Context, h *Handle, argv []string) (Result, error) {
	execCfg := container.ExecOptions{
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	}

	created, err := s.cli.ContainerExecCreate(ctx, h.ID, execCfg)
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: exec create: %w", err)
	}

	attach, err := s.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: exec attach: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return Result{}, fmt.Errorf("sandbox: demux exec stream: %w", err)
	}

	inspect, err := s.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: exec inspect: %w", err)
	}

	return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: inspect.ExitCode}, nil
}

// ExecWithTimeout races Exec against a hard wall clock. On expiry the
// container is sent SIGTERM and ErrTimeout is returned.
func (s *Sandbox) ExecWithTimeout(ctx context.Context, h *Handle, argv []string, timeout time.Duration) (Result, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		res, err := s.Exec(execCtx, h, argv)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-execCtx.Done():
		if killErr := s.cli.ContainerKill(ctx, h.ID, "SIGTERM"); killErr != nil {
			log.Warn().Err(killErr).Str("container", h.ID).Msg("failed to kill timed-out sandbox container")
		}
		return Result{}, ErrTimeout
	}
}

// WriteFile writes content to path inside the container via a heredoc
// piped through sh -c, using a randomized sentinel so prompt content
// containing the sentinel text can't prematurely terminate the heredoc.
func (s *Sandbox) WriteFile(ctx context.Context, h *Handle, path, content string) error {
	sentinel, err := randomSentinel()
	if err != nil {
		return fmt.Errorf("sandbox: generate sentinel: %w", err)
	}

	script := fmt.Sprintf("cat > %s <<'%s'\n%s\n%s\n", path, sentinel, content, sentinel)
	res, err := s.Exec(ctx, h, []string{"sh", "-c", script})
	if err != nil {
		return fmt.Errorf("sandbox: write file %s: %w", path, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("sandbox: write file %s: exit %d: %s", path, res.ExitCode, res.Stderr)
	}
	return nil
}

func randomSentinel() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "TECHY_" + hex.EncodeToString(b), nil
}

// Stop stops and removes the container, including its anonymous volumes.
// Callers defer this immediately after Start succeeds.
func (s *Sandbox) Stop(ctx context.Context, h *Handle) {
	timeout := 5
	if err := s.cli.ContainerStop(ctx, h.ID, container.StopOptions{Timeout: &timeout}); err != nil {
		log.Warn().Err(err).Str("container", h.ID).Msg("failed to stop sandbox container")
	}
	if err := s.cli.ContainerRemove(ctx, h.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		log.Warn().Err(err).Str("container", h.ID).Msg("failed to remove sandbox container")
	}
}
