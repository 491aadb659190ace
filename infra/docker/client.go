// Package docker wraps the engine API calls the worker needs: exec into the
// runtime container and follow a game server container's logs.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

type Client struct {
	cli client.APIClient
}

// ExecResult is the narrow output of one exec.
type ExecResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Client{cli: cli}, nil
}

// NewFromAPI wraps an existing engine client.
func NewFromAPI(cli client.APIClient) *Client {
	return &Client{cli: cli}
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.cli.Ping(ctx)
	return err
}

// Exec runs cmd inside a running container and waits for it to exit.
func (c *Client) Exec(ctx context.Context, containerID string, cmd []string, env []string) (ExecResult, error) {
	exec, err := c.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		Env:          env,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec create: %w", err)
	}

	attach, err := c.cli.ContainerExecAttach(ctx, exec.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec attach: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	copied := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copied <- err
	}()

	select {
	case err := <-copied:
		if err != nil {
			return ExecResult{}, fmt.Errorf("exec read: %w", err)
		}
	case <-ctx.Done():
		// closing the hijacked conn unblocks StdCopy before the buffers are read
		attach.Close()
		<-copied
		return ExecResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, ctx.Err()
	}

	inspect, err := c.cli.ContainerExecInspect(ctx, exec.ID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec inspect: %w", err)
	}

	return ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}, nil
}

// ContainerLogs follows a container's combined output starting now.
func (c *Client) ContainerLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	return c.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Tail:       "0",
	})
}

// ContainerTTY reports whether the container was created with a TTY, which
// decides if its log stream is multiplexed.
func (c *Client) ContainerTTY(ctx context.Context, id string) (bool, error) {
	resp, err := c.cli.ContainerInspect(ctx, id)
	if err != nil {
		return false, err
	}
	if resp.Config == nil {
		return false, nil
	}
	return resp.Config.Tty, nil
}
