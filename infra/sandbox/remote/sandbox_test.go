package remote

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gettakaro/takaro-worker/infra/docker"
	"github.com/gettakaro/takaro-worker/infra/sandbox"
)

type execFunc func(ctx context.Context, containerID string, cmd, env []string) (docker.ExecResult, error)

func (f execFunc) Exec(ctx context.Context, containerID string, cmd, env []string) (docker.ExecResult, error) {
	return f(ctx, containerID, cmd, env)
}

func newSandbox(f execFunc) *Sandbox {
	return New(f, "runtime", []string{"node", "run.mjs"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func envValue(env []string, key string) string {
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			return strings.TrimPrefix(kv, key+"=")
		}
	}
	return ""
}

func TestRemote_PassesCodeAndDataThroughEnv(t *testing.T) {
	var gotEnv []string
	var gotCmd []string
	sb := newSandbox(func(_ context.Context, id string, cmd, env []string) (docker.ExecResult, error) {
		assert.Equal(t, "runtime", id)
		gotCmd, gotEnv = cmd, env
		return docker.ExecResult{Stdout: []byte(`{"success":true,"logs":[{"msg":"hi"}]}` + "\n")}, nil
	})

	res, err := sb.Run(context.Background(), sandbox.Request{
		Code:  "console.log('hi')",
		Data:  map[string]any{"gameServerId": "gs1"},
		Token: "tok",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Logs, 1)
	assert.Equal(t, "hi", res.Logs[0].Msg)

	assert.Equal(t, []string{"node", "run.mjs"}, gotCmd)
	code, err := base64.StdEncoding.DecodeString(envValue(gotEnv, EnvCode))
	require.NoError(t, err)
	assert.Equal(t, "console.log('hi')", string(code))
	assert.JSONEq(t, `{"gameServerId":"gs1"}`, envValue(gotEnv, EnvData))
	assert.Equal(t, "tok", envValue(gotEnv, EnvToken))
}

func TestRemote_NonZeroExitIsFailedResult(t *testing.T) {
	sb := newSandbox(func(context.Context, string, []string, []string) (docker.ExecResult, error) {
		return docker.ExecResult{ExitCode: 1, Stdout: []byte("step 1\nstep 2\n"), Stderr: []byte("ReferenceError: x\n")}, nil
	})

	res, err := sb.Run(context.Background(), sandbox.Request{Code: "x"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "ReferenceError: x", res.Reason)
	assert.Len(t, res.Logs, 2)
}

func TestRemote_ReportCannotOverrideExitCode(t *testing.T) {
	sb := newSandbox(func(context.Context, string, []string, []string) (docker.ExecResult, error) {
		return docker.ExecResult{ExitCode: 137, Stdout: []byte(`{"success":true,"logs":[]}`)}, nil
	})

	res, err := sb.Run(context.Background(), sandbox.Request{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "exit code 137", res.Reason)
}

func TestRemote_BreakerOpensOnInfraFailures(t *testing.T) {
	calls := 0
	sb := newSandbox(func(context.Context, string, []string, []string) (docker.ExecResult, error) {
		calls++
		return docker.ExecResult{}, errors.New("Cannot connect to the Docker daemon")
	})

	for i := 0; i < 5; i++ {
		_, err := sb.Run(context.Background(), sandbox.Request{})
		require.ErrorIs(t, err, sandbox.ErrUnavailable)
	}
	require.Equal(t, 5, calls)

	_, err := sb.Run(context.Background(), sandbox.Request{})
	require.ErrorIs(t, err, sandbox.ErrUnavailable)
	assert.Equal(t, 5, calls, "open breaker must not reach the runtime")
}

func TestRemote_UserFailuresDoNotTripBreaker(t *testing.T) {
	sb := newSandbox(func(context.Context, string, []string, []string) (docker.ExecResult, error) {
		return docker.ExecResult{ExitCode: 1}, nil
	})

	for i := 0; i < 20; i++ {
		res, err := sb.Run(context.Background(), sandbox.Request{})
		require.NoError(t, err)
		require.False(t, res.Success)
	}
}

func TestRemote_DeadlineKillsProcessInContainer(t *testing.T) {
	var gotCmd []string
	sb := newSandbox(func(_ context.Context, _ string, cmd, _ []string) (docker.ExecResult, error) {
		gotCmd = cmd
		return docker.ExecResult{}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := sb.Run(ctx, sandbox.Request{Code: "while(true){}"})
	require.NoError(t, err)

	require.Len(t, gotCmd, 6)
	assert.Equal(t, []string{"timeout", "-s", "KILL"}, gotCmd[:3])
	assert.Equal(t, "11s", gotCmd[3])
	assert.Equal(t, []string{"node", "run.mjs"}, gotCmd[4:])
}

func TestBoundedCommand_ExpiredDeadline(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Minute))
	defer cancel()
	assert.Equal(t, []string{"timeout", "-s", "KILL", "1s", "node"}, boundedCommand(ctx, []string{"node"}))
}
