// Package remote runs user functions in a separate runtime container through
// docker exec, behind a circuit breaker.
package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"github.com/gettakaro/takaro-worker/infra/docker"
	"github.com/gettakaro/takaro-worker/infra/sandbox"
	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

// Interface guard
var _ sandbox.Sandbox = (*Sandbox)(nil)

// Execer is the narrow exec(cmd, env) boundary to the runtime.
type Execer interface {
	Exec(ctx context.Context, containerID string, cmd []string, env []string) (docker.ExecResult, error)
}

const (
	EnvCode  = "TAKARO_FUNCTION"
	EnvData  = "TAKARO_DATA"
	EnvToken = "TAKARO_TOKEN"
	EnvURL   = "TAKARO_URL"
)

type Sandbox struct {
	exec      Execer
	container string
	command   []string
	breaker   *gobreaker.CircuitBreaker
	logger    *slog.Logger
}

func New(exec Execer, container string, command []string, logger *slog.Logger) *Sandbox {
	s := &Sandbox{
		exec:      exec,
		container: container,
		command:   command,
		logger:    logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote-sandbox",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("SANDBOX_BREAKER_STATE", "breaker", name, "from", from.String(), "to", to.String())
		},
		// user code failing is a result, never a breaker failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
		},
	})
	return s
}

func (s *Sandbox) Run(ctx context.Context, req sandbox.Request) (model.ExecutionResult, error) {
	input, err := json.Marshal(req.Data)
	if err != nil {
		return model.ExecutionResult{}, fmt.Errorf("remote sandbox: encode input: %w", err)
	}

	env := []string{
		EnvCode + "=" + base64.StdEncoding.EncodeToString([]byte(req.Code)),
		EnvData + "=" + string(input),
		EnvToken + "=" + req.Token,
		EnvURL + "=" + req.EnvURL,
	}

	cmd := boundedCommand(ctx, s.command)
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.exec.Exec(ctx, s.container, cmd, env)
	})

	if ctx.Err() != nil {
		var logs []model.LogLine
		if r, ok := out.(docker.ExecResult); ok {
			logs = parseLogs(r.Stdout)
		}
		return model.ExecutionResult{Logs: logs}, ctx.Err()
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return model.ExecutionResult{}, fmt.Errorf("%w: circuit %s", sandbox.ErrUnavailable, s.breaker.State())
		}
		return model.ExecutionResult{}, fmt.Errorf("%w: %w", sandbox.ErrUnavailable, err)
	}

	return decode(out.(docker.ExecResult)), nil
}

// killGrace is how long past the run deadline the process may live before the
// runtime container kills it.
const killGrace = time.Second

// boundedCommand prefixes cmd with coreutils timeout when ctx has a deadline.
// Dropping the attach stream does not end an exec'd process; SIGKILL from
// inside the container does.
func boundedCommand(ctx context.Context, cmd []string) []string {
	deadline, ok := ctx.Deadline()
	if !ok {
		return cmd
	}
	limit := time.Until(deadline) + killGrace
	secs := int64((limit + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}

	out := make([]string, 0, len(cmd)+4)
	out = append(out, "timeout", "-s", "KILL", fmt.Sprintf("%ds", secs))
	return append(out, cmd...)
}

// report is what the runtime prints as its last stdout line.
type report struct {
	Success bool            `json:"success"`
	Logs    []model.LogLine `json:"logs"`
	Reason  string          `json:"reason,omitempty"`
}

// decode prefers the runtime's JSON report and falls back to treating every
// stdout line as a log and the exit code as the verdict.
func decode(r docker.ExecResult) model.ExecutionResult {
	lines := splitLines(r.Stdout)
	if n := len(lines); n > 0 {
		var rep report
		if err := json.Unmarshal([]byte(lines[n-1]), &rep); err == nil && (rep.Logs != nil || rep.Success || rep.Reason != "") {
			res := model.ExecutionResult{Success: rep.Success && r.ExitCode == 0, Logs: rep.Logs, Reason: rep.Reason}
			if !res.Success && res.Reason == "" {
				res.Reason = exitReason(r)
			}
			return res
		}
	}

	res := model.ExecutionResult{Success: r.ExitCode == 0, Logs: parseLogs(r.Stdout)}
	if !res.Success {
		res.Reason = exitReason(r)
	}
	return res
}

func exitReason(r docker.ExecResult) string {
	if msg := strings.TrimSpace(string(r.Stderr)); msg != "" {
		return msg
	}
	return fmt.Sprintf("exit code %d", r.ExitCode)
}

func parseLogs(stdout []byte) []model.LogLine {
	lines := splitLines(stdout)
	logs := make([]model.LogLine, 0, len(lines))
	for _, l := range lines {
		logs = append(logs, model.LogLine{Msg: l})
	}
	return logs
}

func splitLines(b []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); line != "" {
			out = append(out, line)
		}
	}
	return out
}
