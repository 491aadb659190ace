// Package local runs user functions in an in-process V8 isolate. Every run gets
// a fresh isolate, so nothing leaks between functions or domains.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"rogchap.com/v8go"

	"github.com/gettakaro/takaro-worker/infra/sandbox"
	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

// Interface guard
var _ sandbox.Sandbox = (*Sandbox)(nil)

const defaultMaxLogs = 1000

type Sandbox struct {
	logger  *slog.Logger
	maxLogs int
}

func New(logger *slog.Logger) *Sandbox {
	return &Sandbox{logger: logger, maxLogs: defaultMaxLogs}
}

// logBuffer collects console output; callbacks run on the isolate's thread but
// the timeout watcher reads it concurrently.
type logBuffer struct {
	mu    sync.Mutex
	lines []model.LogLine
	max   int
}

func (b *logBuffer) add(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) >= b.max {
		return
	}
	b.lines = append(b.lines, model.LogLine{Msg: msg})
}

func (b *logBuffer) snapshot() []model.LogLine {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.LogLine, len(b.lines))
	copy(out, b.lines)
	return out
}

func wrap(code string) string {
	return "(async () => {\n" + code + "\n})()"
}

func (s *Sandbox) Run(ctx context.Context, req sandbox.Request) (model.ExecutionResult, error) {
	iso := v8go.NewIsolate()
	defer iso.Dispose()

	logs := &logBuffer{max: s.maxLogs}

	global := v8go.NewObjectTemplate(iso)
	console := v8go.NewObjectTemplate(iso)
	logFn := v8go.NewFunctionTemplate(iso, func(info *v8go.FunctionCallbackInfo) *v8go.Value {
		parts := make([]string, 0, len(info.Args()))
		for _, arg := range info.Args() {
			parts = append(parts, stringify(info.Context(), arg))
		}
		logs.add(strings.Join(parts, " "))
		return nil
	})
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(level, logFn); err != nil {
			return model.ExecutionResult{}, fmt.Errorf("local sandbox: console.%s: %w", level, err)
		}
	}
	if err := global.Set("console", console); err != nil {
		return model.ExecutionResult{}, fmt.Errorf("local sandbox: console: %w", err)
	}

	v8ctx := v8go.NewContext(iso, global)
	defer v8ctx.Close()

	input, err := json.Marshal(req.Input())
	if err != nil {
		return model.ExecutionResult{}, fmt.Errorf("local sandbox: encode input: %w", err)
	}
	data, err := v8go.JSONParse(v8ctx, string(input))
	if err != nil {
		return model.ExecutionResult{}, fmt.Errorf("local sandbox: parse input: %w", err)
	}
	if err := v8ctx.Global().Set("data", data); err != nil {
		return model.ExecutionResult{}, fmt.Errorf("local sandbox: data: %w", err)
	}

	// [TIMEOUT_WATCHER] terminate the isolate once ctx is done
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			iso.TerminateExecution()
		case <-done:
		}
	}()

	val, err := v8ctx.RunScript(wrap(req.Code), "function.js")
	if ctx.Err() != nil {
		return model.ExecutionResult{Logs: logs.snapshot()}, ctx.Err()
	}
	if err != nil {
		return model.Failed(jsErrorMessage(err), logs.snapshot()...), nil
	}

	if val != nil && val.IsPromise() {
		promise, err := val.AsPromise()
		if err != nil {
			return model.Failed(err.Error(), logs.snapshot()...), nil
		}

		// no timers or IO exist here; what the microtask queue cannot settle never settles
		if promise.State() == v8go.Pending {
			v8ctx.PerformMicrotaskCheckpoint()
		}
		if ctx.Err() != nil {
			return model.ExecutionResult{Logs: logs.snapshot()}, ctx.Err()
		}

		switch promise.State() {
		case v8go.Rejected:
			return model.Failed(stringify(v8ctx, promise.Result()), logs.snapshot()...), nil
		case v8go.Pending:
			return model.Failed("function returned a promise that never settled", logs.snapshot()...), nil
		}
	}

	return model.ExecutionResult{Success: true, Logs: logs.snapshot()}, nil
}

func stringify(ctx *v8go.Context, v *v8go.Value) string {
	if v == nil {
		return "undefined"
	}
	if v.IsString() || v.IsNativeError() {
		return v.String()
	}
	if v.IsObject() {
		if s, err := v8go.JSONStringify(ctx, v); err == nil {
			return s
		}
	}
	return v.String()
}

func jsErrorMessage(err error) string {
	var jsErr *v8go.JSError
	if errors.As(err, &jsErr) {
		return jsErr.Message
	}
	return err.Error()
}
