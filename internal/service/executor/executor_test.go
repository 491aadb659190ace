package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gettakaro/takaro-worker/infra/counter"
	"github.com/gettakaro/takaro-worker/infra/sandbox"
	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

type tempErr struct{}

func (tempErr) Error() string   { return "connection refused" }
func (tempErr) Temporary() bool { return true }

type fakeFunctions struct {
	code     string
	err      error
	tokenErr error
}

func (f *fakeFunctions) GetFunction(context.Context, string, string) (string, error) {
	return f.code, f.err
}

func (f *fakeFunctions) GetExecutionToken(context.Context, string) (string, error) {
	return "tok", f.tokenErr
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []model.EventRecord
	// errs are returned by the first calls, in order, before anything is stored
	errs  []error
	calls int
}

func (r *fakeRecorder) CreateEvent(_ context.Context, rec model.EventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return err
	}
	r.records = append(r.records, rec)
	return nil
}

type fakeMessenger struct {
	messages []string
	to       []*model.Player
}

func (m *fakeMessenger) SendMessage(_ context.Context, _, _, message string, recipient *model.Player) error {
	m.messages = append(m.messages, message)
	m.to = append(m.to, recipient)
	return nil
}

type fakeLimiter struct {
	decision counter.Decision
	err      error
}

func (l *fakeLimiter) Consume(context.Context, string) (counter.Decision, error) {
	return l.decision, l.err
}

type sandboxFunc func(ctx context.Context, req sandbox.Request) (model.ExecutionResult, error)

func (f sandboxFunc) Run(ctx context.Context, req sandbox.Request) (model.ExecutionResult, error) {
	return f(ctx, req)
}

type fixture struct {
	functions *fakeFunctions
	recorder  *fakeRecorder
	messenger *fakeMessenger
	limiter   *fakeLimiter
}

func newFixture() *fixture {
	return &fixture{
		functions: &fakeFunctions{code: "return 1"},
		recorder:  &fakeRecorder{},
		messenger: &fakeMessenger{},
		limiter:   &fakeLimiter{decision: counter.Decision{Allowed: true}},
	}
}

func (f *fixture) executor(sb sandbox.Sandbox) *Executor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(f.functions, f.recorder, f.messenger, f.limiter, sb, logger, 50*time.Millisecond, "http://env")
	e.recordBackoff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return e
}

func commandJob() *model.JobData {
	return &model.JobData{
		ID:           "job-1",
		Kind:         model.QueueCommands,
		FunctionID:   "fn-1",
		DomainID:     "d1",
		GameServerID: "gs1",
		ModuleID:     "mod-1",
		Command: &model.CommandJob{
			Player:    model.Player{GameID: "p-1", ID: "player-1"},
			Arguments: map[string]any{"name": "home"},
		},
	}
}

func ok() sandbox.Sandbox {
	return sandboxFunc(func(context.Context, sandbox.Request) (model.ExecutionResult, error) {
		return model.ExecutionResult{Success: true, Logs: []model.LogLine{{Msg: "hi"}}}, nil
	})
}

func result(t *testing.T, rec model.EventRecord) map[string]any {
	t.Helper()
	r, isMap := rec.Meta["result"].(map[string]any)
	require.True(t, isMap)
	return r
}

func TestExecutor_SuccessRecordsOnce(t *testing.T) {
	f := newFixture()
	var got sandbox.Request
	sb := sandboxFunc(func(_ context.Context, req sandbox.Request) (model.ExecutionResult, error) {
		got = req
		return model.ExecutionResult{Success: true}, nil
	})

	require.NoError(t, f.executor(sb).Execute(context.Background(), commandJob()))

	require.Len(t, f.recorder.records, 1)
	rec := f.recorder.records[0]
	assert.Equal(t, model.EventNameCommandExecuted, rec.EventName)
	assert.Equal(t, "player-1", rec.PlayerID)
	assert.Equal(t, "mod-1", rec.ModuleID)
	assert.Equal(t, true, result(t, rec)["success"])
	assert.Empty(t, f.messenger.messages)

	assert.Equal(t, "return 1", got.Code)
	assert.Equal(t, "tok", got.Token)
	assert.Equal(t, "http://env", got.EnvURL)
	assert.Equal(t, map[string]any{"name": "home"}, got.Data["arguments"])
}

func TestExecutor_RateLimitedRecordsWithoutRunning(t *testing.T) {
	f := newFixture()
	f.limiter.decision = counter.Decision{Allowed: false, RetryAfter: 1500 * time.Millisecond}
	ran := false
	sb := sandboxFunc(func(context.Context, sandbox.Request) (model.ExecutionResult, error) {
		ran = true
		return model.ExecutionResult{}, nil
	})

	require.NoError(t, f.executor(sb).Execute(context.Background(), commandJob()))

	assert.False(t, ran)
	require.Len(t, f.recorder.records, 1)
	r := result(t, f.recorder.records[0])
	assert.Equal(t, false, r["success"])
	assert.Equal(t, ReasonRateLimited, r["reason"])
	assert.EqualValues(t, 1500, r["tryAgainIn"])
}

func TestExecutor_FailedCommandNotifiesPlayer(t *testing.T) {
	f := newFixture()
	sb := sandboxFunc(func(context.Context, sandbox.Request) (model.ExecutionResult, error) {
		return model.Failed("TypeError: x is undefined"), nil
	})

	require.NoError(t, f.executor(sb).Execute(context.Background(), commandJob()))

	require.Len(t, f.messenger.messages, 1)
	assert.Equal(t, CommandFailedMessage, f.messenger.messages[0])
	assert.NotContains(t, f.messenger.messages[0], "TypeError")
	assert.Equal(t, "p-1", f.messenger.to[0].GameID)
	require.Len(t, f.recorder.records, 1)
}

func TestExecutor_FailedHookDoesNotNotify(t *testing.T) {
	f := newFixture()
	sb := sandboxFunc(func(context.Context, sandbox.Request) (model.ExecutionResult, error) {
		return model.Failed("boom"), nil
	})
	job := &model.JobData{ID: "j", Kind: model.QueueHooks, FunctionID: "fn", DomainID: "d1", Hook: &model.HookJob{}}

	require.NoError(t, f.executor(sb).Execute(context.Background(), job))
	assert.Empty(t, f.messenger.messages)
	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, model.EventNameHookExecuted, f.recorder.records[0].EventName)
}

func TestExecutor_TimeoutIsFailureOutcome(t *testing.T) {
	f := newFixture()
	sb := sandboxFunc(func(ctx context.Context, _ sandbox.Request) (model.ExecutionResult, error) {
		<-ctx.Done()
		return model.ExecutionResult{Logs: []model.LogLine{{Msg: "started"}}}, ctx.Err()
	})

	require.NoError(t, f.executor(sb).Execute(context.Background(), commandJob()))

	require.Len(t, f.recorder.records, 1)
	r := result(t, f.recorder.records[0])
	assert.Equal(t, ReasonTimeout, r["reason"])
	assert.Len(t, r["logs"], 1)
}

func TestExecutor_SandboxErrorIsFailureOutcome(t *testing.T) {
	f := newFixture()
	sb := sandboxFunc(func(context.Context, sandbox.Request) (model.ExecutionResult, error) {
		return model.ExecutionResult{}, errors.New("isolate crashed")
	})

	require.NoError(t, f.executor(sb).Execute(context.Background(), commandJob()))
	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, "isolate crashed", result(t, f.recorder.records[0])["reason"])
}

func TestExecutor_PanicStillRecordsOnce(t *testing.T) {
	f := newFixture()
	sb := sandboxFunc(func(context.Context, sandbox.Request) (model.ExecutionResult, error) {
		panic("unexpected")
	})

	require.NotPanics(t, func() {
		require.NoError(t, f.executor(sb).Execute(context.Background(), commandJob()))
	})
	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, ReasonInternal, result(t, f.recorder.records[0])["reason"])
}

func TestExecutor_TransientFailuresRecordNothing(t *testing.T) {
	cases := map[string]func(f *fixture) sandbox.Sandbox{
		"limiter store down": func(f *fixture) sandbox.Sandbox {
			f.limiter.err = errors.New("dial tcp: refused")
			return ok()
		},
		"function source unreachable": func(f *fixture) sandbox.Sandbox {
			f.functions.err = tempErr{}
			return ok()
		},
		"token service unreachable": func(f *fixture) sandbox.Sandbox {
			f.functions.tokenErr = tempErr{}
			return ok()
		},
		"sandbox unavailable": func(f *fixture) sandbox.Sandbox {
			return sandboxFunc(func(context.Context, sandbox.Request) (model.ExecutionResult, error) {
				return model.ExecutionResult{}, sandbox.ErrUnavailable
			})
		},
	}

	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			err := f.executor(setup(f)).Execute(context.Background(), commandJob())
			require.ErrorIs(t, err, ErrTransient)
			assert.Empty(t, f.recorder.records)
		})
	}
}

func TestExecutor_MissingFunctionIsTerminal(t *testing.T) {
	f := newFixture()
	f.functions.err = errors.New("status 404")

	require.NoError(t, f.executor(ok()).Execute(context.Background(), commandJob()))
	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, false, result(t, f.recorder.records[0])["success"])
}

func TestExecutor_RejectsEventsJobs(t *testing.T) {
	f := newFixture()
	err := f.executor(ok()).Execute(context.Background(), &model.JobData{Kind: model.QueueEvents})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTransient)
	assert.Empty(t, f.recorder.records)
}

func TestExecutor_RecordExhausted(t *testing.T) {
	f := newFixture()
	job := &model.JobData{ID: "j", Kind: model.QueueCronjobs, FunctionID: "fn", DomainID: "d1"}

	require.NoError(t, f.executor(ok()).RecordExhausted(context.Background(), job, "sandbox unavailable"))
	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, model.EventNameCronjobExecuted, f.recorder.records[0].EventName)
	assert.Equal(t, "retries exhausted: sandbox unavailable", result(t, f.recorder.records[0])["reason"])
}

func TestExecutor_OutcomeWriteRetriedWithoutRerun(t *testing.T) {
	f := newFixture()
	f.recorder.errs = []error{tempErr{}}
	runs := 0
	sb := sandboxFunc(func(context.Context, sandbox.Request) (model.ExecutionResult, error) {
		runs++
		return model.ExecutionResult{Success: true}, nil
	})

	require.NoError(t, f.executor(sb).Execute(context.Background(), commandJob()))

	assert.Equal(t, 1, runs)
	assert.Equal(t, 2, f.recorder.calls)
	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, true, result(t, f.recorder.records[0])["success"])
}

func TestExecutor_OutcomeWriteGivesUp(t *testing.T) {
	t.Run("rejected write is not retried", func(t *testing.T) {
		f := newFixture()
		f.recorder.errs = []error{errors.New("status 400")}

		require.NoError(t, f.executor(ok()).Execute(context.Background(), commandJob()))
		assert.Equal(t, 1, f.recorder.calls)
		assert.Empty(t, f.recorder.records)
	})

	t.Run("bounded attempts", func(t *testing.T) {
		f := newFixture()
		for i := 0; i < defaultRecordTries+2; i++ {
			f.recorder.errs = append(f.recorder.errs, tempErr{})
		}

		require.NoError(t, f.executor(ok()).Execute(context.Background(), commandJob()))
		assert.Equal(t, defaultRecordTries, f.recorder.calls)
		assert.Empty(t, f.recorder.records)
	})
}
