// Package executor runs one job's user function and records exactly one
// outcome for it.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gettakaro/takaro-worker/infra/counter"
	"github.com/gettakaro/takaro-worker/infra/sandbox"
	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

// ErrTransient marks an infrastructure failure before anything was recorded.
// The queue retries these; nothing else leaves Execute as an error.
var ErrTransient = errors.New("transient infrastructure failure")

const (
	ReasonRateLimited = "rate limited"
	ReasonTimeout     = "timeout"
	ReasonInternal    = "internal error"

	// CommandFailedMessage is all a player learns about a failed command.
	CommandFailedMessage = "Oops, something went wrong while executing your command. Please try again later."
)

// Runner is what the queue handlers call.
type Runner interface {
	Execute(ctx context.Context, job *model.JobData) error
}

type FunctionSource interface {
	GetFunction(ctx context.Context, domainID, functionID string) (string, error)
	GetExecutionToken(ctx context.Context, domainID string) (string, error)
}

type EventRecorder interface {
	CreateEvent(ctx context.Context, rec model.EventRecord) error
}

type Messenger interface {
	SendMessage(ctx context.Context, domainID, gameServerID, message string, recipient *model.Player) error
}

// Limiter is the per-domain execution budget.
type Limiter interface {
	Consume(ctx context.Context, domainID string) (counter.Decision, error)
}

// Interface guard
var _ Runner = (*Executor)(nil)

type Executor struct {
	functions FunctionSource
	recorder  EventRecorder
	messenger Messenger
	limiter   Limiter
	sandbox   sandbox.Sandbox
	logger    *slog.Logger
	tracer    trace.Tracer

	timeout time.Duration
	envURL  string

	recordBackoff func() backoff.BackOff
	recordTries   uint
}

const defaultRecordTries = 5

// recordBackOff spaces outcome writes 200ms, 400ms, 800ms... apart, capped at 5s.
func recordBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return b
}

func New(functions FunctionSource, recorder EventRecorder, messenger Messenger, limiter Limiter, sb sandbox.Sandbox, logger *slog.Logger, timeout time.Duration, envURL string) *Executor {
	return &Executor{
		functions: functions,
		recorder:  recorder,
		messenger: messenger,
		limiter:   limiter,
		sandbox:   sb,
		logger:    logger,
		tracer:    otel.Tracer("github.com/gettakaro/takaro-worker/executor"),
		timeout:   timeout,
		envURL:    envURL,

		recordBackoff: recordBackOff,
		recordTries:   defaultRecordTries,
	}
}

// outcome makes sure at most one event is recorded per Execute call.
type outcome struct {
	job      *model.JobData
	name     model.EventName
	recorded bool
}

// Execute returns nil once an outcome is recorded, or an error wrapping
// ErrTransient when the job should go back to the queue with nothing recorded.
func (e *Executor) Execute(ctx context.Context, job *model.JobData) (err error) {
	name, ok := job.Kind.OutcomeEvent()
	if !ok {
		return fmt.Errorf("executor: %s jobs are not executable", job.Kind)
	}

	ctx, span := e.tracer.Start(ctx, "executor.Execute", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.kind", string(job.Kind)),
		attribute.String("domain.id", job.DomainID),
		attribute.String("gameserver.id", job.GameServerID),
		attribute.String("function.id", job.FunctionID),
	))
	defer span.End()

	out := &outcome{job: job, name: name}

	// [PANIC_SHIELD] a crash still ends with one failed outcome
	defer func() {
		if r := recover(); r != nil {
			perr := fmt.Errorf("executor panic: %v", r)
			span.RecordError(perr)
			span.SetStatus(codes.Error, perr.Error())
			e.logger.Error("EXECUTOR_PANIC", "err", perr, "job_id", job.ID)
			if !out.recorded {
				e.record(ctx, span, out, model.Failed(ReasonInternal))
			}
			err = nil
		}
	}()

	decision, err := e.limiter.Consume(ctx, job.DomainID)
	if err != nil {
		return e.transient(span, "execution limiter", err)
	}
	if !decision.Allowed {
		res := model.Failed(ReasonRateLimited)
		res.TryAgainIn = decision.RetryAfter.Milliseconds()
		e.record(ctx, span, out, res)
		return nil
	}

	code, err := e.functions.GetFunction(ctx, job.DomainID, job.FunctionID)
	if err != nil {
		if isTemporary(err) {
			return e.transient(span, "get function", err)
		}
		e.record(ctx, span, out, model.Failed(fmt.Sprintf("function %s unavailable", job.FunctionID)))
		return nil
	}

	token := job.Token
	if token == "" {
		token, err = e.functions.GetExecutionToken(ctx, job.DomainID)
		if err != nil {
			if isTemporary(err) {
				return e.transient(span, "get execution token", err)
			}
			e.record(ctx, span, out, model.Failed("execution token unavailable"))
			return nil
		}
	}

	res, err := e.run(ctx, sandbox.Request{
		Code:   code,
		Data:   job.TriggerData(),
		Token:  token,
		EnvURL: e.envURL,
	})
	if err != nil {
		if errors.Is(err, sandbox.ErrUnavailable) || ctx.Err() != nil {
			return e.transient(span, "sandbox", err)
		}
		span.RecordError(err)
		e.logger.Error("EXECUTOR_SANDBOX_ERROR", "err", err, "job_id", job.ID)
		res = model.Failed(err.Error(), res.Logs...)
	}

	if job.Kind == model.QueueCommands && !res.Success {
		e.notifyPlayer(ctx, job)
	}

	e.record(ctx, span, out, res)
	return nil
}

// run bounds the sandbox call; an expired run is a timeout outcome.
func (e *Executor) run(ctx context.Context, req sandbox.Request) (model.ExecutionResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.sandbox.Run(runCtx, req)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return model.Failed(ReasonTimeout, res.Logs...), nil
	}
	return res, err
}

func (e *Executor) notifyPlayer(ctx context.Context, job *model.JobData) {
	if job.Command == nil {
		return
	}
	player := job.Command.Player
	if err := e.messenger.SendMessage(ctx, job.DomainID, job.GameServerID, CommandFailedMessage, &player); err != nil {
		e.logger.Warn("EXECUTOR_NOTIFY_PLAYER_FAILED", "err", err, "job_id", job.ID, "player", player.GameID)
	}
}

func (e *Executor) record(ctx context.Context, span trace.Span, out *outcome, res model.ExecutionResult) {
	if out.recorded {
		return
	}
	out.recorded = true

	span.SetAttributes(attribute.Bool("result.success", res.Success))
	if !res.Success {
		span.SetStatus(codes.Error, res.Reason)
	}

	rec := model.EventRecord{
		EventName:    out.name,
		GameServerID: out.job.GameServerID,
		DomainID:     out.job.DomainID,
		ModuleID:     out.job.ModuleID,
		Meta:         res.Meta(),
	}
	if out.job.Command != nil {
		rec.PlayerID = out.job.Command.Player.ID
	}

	// [OUTCOME_WRITE] retried in place; the user code already ran and must not run again
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := e.recorder.CreateEvent(ctx, rec)
		if err != nil && !isTemporary(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			e.logger.Warn("EXECUTOR_RECORD_RETRY", "err", err, "job_id", out.job.ID, "attempt", attempt)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(e.recordBackoff()), backoff.WithMaxTries(e.recordTries))
	if err != nil {
		span.RecordError(err)
		e.logger.Error("EXECUTOR_RECORD_FAILED", "err", err, "job_id", out.job.ID, "event", out.name, "attempts", attempt)
	}
}

func (e *Executor) transient(span trace.Span, stage string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, stage)
	return fmt.Errorf("%w: %s: %w", ErrTransient, stage, err)
}

func isTemporary(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}

// RecordExhausted writes the failed outcome for a job the queue gave up on.
// Only jobs whose attempts never recorded anything reach this.
func (e *Executor) RecordExhausted(ctx context.Context, job *model.JobData, cause string) error {
	name, ok := job.Kind.OutcomeEvent()
	if !ok {
		return nil
	}

	ctx, span := e.tracer.Start(ctx, "executor.RecordExhausted")
	defer span.End()

	e.record(ctx, span, &outcome{job: job, name: name}, model.Failed("retries exhausted: "+cause))
	return nil
}
