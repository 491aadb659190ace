package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

// RunnerMiddleware implements [DECORATOR_PATTERN] to add execution logging
// without touching the executor itself.
type RunnerMiddleware struct {
	Next   Runner
	Logger *slog.Logger
}

func NewRunnerMiddleware(next Runner, logger *slog.Logger) Runner {
	return &RunnerMiddleware{Next: next, Logger: logger}
}

func (m *RunnerMiddleware) Execute(ctx context.Context, job *model.JobData) error {
	start := time.Now()

	err := m.Next.Execute(ctx, job)

	duration := time.Since(start)
	if err != nil {
		m.Logger.Warn("JOB_EXECUTION_RETRYABLE",
			"err", err,
			"job_id", job.ID,
			"queue", job.Kind,
			"function_id", job.FunctionID,
			"duration_ms", duration.Milliseconds(),
		)
		return err
	}

	m.Logger.Debug("JOB_EXECUTION_COMPLETED",
		"job_id", job.ID,
		"queue", job.Kind,
		"domain_id", job.DomainID,
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}
