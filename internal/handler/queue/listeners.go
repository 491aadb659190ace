package queue

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

// [ON_EXECUTION_JOB]
// hooks, commands and cronjobs all end in the executor.
func (h *Handler) OnExecutionJob(ctx context.Context, _ *message.Message, job *model.JobData) error {
	return h.runner.Execute(ctx, job)
}

// [ON_EVENT_JOB]
func (h *Handler) OnEventJob(ctx context.Context, _ *message.Message, job *model.JobData) error {
	return h.ingest.Handle(ctx, job)
}

// [ON_POISONED_JOB]
// A job that exhausted its retries. Execution jobs still get their one
// failed outcome; events jobs are only logged.
func (h *Handler) OnPoisonedJob(ctx context.Context, msg *message.Message, job *model.JobData) error {
	reason := msg.Metadata.Get(middleware.ReasonForPoisonedKey)

	if _, ok := job.Kind.OutcomeEvent(); !ok {
		h.logger.Error("EVENT_JOB_DROPPED",
			"job_id", job.ID,
			"gameserver_id", job.GameServerID,
			"reason", reason,
		)
		return nil
	}

	h.logger.Error("JOB_RETRIES_EXHAUSTED",
		"job_id", job.ID,
		"queue", job.Kind,
		"function_id", job.FunctionID,
		"reason", reason,
	)
	if err := h.exhausted.RecordExhausted(ctx, job, reason); err != nil {
		h.logger.Error("JOB_EXHAUSTED_RECORD_FAILED", "err", err, "job_id", job.ID)
	}
	return nil
}
