package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/gettakaro/takaro-worker/config"
	infrapubsub "github.com/gettakaro/takaro-worker/infra/pubsub"
	"github.com/gettakaro/takaro-worker/internal/adapter/pubsub"
	"github.com/gettakaro/takaro-worker/internal/domain/model"
	"github.com/gettakaro/takaro-worker/internal/service/executor"
)

const PoisonHandlerName = "ON_POISONED_JOB"

// Ingester normalizes events-queue jobs.
type Ingester interface {
	Handle(ctx context.Context, job *model.JobData) error
}

// ExhaustedRecorder writes the failed outcome for a poisoned execution job.
type ExhaustedRecorder interface {
	RecordExhausted(ctx context.Context, job *model.JobData, cause string) error
}

type Handler struct {
	runner    executor.Runner
	ingest    Ingester
	exhausted ExhaustedRecorder
	logger    *slog.Logger
}

func NewHandler(runner executor.Runner, ingest Ingester, exhausted ExhaustedRecorder, logger *slog.Logger) *Handler {
	return &Handler{runner: runner, ingest: ingest, exhausted: exhausted, logger: logger}
}

func NewRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{}, logger)
}

// [REGISTRATION_PIPELINE]
// One consumer handler per partition topic; the partition count is the
// queue's concurrency.
func (h *Handler) RegisterHandlers(
	router *message.Router,
	provider infrapubsub.Provider,
	topology pubsub.Topology,
	cfg *config.Config,
	wlogger watermill.LoggerAdapter,
) error {
	poison, err := middleware.PoisonQueue(provider.Publisher(), cfg.Queues.PoisonTopic)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}
	retry := NewRetryMiddleware(cfg.Queues.Retry, wlogger)

	for _, kind := range model.QueueKinds {
		fn := Bind[model.JobData](h, h.OnExecutionJob)
		if kind == model.QueueEvents {
			fn = Bind[model.JobData](h, h.OnEventJob)
		}

		for p := 0; p < topology.Partitions(kind); p++ {
			topic := topology.Topic(kind, p)
			router.AddConsumerHandler(topic, topic, provider.Subscriber(), fn).AddMiddleware(
				TraceIDMiddleware,
				LoggingMiddleware(h.logger),
				poison,
				retry.Middleware,
				AttemptTimeout(cfg.Queues.Timeout),
			)
		}
	}

	router.AddConsumerHandler(PoisonHandlerName, cfg.Queues.PoisonTopic, provider.Subscriber(), Bind[model.JobData](h, h.OnPoisonedJob)).
		AddMiddleware(TraceIDMiddleware, LoggingMiddleware(h.logger))

	h.logger.Info("QUEUE_PIPELINE_READY",
		"hooks", topology.Partitions(model.QueueHooks),
		"commands", topology.Partitions(model.QueueCommands),
		"cronjobs", topology.Partitions(model.QueueCronjobs),
		"events", topology.Partitions(model.QueueEvents),
	)
	return nil
}
