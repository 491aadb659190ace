package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"

	"github.com/gettakaro/takaro-worker/config"
	"github.com/gettakaro/takaro-worker/internal/adapter/pubsub"
)

// [TRACE_ID_MIDDLEWARE]
// Ensures TraceID persistence through the call chain, including jobs enqueued
// while handling this one.
func TraceIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		traceID := msg.Metadata.Get(pubsub.MetadataTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
			msg.Metadata.Set(pubsub.MetadataTraceID, traceID)
		}

		msg.SetContext(pubsub.WithTraceID(msg.Context(), traceID))

		return h(msg)
	}
}

// [LOGGING_MIDDLEWARE]
// Structured logging with latency and TraceID.
func LoggingMiddleware(logger *slog.Logger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			start := time.Now()
			msgs, err := h(msg)

			logger.Debug("MESSAGE_HANDLED",
				"msg_id", msg.UUID,
				"queue", msg.Metadata.Get(pubsub.MetadataQueue),
				"trace_id", msg.Metadata.Get(pubsub.MetadataTraceID),
				"duration_ms", time.Since(start).Milliseconds(),
				"success", err == nil,
			)
			return msgs, err
		}
	}
}

// [RETRY_MIDDLEWARE]
func NewRetryMiddleware(cfg config.RetryConfig, logger watermill.LoggerAdapter) middleware.Retry {
	return middleware.Retry{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      cfg.Multiplier,
		Logger:          logger,
	}
}

// [ATTEMPT_TIMEOUT_MIDDLEWARE]
// Bounds a single delivery attempt. Sits inside the retry middleware: each
// attempt gets a fresh deadline derived from the message context as it was
// before the attempt, and that context is restored afterwards so the next
// attempt does not inherit a cancelled one.
func AttemptTimeout(timeout time.Duration) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			parent := msg.Context()
			ctx, cancel := context.WithTimeout(parent, timeout)
			defer func() {
				cancel()
				msg.SetContext(parent)
			}()

			msg.SetContext(ctx)
			return h(msg)
		}
	}
}
