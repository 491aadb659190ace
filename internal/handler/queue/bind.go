package queue

import (
	"context"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
)

// JobFunc is the functional signature for business logic.
type JobFunc[T any] func(ctx context.Context, msg *message.Message, payload *T) error

// [INFRASTRUCTURE_BRIDGE]
// Bind connects watermill to domain logic, handling panic recovery and decoding.
func Bind[T any](h *Handler, fn JobFunc[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) (err error) {
		// [PANIC_RECOVERY]
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("PANIC_RECOVERED",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID)
				err = nil
			}
		}()

		// [DECODING]
		payload := new(T)
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			h.logger.Error("DECODE_FAILED", "err", err, "msg_id", msg.UUID)
			return nil // ACK: a payload that cannot decode never will
		}

		// [EXECUTION]
		// errors are retryable by contract; the retry and poison middleware take it from here
		return fn(msg.Context(), msg, payload)
	}
}
