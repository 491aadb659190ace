package pubsub

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

const (
	// MetadataQueue carries the logical queue of a job message.
	MetadataQueue = "queue"
	// MetadataTraceID follows a job across queues (events -> hooks/commands).
	MetadataTraceID = "trace_id"
)

// JobDispatcher is the producer side of the job queues. Enqueue never waits for
// the job to run.
type JobDispatcher interface {
	Enqueue(ctx context.Context, job *model.JobData) error
	Publisher() message.Publisher
}

// Topology maps a queue to its partition topics. Each partition is consumed by
// exactly one handler, so the partition count is the queue's concurrency.
type Topology interface {
	Topic(kind model.QueueKind, partition int) string
	Partitions(kind model.QueueKind) int
}

// jobDispatcher is the concrete implementation (private).
type jobDispatcher struct {
	publisher message.Publisher
	topology  Topology
	next      atomic.Uint64
}

// NewJobDispatcher returns the interface instead of the pointer to the struct.
func NewJobDispatcher(pub message.Publisher, topology Topology) JobDispatcher {
	return &jobDispatcher{
		publisher: pub,
		topology:  topology,
	}
}

func (d *jobDispatcher) Enqueue(ctx context.Context, job *model.JobData) error {
	if job == nil {
		return fmt.Errorf("job dispatcher: cannot enqueue nil job")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("job dispatcher: %w", err)
	}

	payload, err := job.Encode()
	if err != nil {
		return fmt.Errorf("job dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataQueue, string(job.Kind))
	if traceID, ok := ctx.Value(traceIDKey{}).(string); ok && traceID != "" {
		msg.Metadata.Set(MetadataTraceID, traceID)
	}

	// [ROUND_ROBIN] spread jobs over the queue's partitions
	n := d.topology.Partitions(job.Kind)
	if n < 1 {
		n = 1
	}
	topic := d.topology.Topic(job.Kind, int(d.next.Add(1)%uint64(n)))

	if err := d.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("job dispatcher: failed to publish to topic %s: %w", topic, err)
	}

	return nil
}

func (d *jobDispatcher) Publisher() message.Publisher {
	return d.publisher
}

type traceIDKey struct{}

// WithTraceID stores the trace id that Enqueue copies onto outgoing messages.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceID reads the trace id set by WithTraceID.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}
