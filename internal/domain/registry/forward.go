package registry

import (
	"context"
	"log/slog"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

// Admission decides whether a raw event may enter the events queue.
type Admission interface {
	Admit(ctx context.Context, ev model.GameEvent) bool
}

// Enqueuer is the producer side of the events queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *model.JobData) error
}

// Forwarder routes tagged events from the cells: error events are logged,
// everything else goes through admission and into the events queue.
type Forwarder struct {
	admission Admission
	queue     Enqueuer
	logger    *slog.Logger
}

func NewForwarder(admission Admission, queue Enqueuer, logger *slog.Logger) *Forwarder {
	return &Forwarder{admission: admission, queue: queue, logger: logger}
}

func (f *Forwarder) Forward(ctx context.Context, ev model.GameEvent) {
	if ev.Type == model.EventError {
		f.logger.Error("GAMESERVER_CONNECTOR_ERROR",
			"gameserver_id", ev.GameServerID,
			"domain_id", ev.DomainID,
			"msg", ev.Payload.Msg,
		)
		return
	}
	if !ev.Type.IsForwarded() {
		f.logger.Debug("GAMESERVER_EVENT_IGNORED", "gameserver_id", ev.GameServerID, "event_type", ev.Type)
		return
	}

	if !f.admission.Admit(ctx, ev) {
		return
	}

	job := &model.JobData{
		Kind:         model.QueueEvents,
		DomainID:     ev.DomainID,
		GameServerID: ev.GameServerID,
		Event:        &ev,
	}
	if err := f.queue.Enqueue(ctx, job); err != nil {
		f.logger.Error("GAMESERVER_EVENT_ENQUEUE_FAILED",
			"err", err,
			"gameserver_id", ev.GameServerID,
			"event_type", ev.Type,
		)
	}
}
