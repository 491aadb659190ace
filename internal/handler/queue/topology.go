package queue

import (
	"fmt"

	"github.com/gettakaro/takaro-worker/config"
	"github.com/gettakaro/takaro-worker/internal/adapter/pubsub"
	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

// Interface guard
var _ pubsub.Topology = (*Topology)(nil)

// Topology names partition topics `{queue}.{n}`; a queue with concurrency N
// has N partitions.
type Topology struct {
	cfg *config.Config
}

func NewTopology(cfg *config.Config) *Topology {
	return &Topology{cfg: cfg}
}

func (t *Topology) Topic(kind model.QueueKind, partition int) string {
	return fmt.Sprintf("%s.%d", t.cfg.Queue(string(kind)).Name, partition)
}

func (t *Topology) Partitions(kind model.QueueKind) int {
	if n := t.cfg.Queue(string(kind)).Concurrency; n > 0 {
		return n
	}
	return 1
}
