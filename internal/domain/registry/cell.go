/*
Package registry keeps one live connection per game server and forwards what
those connections emit into the events queue.

Every game server is an isolated cell: it owns its emitter and a single pump
goroutine. Stopping a cell detaches the pump before the emitter is closed and
waits for the pump to exit, so once Remove returns nothing from that server is
forwarded anymore.
*/
package registry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gettakaro/takaro-worker/internal/domain/connector"
	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

// ForwardFunc receives every event the cell pumps, already tagged.
type ForwardFunc func(ctx context.Context, ev model.GameEvent)

// cell is the isolated unit for one game server.
type cell struct {
	// [IDENTITY]
	gameServerID string
	domainID     string
	gameType     string

	emitter connector.Emitter
	forward ForwardFunc
	logger  *slog.Logger

	// [LIFECYCLE_CONTROL]
	ctx      context.Context
	cancel   context.CancelFunc
	pumpDone chan struct{}
	stopOnce sync.Once

	degraded  atomic.Bool
	forwarded atomic.Uint64
	addedAt   time.Time
}

func newCell(domainID string, gs model.GameServer, em connector.Emitter, forward ForwardFunc, logger *slog.Logger) *cell {
	ctx, cancel := context.WithCancel(context.Background())
	return &cell{
		gameServerID: gs.ID,
		domainID:     domainID,
		gameType:     gs.Type,
		emitter:      em,
		forward:      forward,
		logger:       logger.With("gameserver_id", gs.ID, "domain_id", domainID),
		ctx:          ctx,
		cancel:       cancel,
		pumpDone:     make(chan struct{}),
		addedAt:      time.Now(),
	}
}

// listen attaches the pump. Must run before the emitter starts so nothing
// emitted during start-up is missed.
func (c *cell) listen() {
	go c.loop()
}

func (c *cell) loop() {
	defer close(c.pumpDone)

	events := c.emitter.Events()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			// [DETACH_GATE] a stop that raced the receive wins
			if c.ctx.Err() != nil {
				return
			}
			ev.GameServerID = c.gameServerID
			ev.DomainID = c.domainID
			c.deliver(ev)
		}
	}
}

// deliver is the listener boundary: a panic drops this one event and the pump
// keeps going.
func (c *cell) deliver(ev model.GameEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("GAMESERVER_FORWARD_PANIC", "panic", r, "event_type", ev.Type)
		}
	}()

	c.forward(c.ctx, ev)
	c.forwarded.Add(1)
}

// stop detaches the pump, closes the connection and waits for the pump to exit.
func (c *cell) stop(timeout time.Duration) error {
	var err error
	c.stopOnce.Do(func() {
		c.cancel()
		err = c.emitter.Stop()

		select {
		case <-c.pumpDone:
		case <-time.After(timeout):
			c.logger.Warn("GAMESERVER_PUMP_STOP_TIMEOUT", "timeout", timeout)
		}
	})
	return err
}

// Status is a snapshot of one registered game server.
type Status struct {
	GameServerID string    `json:"gameServerId"`
	DomainID     string    `json:"domainId"`
	Type         string    `json:"type"`
	Degraded     bool      `json:"degraded"`
	Forwarded    uint64    `json:"forwarded"`
	AddedAt      time.Time `json:"addedAt"`
}

func (c *cell) status() Status {
	return Status{
		GameServerID: c.gameServerID,
		DomainID:     c.domainID,
		Type:         c.gameType,
		Degraded:     c.degraded.Load(),
		Forwarded:    c.forwarded.Load(),
		AddedAt:      c.addedAt,
	}
}
