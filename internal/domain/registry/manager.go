package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gettakaro/takaro-worker/internal/domain/connector"
	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

// Manager owns the set of live game server connections.
type Manager interface {
	Init(ctx context.Context, domainID string, servers []model.GameServer)
	Add(ctx context.Context, domainID string, gs model.GameServer) error
	Remove(ctx context.Context, gameServerID string) error
	Destroy(ctx context.Context) error
	List() []Status
}

// Interface guard
var _ Manager = (*GameServerManager)(nil)

type config struct {
	stopTimeout  time.Duration
	startTimeout time.Duration
}

// GameServerManager keeps at most one cell per game server id.
type GameServerManager struct {
	emitters *connector.Registry
	forward  ForwardFunc
	logger   *slog.Logger
	config   config

	// mu guards membership only; it is never held across emitter I/O.
	mu    sync.Mutex
	cells map[string]*cell
}

func NewGameServerManager(emitters *connector.Registry, forward ForwardFunc, logger *slog.Logger, opts ...Option) *GameServerManager {
	m := &GameServerManager{
		emitters: emitters,
		forward:  forward,
		logger:   logger,
		cells:    make(map[string]*cell),
		config: config{
			stopTimeout:  5 * time.Second,
			startTimeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init adds every server one after another. A server that fails to connect is
// logged and skipped; it never aborts the rest.
func (m *GameServerManager) Init(ctx context.Context, domainID string, servers []model.GameServer) {
	for _, gs := range servers {
		if err := m.Add(ctx, domainID, gs); err != nil {
			m.logger.Warn("GAMESERVER_INIT_FAILED", "gameserver_id", gs.ID, "domain_id", domainID, "err", err)
		}
	}
}

// ErrSuperseded is returned by an Add whose cell was replaced or removed by a
// concurrent call before its connection came up.
var ErrSuperseded = errors.New("superseded by a concurrent change")

// Add replaces any existing connection for gs.ID. The new cell is registered
// even when Start fails; it is then marked degraded and the error returned.
// Connecting happens outside the lock, so one slow server never stalls the
// others.
func (m *GameServerManager) Add(ctx context.Context, domainID string, gs model.GameServer) error {
	em, err := m.emitters.New(gs)
	if err != nil {
		return fmt.Errorf("gameserver %s: %w", gs.ID, err)
	}

	c := newCell(domainID, gs, em, m.forward, m.logger)
	c.listen()

	// [SWAP] membership only; the old connection is closed before the new one opens
	m.mu.Lock()
	old := m.cells[gs.ID]
	m.cells[gs.ID] = c
	m.mu.Unlock()

	if old != nil {
		if err := old.stop(m.config.stopTimeout); err != nil {
			m.logger.Warn("GAMESERVER_REPLACE_STOP_FAILED", "gameserver_id", gs.ID, "err", err)
		}
	}

	if !m.owns(c) {
		_ = c.stop(m.config.stopTimeout)
		return fmt.Errorf("gameserver %s: %w", gs.ID, ErrSuperseded)
	}

	startCtx, cancel := context.WithTimeout(ctx, m.config.startTimeout)
	defer cancel()
	startErr := em.Start(startCtx)

	// a replace or remove that ran during Start wins; its stop raced ours
	if !m.owns(c) {
		_ = c.stop(m.config.stopTimeout)
		m.logger.Info("GAMESERVER_ADD_SUPERSEDED", "gameserver_id", gs.ID, "domain_id", domainID)
		return fmt.Errorf("gameserver %s: %w", gs.ID, ErrSuperseded)
	}

	if startErr != nil {
		c.degraded.Store(true)
		m.logger.Error("GAMESERVER_START_FAILED", "gameserver_id", gs.ID, "domain_id", domainID, "err", startErr)
		return fmt.Errorf("gameserver %s: start: %w", gs.ID, startErr)
	}

	m.logger.Info("GAMESERVER_ADDED", "gameserver_id", gs.ID, "domain_id", domainID, "type", gs.Type)
	return nil
}

func (m *GameServerManager) owns(c *cell) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cells[c.gameServerID] == c
}

// Remove is a no-op with a warning for unknown ids.
func (m *GameServerManager) Remove(_ context.Context, gameServerID string) error {
	m.mu.Lock()
	c, ok := m.cells[gameServerID]
	if ok {
		delete(m.cells, gameServerID)
	}
	m.mu.Unlock()

	if !ok {
		m.logger.Warn("GAMESERVER_REMOVE_UNKNOWN", "gameserver_id", gameServerID)
		return nil
	}

	if err := c.stop(m.config.stopTimeout); err != nil {
		return fmt.Errorf("gameserver %s: stop: %w", gameServerID, err)
	}
	m.logger.Info("GAMESERVER_REMOVED", "gameserver_id", gameServerID)
	return nil
}

// Destroy stops every connection concurrently and leaves the manager empty.
func (m *GameServerManager) Destroy(ctx context.Context) error {
	m.mu.Lock()
	cells := m.cells
	m.cells = make(map[string]*cell)
	m.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for id, c := range cells {
		g.Go(func() error {
			if err := c.stop(m.config.stopTimeout); err != nil {
				return fmt.Errorf("gameserver %s: stop: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *GameServerManager) List() []Status {
	m.mu.Lock()
	out := make([]Status, 0, len(m.cells))
	for _, c := range m.cells {
		out = append(out, c.status())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].GameServerID < out[j].GameServerID })
	return out
}
