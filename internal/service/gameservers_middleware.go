package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
	"github.com/gettakaro/takaro-worker/internal/domain/registry"
)

// GameServersMiddleware implements [DECORATOR_PATTERN] to add audit logging
// to connection changes without touching the service.
type GameServersMiddleware struct {
	Next   GameServers
	Logger *slog.Logger
}

func NewGameServersMiddleware(next GameServers, logger *slog.Logger) GameServers {
	return &GameServersMiddleware{
		Next:   next,
		Logger: logger,
	}
}

func (m *GameServersMiddleware) Add(ctx context.Context, domainID string, gs model.GameServer) error {
	start := time.Now()
	err := m.Next.Add(ctx, domainID, gs)

	attrs := []any{
		"gameserver_id", gs.ID,
		"domain_id", domainID,
		"type", gs.Type,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if err != nil {
		m.Logger.Warn("GAMESERVER_ADD_FAILED", append(attrs, "err", err)...)
	} else {
		m.Logger.Debug("GAMESERVER_ADD_COMPLETED", attrs...)
	}
	return err
}

func (m *GameServersMiddleware) Remove(ctx context.Context, gameServerID string) error {
	err := m.Next.Remove(ctx, gameServerID)
	if err != nil {
		m.Logger.Warn("GAMESERVER_REMOVE_FAILED", "gameserver_id", gameServerID, "err", err)
	}
	return err
}

func (m *GameServersMiddleware) List() []registry.Status {
	return m.Next.List()
}

func (m *GameServersMiddleware) Bootstrap(ctx context.Context) error {
	start := time.Now()
	err := m.Next.Bootstrap(ctx)
	if err != nil {
		m.Logger.Error("BOOTSTRAP_FAILED", "err", err, "duration_ms", time.Since(start).Milliseconds())
	}
	return err
}

func (m *GameServersMiddleware) ClearRateLimitCache(domainID string) {
	m.Next.ClearRateLimitCache(domainID)
	m.Logger.Info("RATELIMIT_CACHE_CLEARED", "domain_id", domainID)
}
