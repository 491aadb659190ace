package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
	"github.com/gettakaro/takaro-worker/internal/domain/registry"
)

const bootstrapConcurrency = 4

// [GAMESERVER_SERVICE] PRIMARY INTERFACE FOR TRANSPORT HANDLERS (HTTP) AND BOOTSTRAP
type GameServers interface {
	Add(ctx context.Context, domainID string, gs model.GameServer) error
	Remove(ctx context.Context, gameServerID string) error
	List() []registry.Status
	Bootstrap(ctx context.Context) error
	ClearRateLimitCache(domainID string)
}

// Catalog lists what this worker should connect to at start-up.
type Catalog interface {
	ListDomains(ctx context.Context) ([]string, error)
	ListGameServers(ctx context.Context, domainID string) ([]model.GameServer, error)
}

type CacheClearer interface {
	ClearDomainConfigCache(domainID string)
}

// Interface guard
var _ GameServers = (*GameServerService)(nil)

type GameServerService struct {
	manager registry.Manager
	catalog Catalog
	caches  CacheClearer
	logger  *slog.Logger
}

func NewGameServerService(manager registry.Manager, catalog Catalog, caches CacheClearer, logger *slog.Logger) *GameServerService {
	return &GameServerService{
		manager: manager,
		catalog: catalog,
		caches:  caches,
		logger:  logger,
	}
}

func (s *GameServerService) Add(ctx context.Context, domainID string, gs model.GameServer) error {
	return s.manager.Add(ctx, domainID, gs)
}

func (s *GameServerService) Remove(ctx context.Context, gameServerID string) error {
	return s.manager.Remove(ctx, gameServerID)
}

func (s *GameServerService) List() []registry.Status {
	return s.manager.List()
}

// ClearRateLimitCache is called when a domain's settings change.
func (s *GameServerService) ClearRateLimitCache(domainID string) {
	s.caches.ClearDomainConfigCache(domainID)
}

// [BOOTSTRAP] CONNECTS EVERY GAME SERVER OF EVERY ACTIVE DOMAIN
// A domain whose servers cannot be listed is logged and skipped.
func (s *GameServerService) Bootstrap(ctx context.Context) error {
	domains, err := s.catalog.ListDomains(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: list domains: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(bootstrapConcurrency)
	for _, domainID := range domains {
		g.Go(func() error {
			servers, err := s.catalog.ListGameServers(gCtx, domainID)
			if err != nil {
				s.logger.Warn("BOOTSTRAP_DOMAIN_FAILED", "domain_id", domainID, "err", err)
				return nil
			}
			s.manager.Init(gCtx, domainID, servers)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("BOOTSTRAP_COMPLETED", "domains", len(domains), "gameservers", len(s.manager.List()))
	return nil
}
