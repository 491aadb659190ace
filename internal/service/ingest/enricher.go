package ingest

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

const (
	DefaultCommandPrefix = "/"

	playerCacheSize = 10000
	prefixCacheSize = 4096
	prefixCacheTTL  = time.Minute
)

// PlayerResolver maps an in-game identity to the platform player id.
type PlayerResolver interface {
	ResolvePlayer(ctx context.Context, domainID, gameServerID string, p model.Player) (string, error)
}

// PrefixSource reads a game server's command prefix setting.
type PrefixSource interface {
	GetCommandPrefix(ctx context.Context, domainID, gameServerID string) (string, error)
}

// Enrichment is what the worker needs beyond the raw event.
type Enrichment struct {
	PlayerID string
	Prefix   string
}

// Enricher resolves player ids and command prefixes with cache-aside lookups.
type Enricher struct {
	players  PlayerResolver
	prefixes PrefixSource

	playerCache *lru.Cache[string, string]
	prefixCache *expirable.LRU[string, string]
}

func NewEnricher(players PlayerResolver, prefixes PrefixSource) *Enricher {
	// [MEMORY_MANAGEMENT] player ids never change for a game id, so no TTL
	playerCache, _ := lru.New[string, string](playerCacheSize)

	return &Enricher{
		players:     players,
		prefixes:    prefixes,
		playerCache: playerCache,
		prefixCache: expirable.NewLRU[string, string](prefixCacheSize, nil, prefixCacheTTL),
	}
}

// Enrich runs both lookups concurrently; the prefix is only fetched for chat.
func (e *Enricher) Enrich(ctx context.Context, ev *model.GameEvent) (Enrichment, error) {
	var out Enrichment
	g, gCtx := errgroup.WithContext(ctx)

	if p := ev.Payload.Player; p != nil && p.GameID != "" {
		g.Go(func() error {
			id, err := e.resolvePlayer(gCtx, ev.DomainID, ev.GameServerID, *p)
			if err != nil {
				return fmt.Errorf("resolve player %s: %w", p.GameID, err)
			}
			out.PlayerID = id
			return nil
		})
	}

	if ev.Type == model.EventChatMessage {
		g.Go(func() error {
			prefix, err := e.commandPrefix(gCtx, ev.DomainID, ev.GameServerID)
			if err != nil {
				return fmt.Errorf("command prefix: %w", err)
			}
			out.Prefix = prefix
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Enrichment{}, err
	}
	return out, nil
}

func (e *Enricher) resolvePlayer(ctx context.Context, domainID, gameServerID string, p model.Player) (string, error) {
	if p.ID != "" {
		return p.ID, nil
	}

	// [HOT_PATH]
	key := domainID + ":" + gameServerID + ":" + p.GameID
	if id, ok := e.playerCache.Get(key); ok {
		return id, nil
	}

	id, err := e.players.ResolvePlayer(ctx, domainID, gameServerID, p)
	if err != nil {
		return "", err
	}
	if id != "" {
		e.playerCache.Add(key, id)
	}
	return id, nil
}

func (e *Enricher) commandPrefix(ctx context.Context, domainID, gameServerID string) (string, error) {
	key := domainID + ":" + gameServerID
	if prefix, ok := e.prefixCache.Get(key); ok {
		return prefix, nil
	}

	prefix, err := e.prefixes.GetCommandPrefix(ctx, domainID, gameServerID)
	if err != nil {
		return "", err
	}
	if prefix == "" {
		prefix = DefaultCommandPrefix
	}

	e.prefixCache.Add(key, prefix)
	return prefix, nil
}
