// Package ratelimit holds the two independent admission layers: per event type
// (before the events queue) and per domain (before the sandbox).
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gettakaro/takaro-worker/infra/counter"
	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

// EventRecorder is the event recording collaborator.
type EventRecorder interface {
	CreateEvent(ctx context.Context, rec model.EventRecord) error
}

const (
	limiterCacheSize = 16384
	eventWindow      = time.Minute
)

// bucketSpec is what gets cached per (domain, server, event type): the store
// key and the capacity it was sized with. Token state never lives here.
type bucketSpec struct {
	key    string
	points int
}

// EventLimiter is admission control for raw game events.
type EventLimiter struct {
	store     counter.Store
	domains   *DomainCache
	recorder  EventRecorder
	logger    *slog.Logger
	limiters  *lru.Cache[string, bucketSpec]
	notifyTTL time.Duration
}

func NewEventLimiter(store counter.Store, domains *DomainCache, recorder EventRecorder, logger *slog.Logger, notifyTTL time.Duration) *EventLimiter {
	// [MEMORY_MANAGEMENT] bounded; an evicted spec is rebuilt from the domain cache
	limiters, _ := lru.New[string, bucketSpec](limiterCacheSize)

	return &EventLimiter{
		store:     store,
		domains:   domains,
		recorder:  recorder,
		logger:    logger,
		limiters:  limiters,
		notifyTTL: notifyTTL,
	}
}

func limiterKey(domainID, gameServerID string, eventType model.EventType) string {
	return domainID + ":" + gameServerID + ":" + string(eventType)
}

// CheckRateLimit consumes one token for the event. Event types without a
// configured budget always pass. On store or config failures it fails open and
// returns the error so the caller can report it.
func (l *EventLimiter) CheckRateLimit(ctx context.Context, domainID, gameServerID string, eventType model.EventType) (bool, error) {
	key := limiterKey(domainID, gameServerID, eventType)

	spec, ok := l.limiters.Get(key)
	if !ok {
		domain, err := l.domains.Get(ctx, domainID)
		if err != nil {
			return true, err
		}
		points, limited := domain.EventLimit(eventType)
		if !limited {
			return true, nil
		}
		spec = bucketSpec{key: "event:" + key, points: points}
		l.limiters.Add(key, spec)
	}

	decision, err := l.store.Take(ctx, spec.key, spec.points, eventWindow)
	if err != nil {
		return true, err
	}
	return decision.Allowed, nil
}

// ShouldCreateRateLimitEvent wins at most once per key per notify TTL, across
// every process sharing the store.
func (l *EventLimiter) ShouldCreateRateLimitEvent(ctx context.Context, gameServerID string, eventType model.EventType) (bool, error) {
	return l.store.SetNX(ctx, "notified:"+gameServerID+":"+string(eventType), l.notifyTTL)
}

// Admit is the full admission step used by the game server manager: check, and
// on rejection make sure at most one notification is recorded.
func (l *EventLimiter) Admit(ctx context.Context, ev model.GameEvent) bool {
	allowed, err := l.CheckRateLimit(ctx, ev.DomainID, ev.GameServerID, ev.Type)
	if err != nil {
		l.logger.Error("RATE_LIMIT_CHECK_FAILED",
			"err", err,
			"domain_id", ev.DomainID,
			"gameserver_id", ev.GameServerID,
			"event_type", ev.Type,
		)
	}
	if allowed {
		return true
	}

	notify, err := l.ShouldCreateRateLimitEvent(ctx, ev.GameServerID, ev.Type)
	if err != nil {
		l.logger.Error("RATE_LIMIT_DEDUP_FAILED", "err", err, "gameserver_id", ev.GameServerID)
		return false
	}
	if !notify {
		return false
	}

	l.logger.Warn("RATE_LIMIT_EXCEEDED",
		"domain_id", ev.DomainID,
		"gameserver_id", ev.GameServerID,
		"event_type", ev.Type,
	)

	if err := l.recorder.CreateEvent(ctx, model.EventRecord{
		EventName:    model.EventNameRateLimitExceeded,
		GameServerID: ev.GameServerID,
		DomainID:     ev.DomainID,
		Meta: map[string]any{
			"eventType": string(ev.Type),
			"message":   fmt.Sprintf("Rate limit exceeded for %s events, further events are dropped", ev.Type),
		},
	}); err != nil {
		l.logger.Error("RATE_LIMIT_EVENT_FAILED", "err", err, "gameserver_id", ev.GameServerID)
	}

	return false
}

// ClearDomainConfigCache must be called when an operator changes the domain's
// settings. It drops the domain config and every limiter of that domain.
func (l *EventLimiter) ClearDomainConfigCache(domainID string) {
	l.domains.Invalidate(domainID)

	prefix := domainID + ":"
	for _, k := range l.limiters.Keys() {
		if strings.HasPrefix(k, prefix) {
			l.limiters.Remove(k)
		}
	}
}

// Sweep drops every cached limiter and domain config.
func (l *EventLimiter) Sweep() {
	l.limiters.Purge()
	l.domains.Purge()
}

// RunSweep clears the caches on every tick until ctx is done.
func (l *EventLimiter) RunSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
			l.logger.Debug("RATE_LIMIT_CACHE_SWEPT")
		}
	}
}
