package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/gettakaro/takaro-worker/infra/counter"
)

const executionWindow = time.Minute

// ExecutionLimiter caps sandbox invocations per domain regardless of trigger
// type. It shares the store with EventLimiter but never its keys.
type ExecutionLimiter struct {
	store         counter.Store
	domains       *DomainCache
	logger        *slog.Logger
	defaultPoints func() int
}

func NewExecutionLimiter(store counter.Store, domains *DomainCache, logger *slog.Logger, defaultPoints func() int) *ExecutionLimiter {
	return &ExecutionLimiter{
		store:         store,
		domains:       domains,
		logger:        logger,
		defaultPoints: defaultPoints,
	}
}

// Consume takes one execution token for the domain. A store failure admits
// the execution; Remaining is -1 when the budget is unknown.
func (l *ExecutionLimiter) Consume(ctx context.Context, domainID string) (counter.Decision, error) {
	points := l.defaultPoints()

	domain, err := l.domains.Get(ctx, domainID)
	if err != nil {
		// [FALLBACK] keep the cap with the default budget rather than skipping it
		l.logger.Warn("EXECUTION_LIMIT_DOMAIN_FALLBACK", "domain_id", domainID, "err", err)
	} else if domain.ExecutionRateLimit > 0 {
		points = domain.ExecutionRateLimit
	}

	decision, err := l.store.Take(ctx, "exec:"+domainID, points, executionWindow)
	if err != nil {
		// [FAIL_OPEN] store errors admit
		l.logger.Warn("EXECUTION_LIMIT_STORE_FAILED", "domain_id", domainID, "err", err)
		return counter.Decision{Allowed: true, Remaining: -1}, nil
	}
	return decision, nil
}
