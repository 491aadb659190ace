package ratelimit

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/gettakaro/takaro-worker/config"
	"github.com/gettakaro/takaro-worker/infra/counter"
)

var Module = fx.Module("ratelimit",
	fx.Provide(
		func(cfg *config.Config, source DomainConfigs) *DomainCache {
			return NewDomainCache(source, cfg.RateLimit.DomainCacheTTL)
		},
		func(cfg *config.Config, store counter.Store, domains *DomainCache, recorder EventRecorder, logger *slog.Logger) *EventLimiter {
			return NewEventLimiter(store, domains, recorder, logger, cfg.RateLimit.NotifyTTL)
		},
		func(cfg *config.Config, store counter.Store, domains *DomainCache, logger *slog.Logger) *ExecutionLimiter {
			return NewExecutionLimiter(store, domains, logger, cfg.DefaultExecutionPoints)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, l *EventLimiter) {
		ctx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go l.RunSweep(ctx, cfg.RateLimit.SweepInterval)
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	}),
)
