package scheduler

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/gettakaro/takaro-worker/config"
	"github.com/gettakaro/takaro-worker/internal/domain/registry"
)

var Module = fx.Module("scheduler",
	fx.Provide(
		func(cfg *config.Config, manager registry.Manager, cronjobs CronjobSource, queue Enqueuer, logger *slog.Logger) *Scheduler {
			return New(manager, cronjobs, queue, logger, cfg.Scheduler.Interval)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, s *Scheduler) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					defer close(done)
					s.Run(ctx)
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				select {
				case <-done:
					return nil
				case <-stopCtx.Done():
					return stopCtx.Err()
				}
			},
		})
	}),
)
