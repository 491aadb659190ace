package queue

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	"github.com/gettakaro/takaro-worker/config"
	infrapubsub "github.com/gettakaro/takaro-worker/infra/pubsub"
	"github.com/gettakaro/takaro-worker/internal/adapter/pubsub"
)

var Module = fx.Module("queue-handler",
	fx.Provide(
		NewTopology,
		func(t *Topology) pubsub.Topology { return t },
		func(provider infrapubsub.Provider, topology pubsub.Topology) pubsub.JobDispatcher {
			return pubsub.NewJobDispatcher(provider.Publisher(), topology)
		},
		NewHandler,
		NewRouter,
	),

	fx.Invoke(func(h *Handler, router *message.Router, provider infrapubsub.Provider, topology pubsub.Topology, cfg *config.Config, wlogger watermill.LoggerAdapter) error {
		return h.RegisterHandlers(router, provider, topology, cfg, wlogger)
	}),

	fx.Invoke(func(lc fx.Lifecycle, router *message.Router, logger *slog.Logger) {
		ctx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(startCtx context.Context) error {
				go func() {
					if err := router.Run(ctx); err != nil {
						logger.Error("QUEUE_ROUTER_STOPPED", "err", err)
					}
				}()
				// bootstrap publishes right after start; subscriptions must exist first
				select {
				case <-router.Running():
					return nil
				case <-startCtx.Done():
					return startCtx.Err()
				}
			},
			OnStop: func(context.Context) error {
				cancel()
				return router.Close()
			},
		})
	}),
)
