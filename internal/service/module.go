package service

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		fx.Annotate(
			NewGameServerService,
			fx.As(new(GameServers)),
		),
	),

	// [DECORATION_LAYER] Intercept GameServers to add cross-cutting concerns
	fx.Decorate(func(orig GameServers, logger *slog.Logger) GameServers {
		return NewGameServersMiddleware(orig, logger)
	}),

	// bootstrap runs in the background; connecting many servers may take a while
	fx.Invoke(func(lc fx.Lifecycle, s GameServers) {
		ctx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() { _ = s.Bootstrap(ctx) }()
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	}),
)
