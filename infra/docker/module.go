package docker

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
)

var Module = fx.Module("docker",
	fx.Provide(func(lc fx.Lifecycle, logger *slog.Logger) (*Client, error) {
		c, err := NewClient()
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				// the daemon is optional until a docker-backed feature is used
				if err := c.Ping(ctx); err != nil {
					logger.Warn("DOCKER_UNREACHABLE", "err", err)
				}
				return nil
			},
			OnStop: func(context.Context) error {
				return c.Close()
			},
		})
		return c, nil
	}),
)
