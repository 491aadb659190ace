package registry

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/gettakaro/takaro-worker/internal/domain/connector"
)

var Module = fx.Module("registry",
	fx.Provide(
		NewForwarder,
		// [CLEAN_INJECTION] Configure the manager using Functional Options
		func(emitters *connector.Registry, f *Forwarder, logger *slog.Logger) *GameServerManager {
			return NewGameServerManager(emitters, f.Forward, logger,
				WithStopTimeout(5*time.Second),
				WithStartTimeout(30*time.Second),
			)
		},
		func(m *GameServerManager) Manager { return m },
	),
	fx.Invoke(func(lc fx.Lifecycle, m Manager) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return m.Destroy(ctx)
			},
		})
	}),
)
