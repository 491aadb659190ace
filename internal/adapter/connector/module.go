// Package connector registers the game server connectors this worker ships with.
package connector

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/gettakaro/takaro-worker/infra/docker"
	"github.com/gettakaro/takaro-worker/internal/adapter/connector/dockerlog"
	"github.com/gettakaro/takaro-worker/internal/adapter/connector/ws"
	domain "github.com/gettakaro/takaro-worker/internal/domain/connector"
	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

var Module = fx.Module("connectors",
	fx.Provide(NewRegistry),
)

// NewRegistry wires every known game type to its emitter factory.
func NewRegistry(dockerClient *docker.Client, logger *slog.Logger) *domain.Registry {
	r := domain.NewRegistry()

	r.Register(ws.GameType, func(gs model.GameServer) (domain.Emitter, error) {
		return ws.New(gs, logger)
	})

	for gameType := range dockerlog.Parsers {
		r.Register(gameType, func(gs model.GameServer) (domain.Emitter, error) {
			return dockerlog.New(dockerClient, gs, logger)
		})
	}

	logger.Debug("CONNECTORS_REGISTERED", "types", r.Types())
	return r
}
