package http

import (
	"net/http"

	"go.uber.org/fx"

	"github.com/gettakaro/takaro-worker/config"
)

var Module = fx.Module("http-handler",
	fx.Provide(
		NewHandler,
		func(cfg *config.Config, h *Handler) http.Handler {
			return h.Routes(cfg.HTTP.CORSOrigins, cfg.HTTP.Token)
		},
	),
)
