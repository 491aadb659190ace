package takaro

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/gettakaro/takaro-worker/config"
)

var Module = fx.Module("takaro",
	fx.Provide(func(cfg *config.Config, logger *slog.Logger) *Client {
		return New(cfg.Takaro.URL, cfg.Takaro.Token, cfg.Takaro.Timeout, logger)
	}),
)
