package executor

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/gettakaro/takaro-worker/config"
	"github.com/gettakaro/takaro-worker/infra/sandbox"
)

var Module = fx.Module("executor",
	fx.Provide(
		func(cfg *config.Config, functions FunctionSource, recorder EventRecorder, messenger Messenger, limiter Limiter, sb sandbox.Sandbox, logger *slog.Logger) *Executor {
			return New(functions, recorder, messenger, limiter, sb, logger, cfg.Execution.Timeout, cfg.Execution.EnvURL)
		},
		func(e *Executor) Runner { return e },
	),

	// [DECORATION_LAYER] Intercept Runner to add cross-cutting concerns
	fx.Decorate(func(orig Runner, logger *slog.Logger) Runner {
		return NewRunnerMiddleware(orig, logger)
	}),
)
