package cmd

import (
	"go.uber.org/fx"

	"github.com/gettakaro/takaro-worker/internal/adapter/pubsub"
	"github.com/gettakaro/takaro-worker/internal/adapter/takaro"
	"github.com/gettakaro/takaro-worker/internal/domain/registry"
	"github.com/gettakaro/takaro-worker/internal/handler/queue"
	"github.com/gettakaro/takaro-worker/internal/service"
	"github.com/gettakaro/takaro-worker/internal/service/executor"
	"github.com/gettakaro/takaro-worker/internal/service/ingest"
	"github.com/gettakaro/takaro-worker/internal/service/ratelimit"
	"github.com/gettakaro/takaro-worker/internal/service/scheduler"
)

// [CLEAN_INJECTION] each consumer declares the narrow interface it needs;
// the concrete adapters are bound to them here.
var bindings = fx.Options(
	// platform API
	fx.Provide(
		func(c *takaro.Client) ratelimit.DomainConfigs { return c },
		func(c *takaro.Client) ratelimit.EventRecorder { return c },
		func(c *takaro.Client) executor.FunctionSource { return c },
		func(c *takaro.Client) executor.EventRecorder { return c },
		func(c *takaro.Client) executor.Messenger { return c },
		func(c *takaro.Client) ingest.Catalog { return c },
		func(c *takaro.Client) ingest.PlayerResolver { return c },
		func(c *takaro.Client) ingest.PrefixSource { return c },
		func(c *takaro.Client) ingest.EventRecorder { return c },
		func(c *takaro.Client) ingest.Messenger { return c },
		func(c *takaro.Client) scheduler.CronjobSource { return c },
		func(c *takaro.Client) service.Catalog { return c },
	),

	// rate limiting
	fx.Provide(
		func(l *ratelimit.ExecutionLimiter) executor.Limiter { return l },
		func(l *ratelimit.EventLimiter) registry.Admission { return l },
		func(l *ratelimit.EventLimiter) service.CacheClearer { return l },
	),

	// queue producers
	fx.Provide(
		func(d pubsub.JobDispatcher) registry.Enqueuer { return d },
		func(d pubsub.JobDispatcher) ingest.Enqueuer { return d },
		func(d pubsub.JobDispatcher) scheduler.Enqueuer { return d },
	),

	// queue consumers
	fx.Provide(
		func(w *ingest.Worker) queue.Ingester { return w },
		func(e *executor.Executor) queue.ExhaustedRecorder { return e },
	),
)
