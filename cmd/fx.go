package cmd

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	"github.com/gettakaro/takaro-worker/config"
	"github.com/gettakaro/takaro-worker/infra/counter"
	"github.com/gettakaro/takaro-worker/infra/docker"
	httpsrv "github.com/gettakaro/takaro-worker/infra/server/http"
	"github.com/gettakaro/takaro-worker/internal/adapter/connector"
	"github.com/gettakaro/takaro-worker/internal/adapter/takaro"
	"github.com/gettakaro/takaro-worker/internal/domain/registry"
	httphandler "github.com/gettakaro/takaro-worker/internal/handler/http"
	"github.com/gettakaro/takaro-worker/internal/handler/queue"
	"github.com/gettakaro/takaro-worker/internal/service"
	"github.com/gettakaro/takaro-worker/internal/service/executor"
	"github.com/gettakaro/takaro-worker/internal/service/ingest"
	"github.com/gettakaro/takaro-worker/internal/service/ratelimit"
	"github.com/gettakaro/takaro-worker/internal/service/scheduler"
)

// NewApp wires the worker. Lifecycle hooks run in module order: the queue
// router is running before bootstrap connects any game server.
func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogExport,
			ProvideLogger,
			ProvideWatermillLogger,
			ProvideTracerProvider,
			ProvidePubSub,
			ProvideSandbox,
		),
		fx.WithLogger(ProvideFxLogger),
		fx.Invoke(RegisterLogExportShutdown),
		fx.Invoke(WatchConfig),
		fx.Invoke(func(*sdktrace.TracerProvider) {}),

		bindings,

		counter.Module,
		docker.Module,
		takaro.Module,
		connector.Module,
		ratelimit.Module,
		executor.Module,
		ingest.Module,
		queue.Module,
		registry.Module,
		scheduler.Module,
		service.Module,
		httphandler.Module,
		httpsrv.Module,
	)
}
