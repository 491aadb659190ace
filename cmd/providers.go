package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/gettakaro/takaro-worker/config"
	"github.com/gettakaro/takaro-worker/infra/docker"
	infrapubsub "github.com/gettakaro/takaro-worker/infra/pubsub"
	"github.com/gettakaro/takaro-worker/infra/sandbox"
	"github.com/gettakaro/takaro-worker/infra/sandbox/local"
	"github.com/gettakaro/takaro-worker/infra/sandbox/remote"
)

// ProvideLogger builds the process logger. With log.otel the records go to the
// OTLP log pipeline instead of stdout.
func ProvideLogger(cfg *config.Config, export *LogExport) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Log.Level))); err != nil {
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if export.Enabled() {
		handler = otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(export.provider))
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler).With(
		"service", ServiceName,
		"namespace", ServiceNamespace,
		"version", version,
	)
	slog.SetDefault(logger)
	return logger
}

func ProvideFxLogger(logger *slog.Logger) fxevent.Logger {
	l := &fxevent.SlogLogger{Logger: logger}
	l.UseLogLevel(slog.LevelDebug)
	return l
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger.With("component", "watermill"))
}

func ProvidePubSub(lc fx.Lifecycle, cfg *config.Config, wlogger watermill.LoggerAdapter) (infrapubsub.Provider, error) {
	p, err := infrapubsub.NewProvider(cfg, wlogger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return p.Close() },
	})
	return p, nil
}

// ProvideSandbox picks the execution strategy once, at start-up.
func ProvideSandbox(cfg *config.Config, dockerClient *docker.Client, logger *slog.Logger) (sandbox.Sandbox, error) {
	switch cfg.Execution.Mode {
	case "local":
		return local.New(logger), nil
	case "remote":
		return remote.New(dockerClient, cfg.Execution.Remote.Container, cfg.Execution.Remote.Command, logger), nil
	default:
		return nil, fmt.Errorf("unknown execution mode %q", cfg.Execution.Mode)
	}
}

// WatchConfig applies live-safe config changes from the config file.
func WatchConfig(cfg *config.Config, logger *slog.Logger) {
	cfg.Watch(logger)
}
