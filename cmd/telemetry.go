package cmd

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	"github.com/gettakaro/takaro-worker/config"
)

func telemetryResource() (*resource.Resource, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.namespace", ServiceNamespace),
		attribute.String("service.version", version),
	))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}
	return res, nil
}

// ProvideTracerProvider installs the global tracer provider used by the
// executor spans. Spans are exported over OTLP/HTTP when otel.endpoint is set.
func ProvideTracerProvider(lc fx.Lifecycle, cfg *config.Config) (*sdktrace.TracerProvider, error) {
	res, err := telemetryResource()
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	}
	if cfg.OTel.Endpoint != "" {
		exOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTel.Endpoint)}
		if cfg.OTel.Insecure {
			exOpts = append(exOpts, otlptracehttp.WithInsecure())
		}
		// the exporter connects lazily; this ctx only covers construction
		exporter, err := otlptracehttp.New(context.Background(), exOpts...)
		if err != nil {
			return nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: tp.Shutdown,
	})
	return tp, nil
}

// LogExport owns the OTLP log pipeline. It is empty unless log.otel is set.
type LogExport struct {
	provider *sdklog.LoggerProvider
}

func (e *LogExport) Enabled() bool {
	return e != nil && e.provider != nil
}

// Shutdown flushes buffered records. It is the last stop hook so shutdown
// logs of every other component still get out.
func (e *LogExport) Shutdown(ctx context.Context) error {
	if !e.Enabled() {
		return nil
	}
	return e.provider.Shutdown(ctx)
}

// ProvideLogExport builds the batch log pipeline and registers it as the
// global logger provider.
func ProvideLogExport(cfg *config.Config) (*LogExport, error) {
	if !cfg.Log.OTel {
		return &LogExport{}, nil
	}

	res, err := telemetryResource()
	if err != nil {
		return nil, err
	}

	exOpts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.OTel.Endpoint)}
	if cfg.OTel.Insecure {
		exOpts = append(exOpts, otlploghttp.WithInsecure())
	}
	exporter, err := otlploghttp.New(context.Background(), exOpts...)
	if err != nil {
		return nil, fmt.Errorf("otlp log exporter: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(lp)

	return &LogExport{provider: lp}, nil
}

// RegisterLogExportShutdown runs first among the invokes, so its stop hook
// runs after everything else has stopped.
func RegisterLogExportShutdown(lc fx.Lifecycle, export *LogExport) {
	lc.Append(fx.Hook{OnStop: export.Shutdown})
}
