// ABOUTME: OpenTelemetry tracer and meter provider setup
// ABOUTME: Exports to stdout or to rotating JSON files; no-op when disabled

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Config controls telemetry export.
type Config struct {
	Enabled     bool
	ServiceName string
	Version     string
	// Dir receives traces.jsonl and metrics.jsonl. Empty writes to Stdout.
	Dir string
	// Stdout is used when Dir is empty; nil means os.Stdout.
	Stdout io.Writer
	// MetricInterval is the export period; zero means 10s.
	MetricInterval time.Duration
}

var stdout io.Writer = os.Stdout

// ShutdownFunc flushes and stops the providers.
type ShutdownFunc func(ctx context.Context) error

// Setup installs global tracer and meter providers. When disabled the
// global no-op providers are left in place and the returned shutdown does nothing.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	traceOut, metricOut, closers := writers(cfg)

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(traceOut))
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(metricOut))
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		errs := []error{tp.Shutdown(ctx), mp.Shutdown(ctx)}
		for _, c := range closers {
			errs = append(errs, c.Close())
		}
		return errors.Join(errs...)
	}, nil
}

func writers(cfg Config) (traces, metrics io.Writer, closers []io.Closer) {
	if cfg.Dir == "" {
		out := cfg.Stdout
		if out == nil {
			out = stdout
		}
		return out, out, nil
	}
	t := rotating(filepath.Join(cfg.Dir, "traces.jsonl"))
	m := rotating(filepath.Join(cfg.Dir, "metrics.jsonl"))
	return t, m, []io.Closer{t, m}
}

func rotating(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}
}
