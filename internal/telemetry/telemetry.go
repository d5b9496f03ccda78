package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gmcstatus/internal/config"
	"gmcstatus/internal/logsink"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const serviceName = "gmcstatus"

// Shutdown flushes and stops everything Setup started.
type Shutdown func(context.Context) error

// Setup installs the default slog logger and, when configured, the blob log
// sink and the OTLP log and trace exporters.
func Setup(ctx context.Context, cfg config.LoggingConfig, stdout io.Writer) (Shutdown, error) {
	var (
		handlers  = []slog.Handler{consoleHandler(cfg.Format, stdout)}
		shutdowns []func(context.Context) error
	)
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		return errors.Join(errs...)
	}

	if cfg.Sink.Enabled() {
		sink, err := logsink.New(ctx, cfg.Sink)
		if err != nil {
			return shutdown, fmt.Errorf("failed to create log sink: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: slog.LevelInfo}))
		shutdowns = append(shutdowns, func(context.Context) error { return sink.Close() })
	}

	if cfg.OTLPEndpoint != "" {
		res := resource.NewSchemaless(attribute.String("service.name", serviceName))

		logExporter, err := otlploghttp.New(ctx)
		if err != nil {
			return shutdown, fmt.Errorf("failed to create otlp log exporter: %w", err)
		}
		lp := sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		)
		shutdowns = append(shutdowns, lp.Shutdown)
		handlers = append(handlers, otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(lp)))

		traceExporter, err := otlptracehttp.New(ctx)
		if err != nil {
			return shutdown, fmt.Errorf("failed to create otlp trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(traceExporter),
		)
		shutdowns = append(shutdowns, tp.Shutdown)
		otel.SetTracerProvider(tp)
	}

	var h slog.Handler = handlers[0]
	if len(handlers) > 1 {
		h = slog.NewMultiHandler(handlers...)
	}
	slog.SetDefault(slog.New(requestIDHandler{h}))
	return shutdown, nil
}

func consoleHandler(format string, w io.Writer) slog.Handler {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}
