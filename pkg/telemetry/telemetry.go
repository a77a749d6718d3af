// Package telemetry installs the OpenTelemetry tracer provider that receives
// the spans opened by index population and plan execution.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/orneryd/matrixgraph/pkg/config"
)

// ErrUnknownExporter is returned for an exporter name Init does not know.
var ErrUnknownExporter = errors.New("unknown trace exporter")

// Options configures Init.
type Options struct {
	ServiceVersion string
	// Writer receives stdout exporter output. Defaults to os.Stderr so
	// spans never mix with command output.
	Writer io.Writer
	// Sync exports every span as it ends instead of batching.
	Sync bool
}

// Init installs a global TracerProvider for cfg.Exporter and returns the
// function that flushes and stops it. With exporter "none" nothing is
// installed and shutdown is a no-op.
//
// Example:
//
//	shutdown, err := telemetry.Init(ctx, cfg.Tracing, telemetry.Options{ServiceVersion: version})
//	if err != nil {
//		return err
//	}
//	defer shutdown(context.Background())
func Init(ctx context.Context, cfg config.TracingConfig, opts Options) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "", "none":
		return noop, nil
	case "stdout":
		w := opts.Writer
		if w == nil {
			w = os.Stderr
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	case "otlp":
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, grpcOpts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", cfg.Exporter, err)
	}

	res := resource.NewWithAttributes("",
		attribute.String("service.name", "matrixgraph"),
		attribute.String("service.version", opts.ServiceVersion),
	)
	export := sdktrace.WithBatcher(exporter)
	if opts.Sync {
		export = sdktrace.WithSyncer(exporter)
	}
	tp := sdktrace.NewTracerProvider(export, sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
