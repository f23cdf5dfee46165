// Package tracing installs the OpenTelemetry tracer provider used by the
// coordinator, the upstream client, the API and the sqlite ledger.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"

	"gitlab.com/nunet/nosana-node-monitor/internal/config"
)

var ServiceName = "nosana-node-monitor"

// InitTracer exports spans to the OTLP/gRPC collector named in cfg. With no
// endpoint configured the global no-op provider stays in place. The returned
// function flushes and shuts the exporter down.
func InitTracer(ctx context.Context, cfg config.Tracing, node string) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	secureOption := otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, ""))
	if cfg.Insecure {
		secureOption = otlptracegrpc.WithInsecure()
	}

	exporter, err := otlptrace.New(
		ctx,
		otlptracegrpc.NewClient(
			secureOption,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	resources, err := resource.New(
		ctx,
		resource.WithAttributes(
			attribute.String("service.name", ServiceName),
			attribute.String("library.language", "go"),
			attribute.String("nosana.node", node),
		),
	)
	if err != nil {
		zlog.Sugar().Warnf("could not set trace resources: %v", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resources),
	)
	otel.SetTracerProvider(tp)
	// flushes batched spans, then closes the exporter
	return tp.Shutdown, nil
}
