// Package telemetry configures OpenTelemetry tracing for the service.
//
// Spans are exported to stdout, which is enough to follow a trade through
// Create, Accept and Complete during local development.
package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// TracerConfig holds configuration for the tracer
type TracerConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string

	// SampleRate is the sampling rate (0.0 to 1.0); zero means sample everything
	SampleRate float64

	// Output receives exported spans; defaults to stdout
	Output io.Writer
}

// ShutdownFunc flushes pending spans
type ShutdownFunc func(context.Context) error

// InitTracer installs a global tracer provider. When tracing is disabled the
// global no-op provider stays in place and the returned shutdown does nothing.
func InitTracer(_ context.Context, config TracerConfig) (ShutdownFunc, error) {
	if !config.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if config.ServiceName == "" {
		config.ServiceName = "p2p-swap"
	}
	if config.SampleRate == 0 {
		config.SampleRate = 1.0
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create resource")
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(config.Output))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create stdout exporter")
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case config.SampleRate < 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
