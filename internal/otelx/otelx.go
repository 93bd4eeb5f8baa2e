// Package otelx installs the process-wide tracer provider. Document store
// operations and HTTP requests are traced against whatever Init installs.
package otelx

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/keithlinneman/linnemanlabs-docs/internal/xerrors"
)

// the OTLP dial blocks without a deadline, the collector runs next to us
const dialTimeout = 3 * time.Second

type Options struct {
	Enabled  bool
	Endpoint string
	Insecure bool
	// Sample is the head sampling ratio for new traces, clamped to [0, 1].
	// Requests that arrive with a sampled parent are always kept.
	Sample  float64
	Service string
	Version string
	Env     string

	// Exporter replaces the OTLP exporter. Spans are then exported as they
	// end instead of in batches.
	Exporter sdktrace.SpanExporter
}

// Shutdown flushes pending spans. Init never returns a nil Shutdown.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Init installs a tracer provider and the W3C propagators. When tracing is
// disabled spans are still created, so trace ids reach the logs, but nothing
// is exported.
func Init(ctx context.Context, o Options) (Shutdown, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	if !o.Enabled {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		return noop, nil
	}

	var export sdktrace.TracerProviderOption
	if o.Exporter != nil {
		export = sdktrace.WithSyncer(o.Exporter)
	} else {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(o.Endpoint)}
		if o.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		exp, err := otlptracegrpc.New(dialCtx, opts...)
		if err != nil {
			return noop, xerrors.Wrapf(err, "otlp exporter for %s", o.Endpoint)
		}
		export = sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clampRatio(o.Sample)))),
		sdktrace.WithResource(serviceResource(ctx, o)),
		export,
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func serviceResource(ctx context.Context, o Options) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(o.Service),
		semconv.ServiceVersionKey.String(o.Version),
	}
	if o.Env != "" {
		attrs = append(attrs, attribute.String("deployment.environment", o.Env))
	}
	// detector errors are partial, the resource is still usable
	res, _ := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(attrs...),
	)
	return res
}

func clampRatio(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
