// Package observability wraps OpenTelemetry tracing for the scheduler's
// per-step spans, grounded 1:1 on the teacher's internal/observability
// (same Init/Tracer/StartSpan shape), retargeted from HTTP request
// tracing to coroutine-step tracing (spec §10 domain-stack wiring).
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config holds telemetry configuration (spec §9 ambient stack).
type Config struct {
	Enabled     bool
	Exporter    string // otlp-http, noop
	Endpoint    string // e.g. localhost:4318
	ServiceName string // e.g. purcd
	SampleRate  float64
}

// Provider wraps the OpenTelemetry TracerProvider for one process.
type Provider struct {
	tp      *sdktrace.TracerProvider
	tracer  trace.Tracer
	enabled bool
}

var global = &Provider{enabled: false, tracer: trace.NewNoopTracerProvider().Tracer("")}

// Init installs the process-wide tracer provider.
func Init(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		global = &Provider{enabled: false, tracer: trace.NewNoopTracerProvider().Tracer("")}
		return nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
	))
	if err != nil {
		return fmt.Errorf("observability: build resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "otlp-http", "otlp", "":
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return fmt.Errorf("observability: create otlp exporter: %w", err)
		}
		exporter = exp
	case "noop":
		exporter = &noopExporter{}
	default:
		return fmt.Errorf("observability: unknown exporter %q", cfg.Exporter)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate < 1.0 && cfg.SampleRate >= 0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	global = &Provider{tp: tp, tracer: tp.Tracer(cfg.ServiceName), enabled: true}
	return nil
}

// Shutdown drains and stops the tracer provider.
func Shutdown(ctx context.Context) error {
	if global.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return global.tp.Shutdown(ctx)
}

// Tracer returns the process-wide tracer.
func Tracer() trace.Tracer { return global.tracer }

// Enabled reports whether tracing is active.
func Enabled() bool { return global.enabled }

// StartStepSpan opens a "coroutine.step" span (spec §4.6
// "execute_one_step"). The scheduler opens one per time slice, covering
// every step the coroutine runs in it.
func StartStepSpan(ctx context.Context, coroutineID string, nextStep string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "coroutine.step",
		trace.WithAttributes(AttrCoroutineID.String(coroutineID), AttrNextStep.String(nextStep)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// SetSpanError marks span as failed with err.
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks span as succeeded.
func SetSpanOK(span trace.Span) { span.SetStatus(codes.Ok, "") }

// Common attribute keys for PurC spans.
var (
	AttrCoroutineID = attribute.Key("purc.coroutine.id")
	AttrNextStep    = attribute.Key("purc.next_step")
	AttrElement     = attribute.Key("purc.element")
	AttrInstanceID  = attribute.Key("purc.instance.id")
)

type noopExporter struct{}

func (e *noopExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error { return nil }
func (e *noopExporter) Shutdown(ctx context.Context) error                                   { return nil }
