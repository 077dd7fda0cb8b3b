// Package telemetry provides OpenTelemetry instrumentation for worksync.
//
// Telemetry is disabled by default and then uses no-op providers. When
// enabled, spans are pretty-printed to the configured writer (stderr unless
// overridden); metrics are exported there too when Stdout is set.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/cmtonkinson/worksync"

// Options configures the telemetry providers.
type Options struct {
	Enabled     bool
	Stdout      bool
	Writer      io.Writer
	ServiceName string
	Version     string
}

// Provider records coordination spans and counters.
type Provider struct {
	tracer   trace.Tracer
	shutdown []func(context.Context) error

	acquires  metric.Int64Counter
	releases  metric.Int64Counter
	integrate metric.Int64Counter
	mergeDur  metric.Float64Histogram
	refusals  metric.Int64Counter
}

// Noop returns a provider that records nothing.
func Noop() *Provider {
	p, _ := NewWithProviders(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	return p
}

// New builds a provider from opts. Disabled telemetry yields Noop().
func New(ctx context.Context, opts Options) (*Provider, error) {
	if !opts.Enabled {
		return Noop(), nil
	}
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}
	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "worksync"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", opts.Version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(writer), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(traceExp),
	)

	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if opts.Stdout {
		metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(writer))
		if err != nil {
			return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
		}
		metricOpts = append(metricOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(15*time.Second)),
		))
	}
	mp := sdkmetric.NewMeterProvider(metricOpts...)

	p, err := NewWithProviders(tp, mp)
	if err != nil {
		return nil, err
	}
	p.shutdown = append(p.shutdown, tp.Shutdown, mp.Shutdown)
	return p, nil
}

// NewWithProviders builds a provider over caller-owned OTel providers.
func NewWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) (*Provider, error) {
	m := mp.Meter(instrumentationScope)
	acquires, err := m.Int64Counter("worksync.lock.acquire",
		metric.WithDescription("Lock acquisitions by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: acquire counter: %w", err)
	}
	releases, err := m.Int64Counter("worksync.lock.release",
		metric.WithDescription("Lock releases"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: release counter: %w", err)
	}
	integrate, err := m.Int64Counter("worksync.merge.integrate",
		metric.WithDescription("Integration attempts by result kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: integrate counter: %w", err)
	}
	mergeDur, err := m.Float64Histogram("worksync.merge.duration",
		metric.WithDescription("Integration duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: merge histogram: %w", err)
	}
	refusals, err := m.Int64Counter("worksync.guard.refusals",
		metric.WithDescription("Deletions refused by the worktree guard"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: refusal counter: %w", err)
	}
	return &Provider{
		tracer:    tp.Tracer(instrumentationScope),
		acquires:  acquires,
		releases:  releases,
		integrate: integrate,
		mergeDur:  mergeDur,
		refusals:  refusals,
	}, nil
}

// Start opens a span for a coordination operation.
func (p *Provider) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RecordAcquire counts a lock acquisition attempt.
func (p *Provider) RecordAcquire(ctx context.Context, issueID, outcome string) {
	p.acquires.Add(ctx, 1, metric.WithAttributes(
		attribute.String("worksync.issue", issueID),
		attribute.String("worksync.outcome", outcome),
	))
}

// RecordRelease counts a lock release.
func (p *Provider) RecordRelease(ctx context.Context, issueID string) {
	p.releases.Add(ctx, 1, metric.WithAttributes(attribute.String("worksync.issue", issueID)))
}

// RecordIntegrate counts an integration attempt and its duration.
func (p *Provider) RecordIntegrate(ctx context.Context, kind string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("worksync.result", kind))
	p.integrate.Add(ctx, 1, attrs)
	p.mergeDur.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

// RecordRefusal counts a refused deletion.
func (p *Provider) RecordRefusal(ctx context.Context, reason string) {
	p.refusals.Add(ctx, 1, metric.WithAttributes(attribute.String("worksync.reason", reason)))
}

// Shutdown flushes and stops any providers created by New.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdown = nil
	return errors.Join(errs...)
}
