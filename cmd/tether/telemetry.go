package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	metricsdk "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"sutext.github.io/tether/xlog"
)

type telemetry struct {
	traceProvider *tracesdk.TracerProvider
	meterProvider *metricsdk.MeterProvider
}

// setupTelemetry installs global OTLP trace and meter providers. With otel
// disabled it returns an empty telemetry whose Shutdown does nothing.
func setupTelemetry(ctx context.Context, conf otelConfig, role string) (*telemetry, error) {
	t := &telemetry{}
	if !conf.Enabled {
		return t, nil
	}
	r, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(conf.ServiceName),
		semconv.ServiceVersion(version),
		semconv.ServiceNamespace(role),
		semconv.ServiceInstanceID(uuid.NewString()),
	))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(conf.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	t.traceProvider = tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(traceExporter),
		tracesdk.WithResource(r),
	)
	otel.SetTracerProvider(t.traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(conf.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithTimeout(5*time.Second),
	)
	if err != nil {
		return nil, errors.Join(err, t.traceProvider.Shutdown(ctx))
	}
	t.meterProvider = metricsdk.NewMeterProvider(
		metricsdk.WithReader(metricsdk.NewPeriodicReader(metricExporter,
			metricsdk.WithInterval(conf.Interval),
			metricsdk.WithTimeout(5*time.Second),
		)),
		metricsdk.WithResource(r),
	)
	otel.SetMeterProvider(t.meterProvider)
	xlog.Info("otel initialized", xlog.Str("otlpEndpoint", conf.OTLPEndpoint))
	return t, nil
}

func (t *telemetry) Shutdown(ctx context.Context) (err error) {
	if t.traceProvider != nil {
		if e := t.traceProvider.Shutdown(ctx); e != nil {
			xlog.Error("failed to shutdown tracer provider", xlog.Err(e))
			err = e
		}
	}
	if t.meterProvider != nil {
		if e := t.meterProvider.Shutdown(ctx); e != nil {
			xlog.Error("failed to shutdown meter provider", xlog.Err(e))
			err = e
		}
	}
	return err
}
