package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/zapr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/thesipincafe/site-e2e/e2e/framework/config"
)

const instrumentationName = "sipincafe-site-e2e"

// Telemetry wraps OTel tracer and meter plus shared metrics instruments.
type Telemetry struct {
	enabled          bool
	tracer           trace.Tracer
	meter            metric.Meter
	scenarioCounter  metric.Int64Counter
	scenarioDuration metric.Float64Histogram
	stepCounter      metric.Int64Counter
	stepDuration     metric.Float64Histogram
	assertionCounter metric.Int64Counter
}

// Disabled returns a no-op telemetry handle.
func Disabled() *Telemetry {
	return &Telemetry{}
}

// Init configures OpenTelemetry exporters and providers.
func Init(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Telemetry, func(context.Context) error, error) {
	enabled := cfg.OTelEnabled || strings.TrimSpace(cfg.OTelEndpoint) != ""
	if !enabled {
		return Disabled(), func(context.Context) error { return nil }, nil
	}
	if strings.TrimSpace(cfg.OTelEndpoint) == "" {
		return nil, nil, fmt.Errorf("otel endpoint required when telemetry is enabled")
	}

	otel.SetLogger(zapr.NewLogger(logger.Named("otel")))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn("otel export failed", zap.Error(err))
	}))

	headers := parseKeyValueList(cfg.OTelHeaders)
	metricExporter, err := newMetricExporter(ctx, cfg, headers)
	if err != nil {
		return nil, nil, err
	}
	traceExporter, err := newTraceExporter(ctx, cfg, headers)
	if err != nil {
		return nil, nil, err
	}

	res, err := resource.New(ctx, resource.WithFromEnv(), resource.WithAttributes(buildResourceAttributes(cfg)...))
	if err != nil {
		return nil, nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)

	t := newTelemetry(tracerProvider.Tracer(instrumentationName), meterProvider.Meter(instrumentationName))

	shutdown := func(ctx context.Context) error {
		return errors.Join(tracerProvider.Shutdown(ctx), meterProvider.Shutdown(ctx))
	}

	logger.Info("otel enabled", zap.String("endpoint", cfg.OTelEndpoint))
	return t, shutdown, nil
}

func newTelemetry(tracer trace.Tracer, meter metric.Meter) *Telemetry {
	scenarioCounter, _ := meter.Int64Counter("site_e2e.scenarios")
	scenarioDuration, _ := meter.Float64Histogram("site_e2e.scenario.duration", metric.WithUnit("s"))
	stepCounter, _ := meter.Int64Counter("site_e2e.steps")
	stepDuration, _ := meter.Float64Histogram("site_e2e.step.duration", metric.WithUnit("s"))
	assertionCounter, _ := meter.Int64Counter("site_e2e.assertions")
	return &Telemetry{
		enabled:          true,
		tracer:           tracer,
		meter:            meter,
		scenarioCounter:  scenarioCounter,
		scenarioDuration: scenarioDuration,
		stepCounter:      stepCounter,
		stepDuration:     stepDuration,
		assertionCounter: assertionCounter,
	}
}

// Enabled reports whether telemetry is active.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.enabled
}

// StartSpan starts a new span with string attributes.
func (t *Telemetry) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, trace.Span) {
	if !t.Enabled() {
		return ctx, nil
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(toAttributes(attrs)...))
}

// MarkSpan sets span status, records errors, adds attributes and ends the span.
func (t *Telemetry) MarkSpan(span trace.Span, status string, err error, attrs map[string]string) {
	if !t.Enabled() || span == nil {
		return
	}
	if len(attrs) > 0 {
		span.SetAttributes(toAttributes(attrs)...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, status)
	}
	span.End()
}

// RecordScenario records metrics for a scenario verdict.
func (t *Telemetry) RecordScenario(status string, duration time.Duration, attrs map[string]string) {
	if !t.Enabled() {
		return
	}
	kvs := toAttributes(withStatus(status, attrs))
	t.scenarioCounter.Add(context.Background(), 1, metric.WithAttributes(kvs...))
	t.scenarioDuration.Record(context.Background(), duration.Seconds(), metric.WithAttributes(kvs...))
}

// RecordStep records metrics for a step.
func (t *Telemetry) RecordStep(status string, duration time.Duration, attrs map[string]string) {
	if !t.Enabled() {
		return
	}
	kvs := toAttributes(withStatus(status, attrs))
	t.stepCounter.Add(context.Background(), 1, metric.WithAttributes(kvs...))
	t.stepDuration.Record(context.Background(), duration.Seconds(), metric.WithAttributes(kvs...))
}

// RecordAssertion counts one recorded assertion.
func (t *Telemetry) RecordAssertion(passed bool, attrs map[string]string) {
	if !t.Enabled() {
		return
	}
	status := "failed"
	if passed {
		status = "passed"
	}
	t.assertionCounter.Add(context.Background(), 1, metric.WithAttributes(toAttributes(withStatus(status, attrs))...))
}

func withStatus(status string, attrs map[string]string) map[string]string {
	out := map[string]string{"status": status}
	for key, value := range attrs {
		out[key] = value
	}
	return out
}

func newMetricExporter(ctx context.Context, cfg *config.Config, headers map[string]string) (sdkmetric.Exporter, error) {
	options := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTelEndpoint)}
	if cfg.OTelInsecure {
		options = append(options, otlpmetricgrpc.WithInsecure())
	}
	if len(headers) > 0 {
		options = append(options, otlpmetricgrpc.WithHeaders(headers))
	}
	return otlpmetricgrpc.New(ctx, options...)
}

func newTraceExporter(ctx context.Context, cfg *config.Config, headers map[string]string) (sdktrace.SpanExporter, error) {
	options := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTelEndpoint)}
	if cfg.OTelInsecure {
		options = append(options, otlptracegrpc.WithInsecure())
	}
	if len(headers) > 0 {
		options = append(options, otlptracegrpc.WithHeaders(headers))
	}
	return otlptracegrpc.New(ctx, options...)
}

func buildResourceAttributes(cfg *config.Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(defaultIfEmpty(cfg.OTelServiceName, instrumentationName)),
		attribute.String("e2e.run_id", cfg.RunID),
		attribute.String("site.base_url", cfg.BaseURL),
		attribute.String("browser.engine", cfg.Browser),
	}
	for key, value := range parseKeyValueList(cfg.OTelResourceAttrs) {
		attrs = append(attrs, attribute.String(key, value))
	}
	return attrs
}

func parseKeyValueList(value string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(value, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		out[key] = strings.TrimSpace(val)
	}
	return out
}

func toAttributes(attrs map[string]string) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for key, value := range attrs {
		kvs = append(kvs, attribute.String(key, value))
	}
	return kvs
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
