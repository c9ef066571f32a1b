package instrumentation

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName is used when Config.ServiceName is empty.
	DefaultServiceName = "oauth-engine"

	// DefaultServiceVersion is the default service version used when none is provided
	DefaultServiceVersion = "unknown"

	// scopePrefix prefixes every meter and tracer name.
	scopePrefix = "github.com/giantswarm/oauth-engine/"
)

// Metric exporters.
const (
	ExporterNone       = "none"
	ExporterPrometheus = "prometheus"
)

// Config holds instrumentation configuration
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Enabled controls whether instrumentation is active. When false, no-op
	// providers are used.
	Enabled bool

	// LogClientIPs controls whether client IP addresses are attached to spans.
	// Client IPs may be personal data under GDPR.
	LogClientIPs bool

	// MetricsExporter selects where metrics go: ExporterPrometheus serves
	// them through MetricsHandler, ExporterNone (or empty) drops them.
	MetricsExporter string

	// OTLPEndpoint, when set, exports spans over OTLP/HTTP
	// (for example "http://collector:4318").
	OTLPEndpoint string

	// Resource allows custom resource attributes
	Resource *resource.Resource
}

// Instrumentation provides OpenTelemetry instrumentation components
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler

	metrics *Metrics

	// registered during New only
	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates a new instrumentation instance
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	res := config.Resource
	if res == nil {
		var err error
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:   config,
		resource: res,
	}

	if config.Enabled {
		if err := inst.initializeProviders(context.Background()); err != nil {
			_ = inst.Shutdown(context.Background())
			return nil, fmt.Errorf("failed to initialize providers: %w", err)
		}
	} else {
		inst.meterProvider = noop.NewMeterProvider()
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	metrics, err := newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	inst.metrics = metrics

	return inst, nil
}

func (i *Instrumentation) initializeProviders(ctx context.Context) error {
	switch i.config.MetricsExporter {
	case ExporterPrometheus:
		registry := prometheus.NewRegistry()
		exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry))
		if err != nil {
			return fmt.Errorf("start prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(i.resource),
			sdkmetric.WithReader(exporter),
		)
		i.meterProvider = mp
		i.metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		i.shutdownFuncs = append(i.shutdownFuncs, mp.Shutdown)
	case "", ExporterNone:
		i.meterProvider = noop.NewMeterProvider()
	default:
		return fmt.Errorf("unsupported metrics exporter %q", i.config.MetricsExporter)
	}

	if i.config.OTLPEndpoint == "" {
		i.tracerProvider = tracenoop.NewTracerProvider()
		return nil
	}
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(i.config.OTLPEndpoint))
	if err != nil {
		return fmt.Errorf("start trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(i.resource),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithBatcher(exporter),
	)
	i.tracerProvider = tp
	i.shutdownFuncs = append(i.shutdownFuncs, tp.Shutdown)
	return nil
}

// Shutdown flushes and stops every provider. Only the first call has effect.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var shutdownErr error
	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})
	return shutdownErr
}

// Meter returns a meter named after scope ("http", "server", "storage", "security").
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(scopePrefix + scope)
}

// Tracer returns a tracer named after scope.
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(scopePrefix + scope)
}

// Metrics returns the metrics holder for recording metric values
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// MetricsHandler serves the Prometheus exposition format. It returns a
// handler answering 404 unless the Prometheus exporter is configured.
func (i *Instrumentation) MetricsHandler() http.Handler {
	if i.metricsHandler == nil {
		return http.NotFoundHandler()
	}
	return i.metricsHandler
}

// TracerProvider returns the underlying tracer provider
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}

// MeterProvider returns the underlying meter provider
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// ShouldLogClientIPs returns whether client IP addresses should be logged
func (i *Instrumentation) ShouldLogClientIPs() bool {
	return i.config.LogClientIPs
}

// StorageSizeCallback returns the current number of records of one kind.
type StorageSizeCallback func() int64

// RegisterStorageSizeCallbacks wires gauge callbacks for in-process stores.
// Nil callbacks are skipped.
func (i *Instrumentation) RegisterStorageSizeCallbacks(codes, accessTokens, refreshTokens, deviceCodes StorageSizeCallback) error {
	m := i.metrics
	_, err := i.Meter("storage").RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			observe := func(g metric.Int64ObservableGauge, cb StorageSizeCallback) {
				if cb != nil {
					o.ObserveInt64(g, cb())
				}
			}
			observe(m.StorageCodesCount, codes)
			observe(m.StorageAccessTokensCount, accessTokens)
			observe(m.StorageRefreshTokensCount, refreshTokens)
			observe(m.StorageDeviceCodesCount, deviceCodes)
			return nil
		},
		m.StorageCodesCount,
		m.StorageAccessTokensCount,
		m.StorageRefreshTokensCount,
		m.StorageDeviceCodesCount,
	)
	return err
}
