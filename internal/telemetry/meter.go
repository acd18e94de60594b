// Package telemetry метрики сервера синхронизации (OpenTelemetry с экспортом в Prometheus)
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterProviderOption настройка провайдера метрик
type MeterProviderOption func(*meterProviderConfig)

type meterProviderConfig struct {
	enabled bool
}

// WithMetricsEnabled включает экспорт метрик
func WithMetricsEnabled(enabled bool) MeterProviderOption {
	return func(cfg *meterProviderConfig) {
		cfg.enabled = enabled
	}
}

// MeterProvider провайдер метрик и обработчик /metrics для него
type MeterProvider struct {
	metric.MeterProvider
	handler  http.Handler
	shutdown func(context.Context) error
}

// NewMeterProvider создает провайдер с Prometheus-экспортером.
// При выключенных метриках возвращается no-op провайдер без обработчика.
func NewMeterProvider(opts ...MeterProviderOption) (*MeterProvider, error) {
	cfg := &meterProviderConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if !cfg.enabled {
		return &MeterProvider{
			MeterProvider: noop.NewMeterProvider(),
			shutdown:      func(context.Context) error { return nil },
		}, nil
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	return &MeterProvider{
		MeterProvider: mp,
		handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		shutdown:      mp.Shutdown,
	}, nil
}

// Handler возвращает обработчик /metrics или nil, если метрики выключены
func (p *MeterProvider) Handler() http.Handler {
	return p.handler
}

func (p *MeterProvider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}
