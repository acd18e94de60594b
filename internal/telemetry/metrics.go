package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"possync/internal/domain/sync"
)

// SyncMetricsMeterName имя meter для метрик синхронизации
const SyncMetricsMeterName = "possync/sync"

var _ sync.Recorder = (*SyncMetrics)(nil)

// SyncMetrics инструменты метрик синхронизации. Nil-значение ничего не записывает.
type SyncMetrics struct {
	batchDuration metric.Float64Histogram
	records       metric.Int64Counter
	pulled        metric.Int64Counter
	resolutions   metric.Int64Counter
}

// NewSyncMetrics создает метрики синхронизации. Для nil provider возвращает nil.
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	batchDuration, err := meter.Float64Histogram(
		"possync_batch_duration_seconds",
		metric.WithDescription("Duration of push batch processing in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	records, err := meter.Int64Counter(
		"possync_records_total",
		metric.WithDescription("Pushed records by outcome"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	pulled, err := meter.Int64Counter(
		"possync_pulled_changes_total",
		metric.WithDescription("Changes returned to devices by pull"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, err
	}

	resolutions, err := meter.Int64Counter(
		"possync_conflict_resolutions_total",
		metric.WithDescription("Resolved conflicts by resolution"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		batchDuration: batchDuration,
		records:       records,
		pulled:        pulled,
		resolutions:   resolutions,
	}, nil
}

func (m *SyncMetrics) BatchProcessed(ctx context.Context, d time.Duration, synced, conflicts, failed int) {
	if m == nil {
		return
	}

	m.batchDuration.Record(ctx, d.Seconds())
	m.addRecords(ctx, "synced", synced)
	m.addRecords(ctx, "conflict", conflicts)
	m.addRecords(ctx, "error", failed)
}

func (m *SyncMetrics) addRecords(ctx context.Context, outcome string, n int) {
	if n == 0 {
		return
	}
	m.records.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *SyncMetrics) ChangesPulled(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.pulled.Add(ctx, int64(n))
}

func (m *SyncMetrics) ConflictResolved(ctx context.Context, resolution string) {
	if m == nil {
		return
	}
	m.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("resolution", resolution)))
}
