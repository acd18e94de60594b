package sync

import (
	"context"
	"time"

	"golang.org/x/exp/slog"

	"possync/internal/domain/schema"
)

// Servicer интерфейс сервиса синхронизации
type Servicer interface {
	// ProcessBatch применяет пакет изменений устройства в одной транзакции
	ProcessBatch(ctx context.Context, req SyncBatchRequest) (*SyncBatchResponse, error)

	// PullChanges возвращает изменения клиента после req.Since
	PullChanges(ctx context.Context, req PullChangesRequest) (*PullChangesResponse, error)

	// ResolveConflict применяет выбранную сторону ранее возвращенного конфликта
	ResolveConflict(ctx context.Context, req ResolveConflictRequest) error

	// Diagnostics возвращает сводку по журналу и числу строк
	Diagnostics(ctx context.Context, tenant Tenant) (*DiagnosticsResponse, error)
}

// Service реализация сервиса синхронизации
type Service struct {
	repo       Repository
	registry   *schema.Registry
	translator Translator
	log        *slog.Logger
	metrics    Recorder
	now        func() time.Time
}

// Option настройка сервиса
type Option func(*Service)

// WithClock подменяет часы сервера
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithMetrics подключает запись метрик
func WithMetrics(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// NewService создает новый сервис синхронизации
func NewService(repo Repository, registry *schema.Registry, translator Translator, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		registry:   registry,
		translator: translator,
		log:        log.With("component", "sync"),
		metrics:    noopRecorder{},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// stamp возвращает новое серверное время изменения строки.
// Оно строго больше прежнего значения строки и предыдущей отметки пакета.
func (s *Service) stamp(prev ...time.Time) time.Time {
	ts := s.now().UTC().Truncate(time.Microsecond)
	for _, p := range prev {
		if !ts.After(p) {
			ts = p.Add(time.Microsecond)
		}
	}
	return ts
}

// columns отбрасывает служебные колонки из результата переводчика
func columns(translated map[string]any) map[string]any {
	out := make(map[string]any, len(translated))
	for k, v := range translated {
		if schema.IsMetadataColumn(k) {
			continue
		}
		out[k] = v
	}
	return out
}
