//приём пакетов изменений от POS-устройств;
//выдача изменений сервера с пагинацией по времени;
//разрешение конфликтов и диагностика очереди.

//GET  /api/v1/health                  # Проверка (публичный)
//POST /api/v1/sync/push               # Пакет изменений (auth)
//POST /api/v1/sync/pull               # Изменения сервера (auth)
//POST /api/v1/sync/conflicts/resolve  # Разрешение конфликта (auth)
//GET  /api/v1/sync/diagnostics        # Диагностика (auth)
//GET  /metrics                        # Prometheus

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/exp/slog"

	"possync/internal/app/server/api/http/health"
	"possync/internal/app/server/api/http/middleware"
	"possync/internal/app/server/api/http/middleware/auth"
	"possync/internal/app/server/api/http/middleware/logger"
	syncAPI "possync/internal/app/server/api/http/sync"
	"possync/internal/domain/sync"
	"possync/internal/telemetry"
)

// Deps зависимости HTTP API
type Deps struct {
	Sync   sync.Servicer
	DB     health.Pinger
	Tokens map[string]string
	// HTTPMetrics и MetricsHandler могут быть nil, если метрики выключены
	HTTPMetrics    *telemetry.HTTPMetrics
	MetricsHandler http.Handler
}

type Handlers struct {
	Health *health.Handler
	Sync   *syncAPI.Handler
}

// New создает *chi.Mux с ВСЕМИ операциями через huma.Register
func New(deps Deps, log *slog.Logger) (*chi.Mux, error) {
	mux := chi.NewMux()
	mux.Use(chimw.Recoverer)

	mux.Use(deps.HTTPMetrics.Middleware)
	if deps.MetricsHandler != nil {
		mux.Handle("/metrics", deps.MetricsHandler)
	}

	config := huma.DefaultConfig("POS Sync API", "1.0.0")
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {Type: "http", Scheme: "bearer"},
	}

	API := humachi.New(mux, config)

	h, err := handlers(API, deps, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build handlers: %w", err)
	}
	h.Health.SetupRoutes(API)
	h.Sync.SetupRoutes(API)

	return mux, nil
}

func handlers(API huma.API, deps Deps, log *slog.Logger) (*Handlers, error) {
	if deps.Sync == nil {
		return nil, errors.New("sync service is required")
	}

	authMW := auth.New(API, deps.Tokens, log)
	if !authMW.Enabled() {
		log.Warn("No device tokens configured, sync endpoints are not authenticated")
	}
	loggerMW := logger.New(log)
	middlewares := middleware.NewContainer()

	middlewares.Add(loggerMW.Middleware())
	healthHandler := health.NewHandler(deps.DB, log, middlewares.GetAllAndClear())

	middlewares.Add(loggerMW.Middleware(), authMW.Middleware())
	syncHandler := syncAPI.NewHandler(deps.Sync, log, middlewares.GetAllAndClear())

	return &Handlers{
		Health: healthHandler,
		Sync:   syncHandler,
	}, nil
}
