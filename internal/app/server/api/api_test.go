package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"possync/internal/domain/sync"
	"possync/internal/telemetry"
)

type stubService struct {
	sync.Servicer
}

func (stubService) Diagnostics(context.Context, sync.Tenant) (*sync.DiagnosticsResponse, error) {
	return &sync.DiagnosticsResponse{TablesStats: []sync.TableStats{}}, nil
}

func TestNew(t *testing.T) {
	provider, err := telemetry.NewMeterProvider(telemetry.WithMetricsEnabled(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	httpMetrics, err := telemetry.NewHTTPMetrics(provider)
	require.NoError(t, err)

	mux, err := New(Deps{
		Sync:           stubService{},
		Tokens:         map[string]string{"secret": "acme"},
		HTTPMetrics:    httpMetrics,
		MetricsHandler: provider.Handler(),
	}, slog.Default())
	require.NoError(t, err)

	tests := []struct {
		name       string
		path       string
		token      string
		wantStatus int
	}{
		{name: "health is public", path: "/api/v1/health", wantStatus: http.StatusOK},
		{name: "sync requires token", path: "/api/v1/sync/diagnostics?client_id=acme&branch_id=main", wantStatus: http.StatusUnauthorized},
		{name: "sync with token", path: "/api/v1/sync/diagnostics?client_id=acme&branch_id=main", token: "secret", wantStatus: http.StatusOK},
		{name: "foreign client", path: "/api/v1/sync/diagnostics?client_id=globex&branch_id=main", token: "secret", wantStatus: http.StatusForbidden},
		{name: "metrics", path: "/metrics", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "possync_http_requests"))
}

func TestNew_RequiresService(t *testing.T) {
	_, err := New(Deps{}, slog.Default())
	assert.Error(t, err)
}
