package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/exp/slog"

	"possync/internal/app/client/config"
	"possync/internal/domain/sync"
)

const maxAttempts = 3

// APIError ответ сервера с кодом ошибки
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Detail)
}

// retryable сообщает, что запрос можно повторить
func (e *APIError) retryable() bool {
	switch e.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// HTTPClient клиент API синхронизации
type HTTPClient struct {
	client    *http.Client
	log       *slog.Logger
	baseURL   string
	token     string
	userAgent string
	backOff   func() backoff.BackOff
}

func NewHTTPClient(cfg *config.Config, log *slog.Logger) *HTTPClient {
	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 10,
		},
	}

	baseURL := strings.TrimRight(cfg.Server, "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}

	return &HTTPClient{
		client:    client,
		log:       log.With("component", "http_client"),
		baseURL:   baseURL,
		token:     cfg.Token,
		userAgent: "possync-client/1.0",
		backOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			return b
		},
	}
}

// HealthCheck проверяет доступность сервера
func (h *HTTPClient) HealthCheck(ctx context.Context) error {
	return h.call(ctx, http.MethodGet, "/api/v1/health", nil, nil)
}

// Push отправляет пакет изменений
func (h *HTTPClient) Push(ctx context.Context, req sync.SyncBatchRequest) (*sync.SyncBatchResponse, error) {
	var resp sync.SyncBatchResponse
	if err := h.call(ctx, http.MethodPost, "/api/v1/sync/push", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pull запрашивает страницу изменений сервера
func (h *HTTPClient) Pull(ctx context.Context, req sync.PullChangesRequest) (*sync.PullChangesResponse, error) {
	var resp sync.PullChangesResponse
	if err := h.call(ctx, http.MethodPost, "/api/v1/sync/pull", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResolveConflict разрешает конфликт на сервере
func (h *HTTPClient) ResolveConflict(ctx context.Context, req sync.ResolveConflictRequest) error {
	return h.call(ctx, http.MethodPost, "/api/v1/sync/conflicts/resolve", req, nil)
}

// Diagnostics запрашивает состояние синхронизации клиента
func (h *HTTPClient) Diagnostics(ctx context.Context, tenant sync.Tenant) (*sync.DiagnosticsResponse, error) {
	query := url.Values{}
	query.Set("client_id", tenant.ClientID)
	query.Set("branch_id", tenant.BranchID)

	var resp sync.DiagnosticsResponse
	if err := h.call(ctx, http.MethodGet, "/api/v1/sync/diagnostics?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// call выполняет запрос, повторяя его при сетевых ошибках и временной недоступности сервера
func (h *HTTPClient) call(ctx context.Context, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	operation := func() (struct{}, error) {
		resp, err := h.doRequest(ctx, method, path, payload)
		if err != nil {
			if ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(ctx.Err())
			}
			return struct{}{}, err
		}

		err = h.parseResponse(resp, result)
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(h.backOff()),
		backoff.WithMaxTries(maxAttempts),
		backoff.WithNotify(func(err error, d time.Duration) {
			h.log.Warn("Request failed, retrying", "path", path, "error", err, "retry_in", d)
		}),
	)
	return err
}

func (h *HTTPClient) doRequest(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", h.userAgent)
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	h.log.Debug("Sending request", "method", method, "url", req.URL.String())

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	return resp, nil
}

func (h *HTTPClient) parseResponse(resp *http.Response, result any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	h.log.Debug("Received response", "status", resp.StatusCode, "bytes", len(body))

	if resp.StatusCode >= 400 {
		// тело ошибки в формате huma (RFC 9457)
		var errResp struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(body, &errResp); err == nil {
			apiErr.Detail = errResp.Detail
			if apiErr.Detail == "" {
				apiErr.Detail = errResp.Title
			}
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
