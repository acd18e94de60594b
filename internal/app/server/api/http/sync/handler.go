package sync

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"possync/internal/app/server/api/http/middleware/auth"
	"possync/internal/domain/sync"
)

type Handler struct {
	service    sync.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service sync.Servicer, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		log:        log.With("component", "sync_handler"),
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.pushOp(), h.push)
	huma.Register(api, h.pullOp(), h.pull)
	huma.Register(api, h.resolveConflictOp(), h.resolveConflict)
	huma.Register(api, h.diagnosticsOp(), h.diagnostics)
}

func (h *Handler) push(ctx context.Context, input *pushInput) (*pushOutput, error) {
	if err := authorize(ctx, input.Body.ClientID); err != nil {
		return nil, err
	}

	response, err := h.service.ProcessBatch(ctx, input.Body)
	if err != nil {
		return nil, h.toHTTPError(err)
	}

	return &pushOutput{Body: *response}, nil
}

func (h *Handler) pull(ctx context.Context, input *pullInput) (*pullOutput, error) {
	if err := authorize(ctx, input.Body.ClientID); err != nil {
		return nil, err
	}

	response, err := h.service.PullChanges(ctx, input.Body)
	if err != nil {
		return nil, h.toHTTPError(err)
	}

	return &pullOutput{Body: *response}, nil
}

func (h *Handler) resolveConflict(ctx context.Context, input *resolveConflictInput) (*resolveConflictOutput, error) {
	if err := authorize(ctx, input.Body.ClientID); err != nil {
		return nil, err
	}

	if err := h.service.ResolveConflict(ctx, input.Body); err != nil {
		return nil, h.toHTTPError(err)
	}

	return &resolveConflictOutput{Body: ResolveConflictResponse{Success: true}}, nil
}

func (h *Handler) diagnostics(ctx context.Context, input *diagnosticsInput) (*diagnosticsOutput, error) {
	if err := authorize(ctx, input.ClientID); err != nil {
		return nil, err
	}

	response, err := h.service.Diagnostics(ctx, sync.Tenant{ClientID: input.ClientID, BranchID: input.BranchID})
	if err != nil {
		return nil, h.toHTTPError(err)
	}

	return &diagnosticsOutput{Body: *response}, nil
}

// authorize проверяет, что токен выдан тому же клиенту, что указан в запросе
func authorize(ctx context.Context, clientID string) error {
	owner, ok := auth.ClientID(ctx)
	if ok && owner != clientID {
		return huma.Error403Forbidden("token is not valid for this client")
	}
	return nil
}

// toHTTPError переводит ошибки сервиса в ответы API
func (h *Handler) toHTTPError(err error) error {
	switch {
	case errors.Is(err, sync.ErrBatchTooLarge):
		return huma.NewError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, sync.ErrInvalidResolution):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, sync.ErrInvalidRequest), errors.Is(err, sync.ErrRecordRejected):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, sync.ErrUnknownEntity), errors.Is(err, sync.ErrRowNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error503ServiceUnavailable("request cancelled")
	default:
		h.log.Error("Sync request failed", "error", err)
		return huma.Error500InternalServerError("internal server error")
	}
}
