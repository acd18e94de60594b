package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"possync/internal/app/client/config"
	"possync/internal/domain/sync"
)

var ErrEntityRequired = errors.New("entity name is required")

// App клиентское приложение POS-устройства
type App struct {
	config     *config.Config
	log        *slog.Logger
	httpClient *HTTPClient
	storage    *SQLiteStorage
	syncer     *Syncer
	now        func() time.Time
}

func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	storage, err := NewSQLiteStorage(cfg.QueuePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local queue: %w", err)
	}

	httpCl := NewHTTPClient(cfg, log)
	tenant := sync.Tenant{ClientID: cfg.ClientID, BranchID: cfg.BranchID}

	return &App{
		config:     cfg,
		log:        log,
		httpClient: httpCl,
		storage:    storage,
		syncer:     NewSyncer(httpCl, storage, tenant, cfg.DeviceID, log),
		now:        time.Now,
	}, nil
}

func (a *App) Close() error {
	return a.storage.Close()
}

// CheckConnection проверяет доступность сервера
func (a *App) CheckConnection(ctx context.Context) error {
	return a.httpClient.HealthCheck(ctx)
}

// Enqueue ставит локальное изменение в очередь. Пустой recordID заменяется новым UUID.
func (a *App) Enqueue(ctx context.Context, entityName, recordID string, data map[string]any, deleted bool) (PendingChange, error) {
	entityName = strings.TrimSpace(entityName)
	if entityName == "" {
		return PendingChange{}, ErrEntityRequired
	}
	if recordID == "" {
		recordID = uuid.NewString()
	}
	if data == nil {
		data = map[string]any{}
	}

	change := PendingChange{
		EntityName:     entityName,
		RecordID:       recordID,
		Data:           data,
		LocalUpdatedAt: a.now().UTC(),
		IsDeleted:      deleted,
	}

	seq, err := a.storage.Enqueue(ctx, change)
	if err != nil {
		return PendingChange{}, err
	}
	change.Seq = seq

	a.log.Debug("Change queued", "entity", entityName, "record_id", recordID, "seq", seq)
	return change, nil
}

func (a *App) Pending(ctx context.Context) ([]PendingChange, error) {
	return a.storage.Pending(ctx, 0)
}

func (a *App) ClearQueue(ctx context.Context) (int64, error) {
	return a.storage.Clear(ctx)
}

func (a *App) Push(ctx context.Context) (*PushReport, error) {
	if err := a.config.ValidateTenant(); err != nil {
		return nil, err
	}
	return a.syncer.Push(ctx)
}

// Pull получает изменения сервера. При full курсор сбрасывается и история
// читается заново; уже сохраненные строки не откатываются благодаря sync_version.
func (a *App) Pull(ctx context.Context, entities []string, full bool) (*PullReport, error) {
	if err := a.config.ValidateTenant(); err != nil {
		return nil, err
	}
	if full {
		if err := a.storage.ResetCursor(ctx); err != nil {
			return nil, err
		}
		a.log.Info("Pull cursor reset")
	}
	return a.syncer.Pull(ctx, entities)
}

func (a *App) Resolve(ctx context.Context, req sync.ResolveConflictRequest) error {
	if err := a.config.ValidateTenant(); err != nil {
		return err
	}
	return a.syncer.Resolve(ctx, req)
}

func (a *App) Diagnostics(ctx context.Context) (*sync.DiagnosticsResponse, error) {
	if err := a.config.ValidateTenant(); err != nil {
		return nil, err
	}
	return a.httpClient.Diagnostics(ctx, sync.Tenant{ClientID: a.config.ClientID, BranchID: a.config.BranchID})
}

// Status возвращает состояние локального хранилища
func (a *App) Status(ctx context.Context) (*LocalStatus, error) {
	pending, err := a.storage.Count(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := a.storage.CountServerRows(ctx)
	if err != nil {
		return nil, err
	}
	cursor, err := a.storage.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	return &LocalStatus{Pending: pending, ServerRows: rows, Cursor: cursor.At}, nil
}
