package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/exp/slog"

	"possync/internal/domain/sync"
)

// API операции сервера, нужные синхронизации
type API interface {
	Push(ctx context.Context, req sync.SyncBatchRequest) (*sync.SyncBatchResponse, error)
	Pull(ctx context.Context, req sync.PullChangesRequest) (*sync.PullChangesResponse, error)
	ResolveConflict(ctx context.Context, req sync.ResolveConflictRequest) error
}

// Store локальное хранилище очереди и курсора
type Store interface {
	Pending(ctx context.Context, limit int) ([]PendingChange, error)
	Remove(ctx context.Context, seqs ...int64) error
	MarkFailed(ctx context.Context, seq int64, reason string) error
	RemoveRecord(ctx context.Context, entityName, recordID string) (int64, error)
	Cursor(ctx context.Context) (PullCursor, error)
	SetCursor(ctx context.Context, cursor PullCursor) error
	ApplyChanges(ctx context.Context, changes []sync.Change) error
}

var ErrCursorStalled = errors.New("pull cursor did not advance")

// Syncer отправляет очередь устройства и получает изменения сервера
type Syncer struct {
	api      API
	store    Store
	tenant   sync.Tenant
	deviceID string
	log      *slog.Logger
}

func NewSyncer(api API, store Store, tenant sync.Tenant, deviceID string, log *slog.Logger) *Syncer {
	return &Syncer{
		api:      api,
		store:    store,
		tenant:   tenant,
		deviceID: deviceID,
		log:      log.With("component", "syncer"),
	}
}

// Push отправляет очередь пакетами по sync.MaxBatchSize.
// Записи с конфликтом или ошибкой остаются в очереди с причиной.
// При ошибке запроса текущий и последующие пакеты остаются в очереди.
func (s *Syncer) Push(ctx context.Context) (*PushReport, error) {
	pending, err := s.store.Pending(ctx, 0)
	if err != nil {
		return nil, err
	}

	report := &PushReport{
		Conflicts: []sync.SyncConflict{},
		Errors:    []sync.RecordError{},
	}

	for chunk := range slices.Chunk(pending, sync.MaxBatchSize) {
		req := sync.SyncBatchRequest{
			ClientID: s.tenant.ClientID,
			BranchID: s.tenant.BranchID,
			DeviceID: s.deviceID,
			Records:  make([]sync.SyncRecord, 0, len(chunk)),
		}
		for _, c := range chunk {
			req.Records = append(req.Records, c.Record())
		}

		resp, err := s.api.Push(ctx, req)
		if err != nil {
			return report, fmt.Errorf("failed to push batch %d: %w", report.Batches+1, err)
		}
		report.Batches++
		report.Synced += resp.SyncedCount
		report.Conflicts = append(report.Conflicts, resp.Conflicts...)
		report.Errors = append(report.Errors, resp.Errors...)

		if err := s.settle(ctx, chunk, resp); err != nil {
			return report, err
		}
	}

	s.log.Info("Queue pushed",
		"batches", report.Batches,
		"synced", report.Synced,
		"conflicts", len(report.Conflicts),
		"errors", len(report.Errors),
	)

	return report, nil
}

// settle удаляет принятые записи и помечает отклоненные.
// Сервер может вернуть каноническое имя сущности, поэтому записи сопоставляются по record_id.
func (s *Syncer) settle(ctx context.Context, chunk []PendingChange, resp *sync.SyncBatchResponse) error {
	rejected := make(map[string]string, len(resp.Conflicts)+len(resp.Errors))
	for _, c := range resp.Conflicts {
		rejected[c.RecordID] = "conflict: server version is newer"
	}
	for _, e := range resp.Errors {
		rejected[e.RecordID] = e.Error
	}

	var done []int64
	for _, c := range chunk {
		reason, ok := rejected[c.RecordID]
		if !ok {
			done = append(done, c.Seq)
			continue
		}
		if err := s.store.MarkFailed(ctx, c.Seq, reason); err != nil {
			return err
		}
	}

	return s.store.Remove(ctx, done...)
}

// Pull получает изменения с сохраненного курсора, пока сервер сообщает has_more.
// Курсор сохраняется после каждой страницы и указывает на последнее
// полученное изменение, так что страницы могут делить одну отметку времени.
func (s *Syncer) Pull(ctx context.Context, entities []string) (*PullReport, error) {
	cursor, err := s.store.Cursor(ctx)
	if err != nil {
		return nil, err
	}

	report := &PullReport{Cursor: cursor.At}
	for {
		resp, err := s.api.Pull(ctx, sync.PullChangesRequest{
			ClientID:     s.tenant.ClientID,
			BranchID:     s.tenant.BranchID,
			Since:        cursor.At,
			CursorEntity: cursor.EntityName,
			CursorID:     cursor.RecordID,
			Entities:     entities,
		})
		if err != nil {
			return report, fmt.Errorf("failed to pull changes: %w", err)
		}

		if err := s.store.ApplyChanges(ctx, resp.Changes); err != nil {
			return report, err
		}
		report.Pages++
		report.Changes += len(resp.Changes)

		next := cursor
		switch {
		case resp.HasMore && resp.NextCursor != nil:
			next = PullCursor{At: *resp.NextCursor, EntityName: resp.NextCursorEntity, RecordID: resp.NextCursorID}
		case len(resp.Changes) > 0:
			last := resp.Changes[len(resp.Changes)-1]
			next = PullCursor{At: last.ServerUpdatedAt, EntityName: last.EntityName, RecordID: last.RecordID}
		}

		advanced := next.after(cursor)
		if advanced {
			if err := s.store.SetCursor(ctx, next); err != nil {
				return report, err
			}
			report.Cursor = next.At
		}

		if !resp.HasMore {
			break
		}
		if !advanced {
			return report, fmt.Errorf("%w: %s %s/%s", ErrCursorStalled,
				cursor.At.Format(time.RFC3339Nano), cursor.EntityName, cursor.RecordID)
		}
		cursor = next
	}

	s.log.Info("Changes pulled", "pages", report.Pages, "changes", report.Changes, "cursor", report.Cursor)

	return report, nil
}

// Resolve разрешает конфликт на сервере и убирает изменения записи из очереди
func (s *Syncer) Resolve(ctx context.Context, req sync.ResolveConflictRequest) error {
	req.ClientID = s.tenant.ClientID
	req.BranchID = s.tenant.BranchID
	req.DeviceID = s.deviceID

	if err := s.api.ResolveConflict(ctx, req); err != nil {
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}

	removed, err := s.store.RemoveRecord(ctx, req.EntityName, req.RecordID)
	if err != nil {
		return err
	}

	s.log.Info("Conflict resolved",
		"entity", req.EntityName,
		"record_id", req.RecordID,
		"resolution", req.Resolution,
		"dequeued", removed,
	)
	return nil
}
