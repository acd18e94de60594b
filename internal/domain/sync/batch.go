package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"possync/internal/domain/schema"
)

type recordOutcome int

const (
	outcomeSynced recordOutcome = iota
	outcomeConflict
)

// batch состояние обработки одного пакета
type batch struct {
	tenant    Tenant
	deviceID  string
	lastStamp time.Time
	resp      *SyncBatchResponse
}

// ProcessBatch применяет пакет изменений устройства.
//
// Весь пакет выполняется в одной транзакции, каждая запись в своей точке сохранения.
// Ошибки отдельных записей попадают в Errors и не мешают фиксации остальных.
// Прочие ошибки (потеря соединения, отмена контекста) откатывают весь пакет.
func (s *Service) ProcessBatch(ctx context.Context, req SyncBatchRequest) (*SyncBatchResponse, error) {
	if len(req.Records) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d records, limit %d", ErrBatchTooLarge, len(req.Records), MaxBatchSize)
	}

	tenant := req.Tenant()
	if !tenant.valid() || req.DeviceID == "" {
		return nil, fmt.Errorf("%w: client_id, branch_id and device_id are required", ErrInvalidRequest)
	}

	started := s.now()
	log := s.log.With("client_id", tenant.ClientID, "branch_id", tenant.BranchID, "device_id", req.DeviceID)

	var b *batch
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		b = &batch{
			tenant:   tenant,
			deviceID: req.DeviceID,
			resp: &SyncBatchResponse{
				Conflicts: []SyncConflict{},
				Errors:    []RecordError{},
			},
		}

		for _, rec := range req.Records {
			if err := s.processRecord(ctx, tx, b, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error("Sync batch rolled back", "records", len(req.Records), "error", err)
		return nil, fmt.Errorf("failed to process batch: %w", err)
	}

	b.resp.Success = true
	s.metrics.BatchProcessed(ctx, s.now().Sub(started), b.resp.SyncedCount, len(b.resp.Conflicts), len(b.resp.Errors))
	log.Info("Sync batch committed",
		"records", len(req.Records),
		"synced", b.resp.SyncedCount,
		"conflicts", len(b.resp.Conflicts),
		"errors", len(b.resp.Errors),
	)

	return b.resp, nil
}

// processRecord возвращает ошибку только если пакет нужно откатить
func (s *Service) processRecord(ctx context.Context, tx Tx, b *batch, rec SyncRecord) error {
	entity, ok := s.registry.Lookup(rec.EntityName)
	if !ok {
		b.fail(rec, fmt.Errorf("%w: %s", ErrUnknownEntity, rec.EntityName))
		return nil
	}

	var (
		outcome  recordOutcome
		conflict *SyncConflict
	)
	err := tx.Savepoint(ctx, func(ctx context.Context, sp Tx) error {
		var err error
		outcome, conflict, err = s.applyRecord(ctx, sp, b, entity, rec)
		return err
	})

	switch {
	case err == nil:
	case isRecordError(err):
		s.log.Warn("Sync record rejected",
			"entity", entity.Name,
			"record_id", rec.RecordID,
			"error", err,
		)
		b.fail(rec, err)
		return nil
	default:
		return fmt.Errorf("record %s/%s: %w", entity.Name, rec.RecordID, err)
	}

	switch outcome {
	case outcomeConflict:
		b.resp.Conflicts = append(b.resp.Conflicts, *conflict)
	case outcomeSynced:
		b.resp.SyncedCount++
	}
	return nil
}

func (s *Service) applyRecord(ctx context.Context, tx Tx, b *batch, entity schema.Entity, rec SyncRecord) (recordOutcome, *SyncConflict, error) {
	if rec.RecordID == "" {
		return 0, nil, fmt.Errorf("%w: record_id is required", ErrInvalidRequest)
	}

	translated, err := s.translator.ClientToServer(entity.Name, rec.Data, b.tenant.ClientID, b.tenant.BranchID)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrRecordRejected, err)
	}
	cols := columns(translated)

	existing, err := tx.GetRow(ctx, entity, b.tenant, rec.RecordID)
	if err != nil && !errors.Is(err, ErrRowNotFound) {
		return 0, nil, err
	}

	if existing == nil {
		if key, ok := naturalKey(entity, cols); ok {
			dup, err := tx.FindByNaturalKey(ctx, entity, b.tenant, key)
			if err != nil && !errors.Is(err, ErrRowNotFound) {
				return 0, nil, err
			}
			if dup != nil {
				s.log.Debug("Sync record matches existing natural key",
					"entity", entity.Name,
					"record_id", rec.RecordID,
					"existing_id", dup.ID,
				)
				return outcomeSynced, nil, nil
			}
		}
	}

	if existing != nil && existing.ServerUpdatedAt.After(rec.LocalUpdatedAt) {
		return outcomeConflict, &SyncConflict{
			EntityName:        entity.Name,
			RecordID:          rec.RecordID,
			LocalData:         rec.Data,
			ServerData:        existing.Data,
			LocalUpdatedAt:    rec.LocalUpdatedAt,
			ServerUpdatedAt:   existing.ServerUpdatedAt,
			ServerSyncVersion: existing.SyncVersion,
			ServerIsDeleted:   existing.IsDeleted,
		}, nil
	}

	op, err := s.write(ctx, tx, b, entity, rec, cols, existing)
	if err != nil {
		return 0, nil, err
	}

	if rec.IsDeleted {
		op = OperationDelete
	}
	if err := tx.AppendOutbox(ctx, OutboxEntry{
		ID:         uuid.New(),
		Tenant:     b.tenant,
		DeviceID:   b.deviceID,
		EntityName: entity.Name,
		RecordID:   rec.RecordID,
		Operation:  op,
		CreatedAt:  b.lastStamp,
	}); err != nil {
		return 0, nil, err
	}

	return outcomeSynced, nil, nil
}

// write вставляет или обновляет строку и возвращает тип операции
func (s *Service) write(ctx context.Context, tx Tx, b *batch, entity schema.Entity, rec SyncRecord, cols map[string]any, existing *Row) (Operation, error) {
	m := Mutation{
		ID:        rec.RecordID,
		Tenant:    b.tenant,
		Columns:   cols,
		IsDeleted: rec.IsDeleted,
	}

	if existing != nil {
		m.ServerUpdatedAt = b.next(s, existing.ServerUpdatedAt)
		return OperationUpdate, tx.UpdateRow(ctx, entity, m)
	}

	m.ServerUpdatedAt = b.next(s)
	err := tx.Savepoint(ctx, func(ctx context.Context, sp Tx) error {
		return sp.InsertRow(ctx, entity, m)
	})
	if err == nil {
		return OperationCreate, nil
	}
	if !errors.Is(err, ErrDuplicateKey) {
		return "", err
	}

	// строку успел вставить параллельный пакет: применяем как обновление
	current, err := tx.GetRow(ctx, entity, b.tenant, rec.RecordID)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return "", fmt.Errorf("%w: record id is taken outside the tenant", ErrRecordRejected)
		}
		return "", err
	}

	m.ServerUpdatedAt = b.next(s, current.ServerUpdatedAt)
	return OperationUpdate, tx.UpdateRow(ctx, entity, m)
}

func (b *batch) next(s *Service, prev ...time.Time) time.Time {
	b.lastStamp = s.stamp(append(prev, b.lastStamp)...)
	return b.lastStamp
}

func (b *batch) fail(rec SyncRecord, err error) {
	b.resp.Errors = append(b.resp.Errors, RecordError{
		EntityName: rec.EntityName,
		RecordID:   rec.RecordID,
		Error:      err.Error(),
	})
}

// naturalKey возвращает значения естественного ключа, если запись содержит их все
func naturalKey(entity schema.Entity, cols map[string]any) (map[string]any, bool) {
	if !entity.HasNaturalKey() {
		return nil, false
	}

	key := make(map[string]any, len(entity.NaturalKey))
	for _, name := range entity.NaturalKey {
		v, ok := cols[name]
		if !ok || v == nil {
			return nil, false
		}
		key[name] = v
	}
	return key, true
}
