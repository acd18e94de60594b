package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ResolveConflict применяет решение по конфликту.
//
// accept_server ничего не меняет: устройство должно заново получить запись.
// accept_client перезаписывает строку данными устройства без сравнения отметок,
// вставляя её, если строки уже нет.
func (s *Service) ResolveConflict(ctx context.Context, req ResolveConflictRequest) error {
	tenant := req.Tenant()
	if !tenant.valid() || req.RecordID == "" {
		return fmt.Errorf("%w: client_id, branch_id and record_id are required", ErrInvalidRequest)
	}

	switch req.Resolution {
	case ResolutionAcceptServer, ResolutionAcceptClient:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidResolution, req.Resolution)
	}

	entity, ok := s.registry.Lookup(req.EntityName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, req.EntityName)
	}

	log := s.log.With(
		"client_id", tenant.ClientID,
		"branch_id", tenant.BranchID,
		"entity", entity.Name,
		"record_id", req.RecordID,
		"resolution", req.Resolution,
	)

	if req.Resolution == ResolutionAcceptServer {
		s.metrics.ConflictResolved(ctx, string(req.Resolution))
		log.Info("Conflict resolved")
		return nil
	}

	if req.ClientData == nil {
		return fmt.Errorf("%w: client_data is required for %s", ErrInvalidRequest, ResolutionAcceptClient)
	}

	translated, err := s.translator.ClientToServer(entity.Name, req.ClientData, tenant.ClientID, tenant.BranchID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	m := Mutation{
		ID:        req.RecordID,
		Tenant:    tenant,
		Columns:   columns(translated),
		IsDeleted: req.IsDeleted,
	}

	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		op := OperationUpdate

		existing, err := tx.GetRow(ctx, entity, tenant, req.RecordID)
		switch {
		case err == nil:
			m.ServerUpdatedAt = s.stamp(existing.ServerUpdatedAt)
			if err := tx.UpdateRow(ctx, entity, m); err != nil {
				return err
			}
		case errors.Is(err, ErrRowNotFound):
			op = OperationCreate
			m.ServerUpdatedAt = s.stamp()
			if err := tx.InsertRow(ctx, entity, m); err != nil {
				if errors.Is(err, ErrDuplicateKey) {
					return fmt.Errorf("%w: record id is taken outside the tenant", ErrRecordRejected)
				}
				return err
			}
		default:
			return err
		}

		if req.IsDeleted {
			op = OperationDelete
		}
		return tx.AppendOutbox(ctx, OutboxEntry{
			ID:         uuid.New(),
			Tenant:     tenant,
			DeviceID:   req.DeviceID,
			EntityName: entity.Name,
			RecordID:   req.RecordID,
			Operation:  op,
			CreatedAt:  m.ServerUpdatedAt,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}

	s.metrics.ConflictResolved(ctx, string(req.Resolution))
	log.Info("Conflict resolved", "server_updated_at", m.ServerUpdatedAt)

	return nil
}
