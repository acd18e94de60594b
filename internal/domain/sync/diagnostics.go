package sync

import (
	"context"
	"fmt"
)

// Diagnostics возвращает число необработанных уведомлений, время последнего
// изменения и ненулевое число живых строк по сущностям
func (s *Service) Diagnostics(ctx context.Context, tenant Tenant) (*DiagnosticsResponse, error) {
	if !tenant.valid() {
		return nil, fmt.Errorf("%w: client_id and branch_id are required", ErrInvalidRequest)
	}

	pending, err := s.repo.PendingOutboxCount(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending outbox entries: %w", err)
	}

	last, err := s.repo.LastOutboxAt(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to get last outbox entry: %w", err)
	}

	resp := &DiagnosticsResponse{
		PendingQueueCount: pending,
		LastSyncAt:        last,
		TablesStats:       []TableStats{},
	}

	for _, entity := range s.registry.Entities() {
		n, err := s.repo.CountRows(ctx, entity, tenant)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn("Skipping entity in diagnostics", "entity", entity.Name, "error", err)
			continue
		}
		if n > 0 {
			resp.TablesStats = append(resp.TablesStats, TableStats{EntityName: entity.Name, RecordCount: n})
		}
	}

	return resp, nil
}
