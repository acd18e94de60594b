package sync

import (
	"context"
	"fmt"
	"sort"

	"possync/internal/domain/schema"
)

// PullChanges возвращает изменения клиента после курсора запроса.
//
// Изменения упорядочены по ключу (server_updated_at, entity_name, record_id).
// Каждая сущность читается отдельно (не более MaxPullSize+1 строк после курсора),
// затем страницы сливаются по ключу и обрезаются до MaxPullSize. Курсор следующей
// страницы указывает на последнее возвращенное изменение, поэтому строки с общей
// отметкой времени не теряются на границе страницы. Ошибка чтения одной сущности
// пишется в лог и не прерывает выборку.
func (s *Service) PullChanges(ctx context.Context, req PullChangesRequest) (*PullChangesResponse, error) {
	tenant := req.Tenant()
	if !tenant.valid() {
		return nil, fmt.Errorf("%w: client_id and branch_id are required", ErrInvalidRequest)
	}
	if req.CursorEntity != "" {
		req.CursorEntity = s.registry.Canonicalize(req.CursorEntity)
	}

	log := s.log.With("client_id", tenant.ClientID, "branch_id", tenant.BranchID)

	var merged []Change
	for _, entity := range s.pullScope(req.Entities) {
		rows, err := s.repo.ListChanges(ctx, entity, tenant, req.position(entity.Name), MaxPullSize+1)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("Skipping entity in pull", "entity", entity.Name, "error", err)
			continue
		}

		for _, row := range rows {
			merged = append(merged, Change{
				EntityName:      entity.Name,
				RecordID:        row.ID,
				Data:            row.Data,
				ServerUpdatedAt: row.ServerUpdatedAt,
				SyncVersion:     row.SyncVersion,
				IsDeleted:       row.IsDeleted,
			})
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return changeLess(merged[i], merged[j])
	})

	resp := &PullChangesResponse{Changes: merged}
	if len(merged) > MaxPullSize {
		resp.Changes = merged[:MaxPullSize]
		resp.HasMore = true

		last := resp.Changes[MaxPullSize-1]
		cursor := last.ServerUpdatedAt
		resp.NextCursor = &cursor
		resp.NextCursorEntity = last.EntityName
		resp.NextCursorID = last.RecordID
	}
	if resp.Changes == nil {
		resp.Changes = []Change{}
	}

	s.metrics.ChangesPulled(ctx, len(resp.Changes))
	log.Debug("Pulled changes", "since", req.Since, "cursor_entity", req.CursorEntity,
		"changes", len(resp.Changes), "has_more", resp.HasMore)

	return resp, nil
}

// position переводит курсор запроса в границу выборки сущности entity.
// Сущности, которые в порядке ключа идут после сущности курсора, ещё не
// отдавали строки с отметкой since.
func (r PullChangesRequest) position(entity string) Position {
	switch {
	case r.CursorEntity == "" || entity < r.CursorEntity:
		return Position{Since: r.Since}
	case entity == r.CursorEntity:
		return Position{Since: r.Since, IncludeSince: true, AfterID: r.CursorID}
	default:
		return Position{Since: r.Since, IncludeSince: true}
	}
}

func changeLess(a, b Change) bool {
	if !a.ServerUpdatedAt.Equal(b.ServerUpdatedAt) {
		return a.ServerUpdatedAt.Before(b.ServerUpdatedAt)
	}
	if a.EntityName != b.EntityName {
		return a.EntityName < b.EntityName
	}
	return a.RecordID < b.RecordID
}

// pullScope возвращает сущности выборки в порядке реестра
func (s *Service) pullScope(requested []string) []schema.Entity {
	all := s.registry.Entities()
	if len(requested) == 0 {
		return all
	}

	wanted := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		canonical := s.registry.Canonicalize(name)
		if !s.registry.IsSyncable(canonical) {
			s.log.Warn("Ignoring unknown entity in pull", "entity", name)
			continue
		}
		wanted[canonical] = struct{}{}
	}

	scope := make([]schema.Entity, 0, len(wanted))
	for _, e := range all {
		if _, ok := wanted[e.Name]; ok {
			scope = append(scope, e)
		}
	}
	return scope
}
