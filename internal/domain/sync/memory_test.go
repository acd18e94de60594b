package sync

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"possync/internal/domain/schema"
	"possync/internal/domain/translator"
)

// memRow строка in-memory хранилища
type memRow struct {
	tenant Tenant
	row    Row
}

type memState struct {
	tables    map[string]map[string]memRow
	outbox    []OutboxEntry
	processed map[uuid.UUID]bool
}

func (s *memState) clone() *memState {
	c := &memState{
		tables:    make(map[string]map[string]memRow, len(s.tables)),
		outbox:    append([]OutboxEntry(nil), s.outbox...),
		processed: make(map[uuid.UUID]bool, len(s.processed)),
	}
	for name, rows := range s.tables {
		t := make(map[string]memRow, len(rows))
		for id, r := range rows {
			r.row.Data = copyData(r.row.Data)
			t[id] = r
		}
		c.tables[name] = t
	}
	for id, v := range s.processed {
		c.processed[id] = v
	}
	return c
}

func copyData(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// memRepository in-memory реализация Repository с откатом транзакций и точек сохранения
type memRepository struct {
	state *memState

	// insertErr ошибка InsertRow для записи с данным id
	insertErr map[string]error
	// raceInsert строка, которую "параллельный" пакет вставляет перед InsertRow
	raceInsert map[string]memRow
	listErr    map[string]error
	countErr   map[string]error

	// concurrent строки, зафиксированные чужими транзакциями: откат их не удаляет
	concurrent []concurrentRow
}

type concurrentRow struct {
	entity string
	mr     memRow
}

func newMemRepository() *memRepository {
	return &memRepository{
		state: &memState{
			tables:    map[string]map[string]memRow{},
			processed: map[uuid.UUID]bool{},
		},
		insertErr:  map[string]error{},
		raceInsert: map[string]memRow{},
		listErr:    map[string]error{},
		countErr:   map[string]error{},
	}
}

func (r *memRepository) table(name string) map[string]memRow {
	t, ok := r.state.tables[name]
	if !ok {
		t = map[string]memRow{}
		r.state.tables[name] = t
	}
	return t
}

func (r *memRepository) put(entity string, tenant Tenant, row Row) {
	r.table(entity)[row.ID] = memRow{tenant: tenant, row: row}
}

func (r *memRepository) get(entity, id string) (Row, bool) {
	mr, ok := r.state.tables[entity][id]
	return mr.row, ok
}

func (r *memRepository) count(entity string) int {
	return len(r.state.tables[entity])
}

func (r *memRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return (&memTx{repo: r}).Savepoint(ctx, fn)
}

func (r *memRepository) ListChanges(_ context.Context, entity schema.Entity, tenant Tenant, pos Position, limit int) ([]Row, error) {
	if err := r.listErr[entity.Name]; err != nil {
		return nil, err
	}

	var rows []Row
	for _, mr := range r.state.tables[entity.Name] {
		if mr.tenant == tenant && pos.admits(mr.row) {
			mr.row.Data = copyData(mr.row.Data)
			rows = append(rows, mr.row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ServerUpdatedAt.Equal(rows[j].ServerUpdatedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].ServerUpdatedAt.Before(rows[j].ServerUpdatedAt)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (p Position) admits(row Row) bool {
	if row.ServerUpdatedAt.After(p.Since) {
		return true
	}
	return p.IncludeSince && row.ServerUpdatedAt.Equal(p.Since) && row.ID > p.AfterID
}

func (r *memRepository) CountRows(_ context.Context, entity schema.Entity, tenant Tenant) (int64, error) {
	if err := r.countErr[entity.Name]; err != nil {
		return 0, err
	}

	var n int64
	for _, mr := range r.state.tables[entity.Name] {
		if mr.tenant == tenant && !mr.row.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (r *memRepository) PendingOutboxCount(_ context.Context, tenant Tenant) (int64, error) {
	var n int64
	for _, e := range r.state.outbox {
		if e.Tenant == tenant && !r.state.processed[e.ID] {
			n++
		}
	}
	return n, nil
}

func (r *memRepository) LastOutboxAt(_ context.Context, tenant Tenant) (*time.Time, error) {
	var last *time.Time
	for _, e := range r.state.outbox {
		if e.Tenant != tenant {
			continue
		}
		if last == nil || e.CreatedAt.After(*last) {
			ts := e.CreatedAt
			last = &ts
		}
	}
	return last, nil
}

type memTx struct {
	repo *memRepository
}

func (t *memTx) Savepoint(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	snapshot := t.repo.state.clone()
	if err := fn(ctx, t); err != nil {
		t.repo.state = snapshot
		for _, c := range t.repo.concurrent {
			t.repo.table(c.entity)[c.mr.row.ID] = c.mr
		}
		return err
	}
	return nil
}

func (t *memTx) GetRow(_ context.Context, entity schema.Entity, tenant Tenant, id string) (*Row, error) {
	mr, ok := t.repo.state.tables[entity.Name][id]
	if !ok || mr.tenant != tenant {
		return nil, ErrRowNotFound
	}
	row := mr.row
	row.Data = copyData(row.Data)
	return &row, nil
}

func (t *memTx) FindByNaturalKey(_ context.Context, entity schema.Entity, tenant Tenant, key map[string]any) (*Row, error) {
	for _, mr := range t.repo.state.tables[entity.Name] {
		if mr.tenant != tenant {
			continue
		}
		match := true
		for k, v := range key {
			if !assert.ObjectsAreEqual(v, mr.row.Data[k]) {
				match = false
				break
			}
		}
		if match {
			row := mr.row
			return &row, nil
		}
	}
	return nil, ErrRowNotFound
}

func (t *memTx) InsertRow(_ context.Context, entity schema.Entity, m Mutation) error {
	if err := t.repo.insertErr[m.ID]; err != nil {
		return err
	}
	if raced, ok := t.repo.raceInsert[m.ID]; ok {
		delete(t.repo.raceInsert, m.ID)
		t.repo.concurrent = append(t.repo.concurrent, concurrentRow{entity: entity.Name, mr: raced})
		t.repo.table(entity.Name)[m.ID] = raced
	}
	if _, exists := t.repo.state.tables[entity.Name][m.ID]; exists {
		return ErrDuplicateKey
	}

	t.repo.put(entity.Name, m.Tenant, Row{
		ID:              m.ID,
		IsDeleted:       m.IsDeleted,
		ServerUpdatedAt: m.ServerUpdatedAt,
		SyncVersion:     1,
		Data:            copyData(m.Columns),
	})
	return nil
}

func (t *memTx) UpdateRow(_ context.Context, entity schema.Entity, m Mutation) error {
	mr, ok := t.repo.state.tables[entity.Name][m.ID]
	if !ok || mr.tenant != m.Tenant {
		return ErrRowNotFound
	}

	data := copyData(mr.row.Data)
	for k, v := range m.Columns {
		data[k] = v
	}
	mr.row.Data = data
	mr.row.IsDeleted = m.IsDeleted
	mr.row.ServerUpdatedAt = m.ServerUpdatedAt
	mr.row.SyncVersion++
	t.repo.state.tables[entity.Name][m.ID] = mr
	return nil
}

func (t *memTx) AppendOutbox(_ context.Context, entry OutboxEntry) error {
	t.repo.state.outbox = append(t.repo.state.outbox, entry)
	return nil
}

// fakeClock часы, которые двигаются только вручную
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

var (
	testTenant  = Tenant{ClientID: "client-1", BranchID: "branch-1"}
	otherTenant = Tenant{ClientID: "client-2", BranchID: "branch-1"}
	baseTime    = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg, err := schema.New([]schema.Entity{
		{
			Name: "customers",
			Columns: []schema.Column{
				{Name: "name", Type: schema.ColumnText},
				{Name: "phone", Type: schema.ColumnText},
				{Name: "balance", Type: schema.ColumnNumeric},
			},
		},
		{
			Name: "invoice_items",
			Columns: []schema.Column{
				{Name: "invoice_id", Type: schema.ColumnText},
				{Name: "product_id", Type: schema.ColumnText},
				{Name: "quantity", Type: schema.ColumnNumeric},
			},
			NaturalKey: []string{"invoice_id", "product_id", "quantity"},
		},
	}, map[string]string{
		"customer":     "customers",
		"invoiceItems": "invoice_items",
	})
	require.NoError(t, err)

	return reg
}

func newTestService(t *testing.T) (*Service, *memRepository, *fakeClock) {
	t.Helper()

	reg := testRegistry(t)
	repo := newMemRepository()
	clock := &fakeClock{now: baseTime}
	svc := NewService(repo, reg, translator.New(reg), slog.Default(), WithClock(clock.Now))

	return svc, repo, clock
}

func batchOf(records ...SyncRecord) SyncBatchRequest {
	return SyncBatchRequest{
		ClientID: testTenant.ClientID,
		BranchID: testTenant.BranchID,
		DeviceID: "till-1",
		Records:  records,
	}
}
