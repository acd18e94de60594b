package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func customer(id string, localUpdatedAt time.Time, name string) SyncRecord {
	return SyncRecord{
		EntityName:     "customers",
		RecordID:       id,
		Data:           map[string]any{"name": name, "phone": "+100"},
		LocalUpdatedAt: localUpdatedAt,
	}
}

func TestService_ProcessBatch_NewRecord(t *testing.T) {
	svc, repo, _ := newTestService(t)
	t0 := baseTime.Add(-time.Minute)

	resp, err := svc.ProcessBatch(context.Background(), batchOf(customer("c1", t0, "Alice")))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.SyncedCount)
	assert.Empty(t, resp.Conflicts)
	assert.Empty(t, resp.Errors)

	row, ok := repo.get("customers", "c1")
	require.True(t, ok)
	assert.Equal(t, int64(1), row.SyncVersion)
	assert.Equal(t, baseTime, row.ServerUpdatedAt)
	assert.False(t, row.IsDeleted)
	assert.Equal(t, "Alice", row.Data["name"])
	assert.NotContains(t, row.Data, "client_id")

	require.Len(t, repo.state.outbox, 1)
	entry := repo.state.outbox[0]
	assert.Equal(t, OperationCreate, entry.Operation)
	assert.Equal(t, "till-1", entry.DeviceID)
	assert.Equal(t, testTenant, entry.Tenant)
	assert.Equal(t, "customers", entry.EntityName)
}

func TestService_ProcessBatch_StaleRecordConflicts(t *testing.T) {
	svc, repo, clock := newTestService(t)
	ctx := context.Background()
	t0 := baseTime.Add(-time.Minute)

	_, err := svc.ProcessBatch(ctx, batchOf(customer("c1", t0, "Alice")))
	require.NoError(t, err)
	before, _ := repo.get("customers", "c1")

	clock.Advance(time.Second)
	resp, err := svc.ProcessBatch(ctx, batchOf(customer("c1", t0.Add(-time.Second), "Mallory")))
	require.NoError(t, err)

	assert.Equal(t, 0, resp.SyncedCount)
	require.Len(t, resp.Conflicts, 1)
	conflict := resp.Conflicts[0]
	assert.Equal(t, "c1", conflict.RecordID)
	assert.Equal(t, before.Data, conflict.ServerData)
	assert.Equal(t, "Mallory", conflict.LocalData["name"])
	assert.Equal(t, before.ServerUpdatedAt, conflict.ServerUpdatedAt)
	assert.Equal(t, int64(1), conflict.ServerSyncVersion)

	after, _ := repo.get("customers", "c1")
	assert.Equal(t, before, after)
	assert.Len(t, repo.state.outbox, 1)
}

func TestService_ProcessBatch_ResubmitIsIdempotent(t *testing.T) {
	svc, repo, clock := newTestService(t)
	ctx := context.Background()
	rec := customer("c1", baseTime.Add(-time.Minute), "Alice")

	for i := 0; i < 3; i++ {
		_, err := svc.ProcessBatch(ctx, batchOf(rec))
		require.NoError(t, err)
		clock.Advance(time.Millisecond)
	}

	row, _ := repo.get("customers", "c1")
	assert.Equal(t, int64(1), row.SyncVersion)
	assert.Equal(t, 1, repo.count("customers"))
	assert.Len(t, repo.state.outbox, 1)
}

func TestService_ProcessBatch_NewerRecordUpdates(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ProcessBatch(ctx, batchOf(customer("c1", baseTime.Add(-time.Minute), "Alice")))
	require.NoError(t, err)
	first, _ := repo.get("customers", "c1")

	// часы сервера не сдвинулись: отметка всё равно должна вырасти
	update := SyncRecord{
		EntityName:     "customers",
		RecordID:       "c1",
		Data:           map[string]any{"phone": "+200"},
		LocalUpdatedAt: baseTime.Add(time.Second),
	}
	resp, err := svc.ProcessBatch(ctx, batchOf(update))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.SyncedCount)

	row, _ := repo.get("customers", "c1")
	assert.Equal(t, int64(2), row.SyncVersion)
	assert.True(t, row.ServerUpdatedAt.After(first.ServerUpdatedAt))
	assert.Equal(t, "Alice", row.Data["name"], "columns not supplied must be kept")
	assert.Equal(t, "+200", row.Data["phone"])

	require.Len(t, repo.state.outbox, 2)
	assert.Equal(t, OperationUpdate, repo.state.outbox[1].Operation)
}

func TestService_ProcessBatch_SoftDelete(t *testing.T) {
	svc, repo, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.ProcessBatch(ctx, batchOf(customer("c1", baseTime.Add(-time.Minute), "Alice")))
	require.NoError(t, err)

	clock.Advance(time.Second)
	del := customer("c1", clock.Now(), "Alice")
	del.IsDeleted = true
	_, err = svc.ProcessBatch(ctx, batchOf(del))
	require.NoError(t, err)

	row, _ := repo.get("customers", "c1")
	assert.True(t, row.IsDeleted)
	assert.Equal(t, int64(2), row.SyncVersion)
	assert.Equal(t, OperationDelete, repo.state.outbox[1].Operation)

	// удаленная строка продолжает участвовать в проверке конфликтов
	resp, err := svc.ProcessBatch(ctx, batchOf(customer("c1", baseTime, "Zombie")))
	require.NoError(t, err)
	require.Len(t, resp.Conflicts, 1)
	assert.True(t, resp.Conflicts[0].ServerIsDeleted)
}

func TestService_ProcessBatch_PartialFailureIsolation(t *testing.T) {
	svc, repo, _ := newTestService(t)
	t0 := baseTime.Add(-time.Minute)

	req := batchOf(
		customer("c1", t0, "A"),
		SyncRecord{EntityName: "licenses", RecordID: "l1", LocalUpdatedAt: t0},
		customer("c2", t0, "B"),
		SyncRecord{EntityName: "users", RecordID: "u1", LocalUpdatedAt: t0},
		customer("c3", t0, "C"),
	)

	resp, err := svc.ProcessBatch(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.SyncedCount)
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, "licenses", resp.Errors[0].EntityName)
	assert.Equal(t, "u1", resp.Errors[1].RecordID)
	assert.Equal(t, 3, repo.count("customers"))
}

func TestService_ProcessBatch_RecordErrors(t *testing.T) {
	t0 := baseTime.Add(-time.Minute)

	tests := []struct {
		name   string
		setup  func(repo *memRepository)
		record SyncRecord
	}{
		{
			name: "storage rejects statement",
			setup: func(repo *memRepository) {
				repo.insertErr["c2"] = fmt.Errorf("%w: value too long for column name", ErrRecordRejected)
			},
			record: customer("c2", t0, "B"),
		},
		{
			name:   "invalid field value",
			record: SyncRecord{EntityName: "customers", RecordID: "c2", Data: map[string]any{"balance": "lots"}, LocalUpdatedAt: t0},
		},
		{
			name:   "missing record id",
			record: customer("", t0, "B"),
		},
		{
			name: "record id owned by another tenant",
			setup: func(repo *memRepository) {
				repo.put("customers", otherTenant, Row{ID: "c2", ServerUpdatedAt: baseTime, SyncVersion: 1, Data: map[string]any{}})
			},
			record: customer("c2", t0, "B"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t)
			if tt.setup != nil {
				tt.setup(repo)
			}

			resp, err := svc.ProcessBatch(context.Background(), batchOf(
				customer("c1", t0, "A"),
				tt.record,
				customer("c3", t0, "C"),
			))
			require.NoError(t, err)

			assert.Equal(t, 2, resp.SyncedCount)
			assert.Len(t, resp.Errors, 1)
			_, ok := repo.get("customers", "c1")
			assert.True(t, ok)
			_, ok = repo.get("customers", "c3")
			assert.True(t, ok)
			assert.Len(t, repo.state.outbox, 2)
		})
	}
}

func TestService_ProcessBatch_HardFailureRollsBack(t *testing.T) {
	svc, repo, _ := newTestService(t)
	t0 := baseTime.Add(-time.Minute)
	connErr := errors.New("connection reset by peer")
	repo.insertErr["c2"] = connErr

	resp, err := svc.ProcessBatch(context.Background(), batchOf(
		customer("c1", t0, "A"),
		customer("c2", t0, "B"),
		customer("c3", t0, "C"),
	))

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, connErr)
	assert.Equal(t, 0, repo.count("customers"))
	assert.Empty(t, repo.state.outbox)
}

func TestService_ProcessBatch_Validation(t *testing.T) {
	svc, repo, _ := newTestService(t)

	records := make([]SyncRecord, MaxBatchSize+1)
	for i := range records {
		records[i] = customer(fmt.Sprintf("c%d", i), baseTime, "x")
	}

	_, err := svc.ProcessBatch(context.Background(), batchOf(records...))
	assert.ErrorIs(t, err, ErrBatchTooLarge)
	assert.Equal(t, 0, repo.count("customers"))

	resp, err := svc.ProcessBatch(context.Background(), batchOf(records[:MaxBatchSize]...))
	require.NoError(t, err)
	assert.Equal(t, MaxBatchSize, resp.SyncedCount)

	req := batchOf(customer("c1", baseTime, "x"))
	req.DeviceID = ""
	_, err = svc.ProcessBatch(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestService_ProcessBatch_EmptyBatch(t *testing.T) {
	svc, _, _ := newTestService(t)

	resp, err := svc.ProcessBatch(context.Background(), batchOf())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 0, resp.SyncedCount)
	assert.NotNil(t, resp.Conflicts)
	assert.NotNil(t, resp.Errors)
}

func TestService_ProcessBatch_AliasIsCanonicalized(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	rec := customer("c1", baseTime.Add(-time.Minute), "Alice")
	rec.EntityName = "customer"
	_, err := svc.ProcessBatch(ctx, batchOf(rec))
	require.NoError(t, err)

	_, ok := repo.get("customers", "c1")
	assert.True(t, ok)
	assert.Equal(t, "customers", repo.state.outbox[0].EntityName)

	resp, err := svc.PullChanges(ctx, PullChangesRequest{
		ClientID: testTenant.ClientID,
		BranchID: testTenant.BranchID,
		Entities: []string{"customers"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Changes, 1)
	assert.Equal(t, "customers", resp.Changes[0].EntityName)
}

func TestService_ProcessBatch_NaturalKeyDedup(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	t0 := baseTime.Add(-time.Minute)

	item := func(id string) SyncRecord {
		return SyncRecord{
			EntityName:     "invoiceItems",
			RecordID:       id,
			Data:           map[string]any{"invoiceId": "inv-1", "productId": "p-1", "quantity": float64(2)},
			LocalUpdatedAt: t0,
		}
	}

	_, err := svc.ProcessBatch(ctx, batchOf(item("i1")))
	require.NoError(t, err)

	// восстановление из резервной копии выдало строке новый id
	resp, err := svc.ProcessBatch(ctx, batchOf(item("i1-restored")))
	require.NoError(t, err)

	assert.Equal(t, 1, resp.SyncedCount)
	assert.Empty(t, resp.Conflicts)
	assert.Equal(t, 1, repo.count("invoice_items"))
	assert.Len(t, repo.state.outbox, 1)

	// без полного ключа проверка не выполняется
	partial := item("i2")
	delete(partial.Data, "quantity")
	_, err = svc.ProcessBatch(ctx, batchOf(partial))
	require.NoError(t, err)
	assert.Equal(t, 2, repo.count("invoice_items"))
}

func TestService_ProcessBatch_InsertRaceFallsBackToUpdate(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.raceInsert["c1"] = memRow{
		tenant: testTenant,
		row: Row{
			ID:              "c1",
			ServerUpdatedAt: baseTime,
			SyncVersion:     1,
			Data:            map[string]any{"name": "Concurrent", "phone": "+999"},
		},
	}

	resp, err := svc.ProcessBatch(context.Background(), batchOf(customer("c1", baseTime.Add(-time.Minute), "Alice")))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.SyncedCount)

	row, _ := repo.get("customers", "c1")
	assert.Equal(t, int64(2), row.SyncVersion)
	assert.Equal(t, "Alice", row.Data["name"])
	assert.True(t, row.ServerUpdatedAt.After(baseTime))

	require.Len(t, repo.state.outbox, 1)
	assert.Equal(t, OperationUpdate, repo.state.outbox[0].Operation)
}

func TestService_ProcessBatch_StampsIncreaseWithinBatch(t *testing.T) {
	svc, repo, _ := newTestService(t)
	t0 := baseTime.Add(-time.Minute)

	_, err := svc.ProcessBatch(context.Background(), batchOf(
		customer("c1", t0, "A"),
		customer("c2", t0, "B"),
		customer("c3", t0, "C"),
	))
	require.NoError(t, err)

	c1, _ := repo.get("customers", "c1")
	c2, _ := repo.get("customers", "c2")
	c3, _ := repo.get("customers", "c3")
	assert.True(t, c2.ServerUpdatedAt.After(c1.ServerUpdatedAt))
	assert.True(t, c3.ServerUpdatedAt.After(c2.ServerUpdatedAt))
}
