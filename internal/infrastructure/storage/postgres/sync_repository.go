package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/exp/slog"

	"possync/internal/domain/schema"
	"possync/internal/domain/sync"
)

// querier общий интерфейс пула и транзакции
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// SyncRepository реализация репозитория синхронизации для PostgreSQL.
// SQL строится только из имен, объявленных в реестре схемы.
type SyncRepository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewSyncRepository создает новый репозиторий синхронизации
func NewSyncRepository(pool *pgxpool.Pool, log *slog.Logger) *SyncRepository {
	return &SyncRepository{
		pool: pool,
		log:  log.With("component", "sync_repository"),
	}
}

// WithinTx выполняет fn в транзакции READ COMMITTED
func (r *SyncRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx sync.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &syncTx{tx: tx})
	})
}

// ListChanges возвращает строки клиента после pos по возрастанию (server_updated_at, id).
// id сравнивается побайтово (COLLATE "C"), как и в слиянии страниц сервиса.
func (r *SyncRepository) ListChanges(ctx context.Context, entity schema.Entity, tenant sync.Tenant, pos sync.Position, limit int) ([]sync.Row, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE client_id = $1 AND branch_id = $2
		  AND (server_updated_at > $3
		       OR ($4::boolean AND server_updated_at = $3 AND id COLLATE "C" > $5))
		ORDER BY server_updated_at, id COLLATE "C"
		LIMIT $6
	`, selectList(entity), table(entity))

	rows, err := r.pool.Query(ctx, query,
		tenant.ClientID, tenant.BranchID, pos.Since, pos.IncludeSince, pos.AfterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes of %s: %w", entity.Name, err)
	}
	defer rows.Close()

	var result []sync.Row
	for rows.Next() {
		row, err := scanRow(entity, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", entity.Name, err)
		}
		result = append(result, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list changes of %s: %w", entity.Name, err)
	}

	return result, nil
}

// CountRows возвращает число живых строк клиента
func (r *SyncRepository) CountRows(ctx context.Context, entity schema.Entity, tenant sync.Tenant) (int64, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM %s
		WHERE client_id = $1 AND branch_id = $2 AND NOT is_deleted
	`, table(entity))

	var n int64
	if err := r.pool.QueryRow(ctx, query, tenant.ClientID, tenant.BranchID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", entity.Name, err)
	}
	return n, nil
}

// PendingOutboxCount возвращает число уведомлений, не обработанных транспортом
func (r *SyncRepository) PendingOutboxCount(ctx context.Context, tenant sync.Tenant) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM sync_outbox
		WHERE client_id = $1 AND branch_id = $2 AND processed_at IS NULL
	`

	var n int64
	if err := r.pool.QueryRow(ctx, query, tenant.ClientID, tenant.BranchID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending outbox entries: %w", err)
	}
	return n, nil
}

// LastOutboxAt возвращает время последнего уведомления или nil
func (r *SyncRepository) LastOutboxAt(ctx context.Context, tenant sync.Tenant) (*time.Time, error) {
	query := `
		SELECT MAX(created_at)
		FROM sync_outbox
		WHERE client_id = $1 AND branch_id = $2
	`

	var last *time.Time
	if err := r.pool.QueryRow(ctx, query, tenant.ClientID, tenant.BranchID).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to get last outbox entry: %w", err)
	}
	if last != nil {
		utc := last.UTC()
		last = &utc
	}
	return last, nil
}

// syncTx операции внутри транзакции или точки сохранения
type syncTx struct {
	tx pgx.Tx
}

func (t *syncTx) Savepoint(ctx context.Context, fn func(ctx context.Context, tx sync.Tx) error) error {
	return pgx.BeginFunc(ctx, t.tx, func(sp pgx.Tx) error {
		return fn(ctx, &syncTx{tx: sp})
	})
}

func (t *syncTx) GetRow(ctx context.Context, entity schema.Entity, tenant sync.Tenant, id string) (*sync.Row, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1 AND client_id = $2 AND branch_id = $3
		FOR UPDATE
	`, selectList(entity), table(entity))

	return queryOne(ctx, t.tx, entity, query, id, tenant.ClientID, tenant.BranchID)
}

func (t *syncTx) FindByNaturalKey(ctx context.Context, entity schema.Entity, tenant sync.Tenant, key map[string]any) (*sync.Row, error) {
	args := []any{tenant.ClientID, tenant.BranchID}
	conds := []string{"client_id = $1", "branch_id = $2"}
	for _, name := range entity.NaturalKey {
		args = append(args, key[name])
		conds = append(conds, fmt.Sprintf("%s = $%d", ident(name), len(args)))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s
		ORDER BY server_updated_at
		LIMIT 1
	`, selectList(entity), table(entity), strings.Join(conds, " AND "))

	return queryOne(ctx, t.tx, entity, query, args...)
}

func (t *syncTx) InsertRow(ctx context.Context, entity schema.Entity, m sync.Mutation) error {
	names := []string{"id", "client_id", "branch_id", "is_deleted", "server_updated_at", "sync_version"}
	args := []any{m.ID, m.Tenant.ClientID, m.Tenant.BranchID, m.IsDeleted, m.ServerUpdatedAt, 1}

	for _, col := range entity.Columns {
		if v, ok := m.Columns[col.Name]; ok {
			names = append(names, ident(col.Name))
			args = append(args, v)
		}
	}

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		table(entity), strings.Join(names, ", "), strings.Join(placeholders, ", "))

	if _, err := t.tx.Exec(ctx, query, args...); err != nil {
		return classify(err)
	}
	return nil
}

func (t *syncTx) UpdateRow(ctx context.Context, entity schema.Entity, m sync.Mutation) error {
	args := []any{m.IsDeleted, m.ServerUpdatedAt}
	sets := []string{"is_deleted = $1", "server_updated_at = $2", "sync_version = sync_version + 1"}

	for _, col := range entity.Columns {
		if v, ok := m.Columns[col.Name]; ok {
			args = append(args, v)
			sets = append(sets, fmt.Sprintf("%s = $%d", ident(col.Name), len(args)))
		}
	}

	args = append(args, m.ID, m.Tenant.ClientID, m.Tenant.BranchID)
	n := len(args)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d AND client_id = $%d AND branch_id = $%d`,
		table(entity), strings.Join(sets, ", "), n-2, n-1, n)

	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return sync.ErrRowNotFound
	}
	return nil
}

func (t *syncTx) AppendOutbox(ctx context.Context, e sync.OutboxEntry) error {
	query := `
		INSERT INTO sync_outbox (id, client_id, branch_id, device_id, entity_name, record_id, operation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := t.tx.Exec(ctx, query,
		e.ID,
		e.Tenant.ClientID,
		e.Tenant.BranchID,
		e.DeviceID,
		e.EntityName,
		e.RecordID,
		string(e.Operation),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append outbox entry: %w", classify(err))
	}
	return nil
}

func queryOne(ctx context.Context, q querier, entity schema.Entity, query string, args ...any) (*sync.Row, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, classify(err)
		}
		return nil, sync.ErrRowNotFound
	}

	row, err := scanRow(entity, rows)
	if err != nil {
		return nil, classify(err)
	}
	return row, nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func table(entity schema.Entity) string {
	return ident(entity.Name)
}

// selectList служебные колонки, затем бизнес-колонки в порядке реестра
func selectList(entity schema.Entity) string {
	cols := []string{"id", "is_deleted", "server_updated_at", "sync_version"}
	for _, c := range entity.Columns {
		cols = append(cols, ident(c.Name))
	}
	return strings.Join(cols, ", ")
}

func scanRow(entity schema.Entity, rows pgx.Rows) (*sync.Row, error) {
	var row sync.Row
	values := make([]any, len(entity.Columns))

	dest := []any{&row.ID, &row.IsDeleted, &row.ServerUpdatedAt, &row.SyncVersion}
	for i := range values {
		dest = append(dest, &values[i])
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	row.ServerUpdatedAt = row.ServerUpdatedAt.UTC()
	row.Data = make(map[string]any, len(values))
	for i, col := range entity.Columns {
		row.Data[col.Name] = decode(values[i])
	}

	return &row, nil
}

// decode приводит значения pgx к типам, пригодным для JSON
func decode(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case time.Time:
		return x.UTC()
	}
	return v
}
