package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"possync/internal/domain/sync"
)

const cursorKey = "pull_cursor"

// SQLiteStorage офлайн-очередь устройства и копия строк, полученных с сервера
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create queue dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	storage := &SQLiteStorage{db: db}

	if err := storage.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init queue tables: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS pending_changes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_name TEXT NOT NULL,
			record_id TEXT NOT NULL,
			data TEXT NOT NULL,
			local_updated_at TEXT NOT NULL,
			is_deleted BOOLEAN NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_pending_record ON pending_changes(entity_name, record_id);

		CREATE TABLE IF NOT EXISTS server_rows (
			entity_name TEXT NOT NULL,
			record_id TEXT NOT NULL,
			data TEXT NOT NULL,
			server_updated_at TEXT NOT NULL,
			sync_version INTEGER NOT NULL,
			is_deleted BOOLEAN NOT NULL DEFAULT 0,
			PRIMARY KEY (entity_name, record_id)
		);

		CREATE TABLE IF NOT EXISTS sync_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)

	return err
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Enqueue добавляет изменение в конец очереди
func (s *SQLiteStorage) Enqueue(ctx context.Context, change PendingChange) (int64, error) {
	data, err := json.Marshal(change.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to encode record data: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_changes (entity_name, record_id, data, local_updated_at, is_deleted)
		VALUES (?, ?, ?, ?, ?)
	`, change.EntityName, change.RecordID, string(data), formatTime(change.LocalUpdatedAt), change.IsDeleted)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue change: %w", err)
	}

	return res.LastInsertId()
}

// Pending возвращает изменения в порядке добавления. limit <= 0 означает все.
func (s *SQLiteStorage) Pending(ctx context.Context, limit int) ([]PendingChange, error) {
	query := `
		SELECT seq, entity_name, record_id, data, local_updated_at, is_deleted, attempts, last_error
		FROM pending_changes
		ORDER BY seq`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending changes: %w", err)
	}
	defer rows.Close()

	var changes []PendingChange
	for rows.Next() {
		var (
			c         PendingChange
			data      string
			updatedAt string
		)
		if err := rows.Scan(&c.Seq, &c.EntityName, &c.RecordID, &data, &updatedAt, &c.IsDeleted, &c.Attempts, &c.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan pending change: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &c.Data); err != nil {
			return nil, fmt.Errorf("failed to decode change %d: %w", c.Seq, err)
		}
		if c.LocalUpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("failed to decode change %d: %w", c.Seq, err)
		}
		changes = append(changes, c)
	}

	return changes, rows.Err()
}

// Count число изменений в очереди
func (s *SQLiteStorage) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_changes").Scan(&n)
	return n, err
}

// Remove удаляет отправленные изменения
func (s *SQLiteStorage) Remove(ctx context.Context, seqs ...int64) error {
	if len(seqs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seqs)), ",")
	args := make([]any, len(seqs))
	for i, seq := range seqs {
		args[i] = seq
	}

	_, err := s.db.ExecContext(ctx, "DELETE FROM pending_changes WHERE seq IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("failed to remove pending changes: %w", err)
	}
	return nil
}

// MarkFailed оставляет изменение в очереди и запоминает причину
func (s *SQLiteStorage) MarkFailed(ctx context.Context, seq int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_changes SET attempts = attempts + 1, last_error = ? WHERE seq = ?
	`, reason, seq)
	if err != nil {
		return fmt.Errorf("failed to mark change %d: %w", seq, err)
	}
	return nil
}

// RemoveRecord удаляет из очереди все изменения записи
func (s *SQLiteStorage) RemoveRecord(ctx context.Context, entityName, recordID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM pending_changes WHERE entity_name = ? AND record_id = ?", entityName, recordID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove record changes: %w", err)
	}
	return res.RowsAffected()
}

// Clear очищает очередь
func (s *SQLiteStorage) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pending_changes")
	if err != nil {
		return 0, fmt.Errorf("failed to clear queue: %w", err)
	}
	return res.RowsAffected()
}

// Cursor возвращает позицию последнего полученного изменения. Нулевая позиция, если pull не выполнялся.
func (s *SQLiteStorage) Cursor(ctx context.Context) (PullCursor, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM sync_state WHERE key = ?", cursorKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return PullCursor{}, nil
	}
	if err != nil {
		return PullCursor{}, fmt.Errorf("failed to read cursor: %w", err)
	}

	var cursor PullCursor
	if err := json.Unmarshal([]byte(value), &cursor); err != nil {
		return PullCursor{}, fmt.Errorf("failed to decode cursor: %w", err)
	}
	return cursor, nil
}

func (s *SQLiteStorage) SetCursor(ctx context.Context, cursor PullCursor) error {
	cursor.At = cursor.At.UTC()
	value, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("failed to encode cursor: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, cursorKey, string(value))
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// ResetCursor сбрасывает курсор, следующий pull начнется с начала истории
func (s *SQLiteStorage) ResetCursor(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sync_state WHERE key = ?", cursorKey); err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}
	return nil
}

// ApplyChanges сохраняет полученные изменения. Более старая версия строки не перезаписывает новую.
func (s *SQLiteStorage) ApplyChanges(ctx context.Context, changes []sync.Change) error {
	if len(changes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO server_rows (entity_name, record_id, data, server_updated_at, sync_version, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_name, record_id) DO UPDATE SET
			data = excluded.data,
			server_updated_at = excluded.server_updated_at,
			sync_version = excluded.sync_version,
			is_deleted = excluded.is_deleted
		WHERE excluded.sync_version >= server_rows.sync_version
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range changes {
		data, err := json.Marshal(c.Data)
		if err != nil {
			return fmt.Errorf("failed to encode %s/%s: %w", c.EntityName, c.RecordID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.EntityName, c.RecordID, string(data),
			formatTime(c.ServerUpdatedAt), c.SyncVersion, c.IsDeleted); err != nil {
			return fmt.Errorf("failed to store %s/%s: %w", c.EntityName, c.RecordID, err)
		}
	}

	return tx.Commit()
}

// ServerRow возвращает сохраненную копию строки сервера
func (s *SQLiteStorage) ServerRow(ctx context.Context, entityName, recordID string) (*sync.Change, error) {
	var (
		c         = sync.Change{EntityName: entityName, RecordID: recordID}
		data      string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT data, server_updated_at, sync_version, is_deleted
		FROM server_rows WHERE entity_name = ? AND record_id = ?
	`, entityName, recordID).Scan(&data, &updatedAt, &c.SyncVersion, &c.IsDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("row not found: %s/%s", entityName, recordID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read server row: %w", err)
	}

	if err := json.Unmarshal([]byte(data), &c.Data); err != nil {
		return nil, fmt.Errorf("failed to decode server row: %w", err)
	}
	if c.ServerUpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CountServerRows число сохраненных строк сервера
func (s *SQLiteStorage) CountServerRows(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM server_rows WHERE is_deleted = 0").Scan(&n)
	return n, err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
