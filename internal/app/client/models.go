package client

import (
	"time"

	"possync/internal/domain/sync"
)

// PendingChange локальное изменение, ожидающее отправки на сервер
type PendingChange struct {
	Seq            int64          `json:"seq"`
	EntityName     string         `json:"entity_name"`
	RecordID       string         `json:"record_id"`
	Data           map[string]any `json:"data"`
	LocalUpdatedAt time.Time      `json:"local_updated_at"`
	IsDeleted      bool           `json:"is_deleted"`
	Attempts       int            `json:"attempts"`
	LastError      string         `json:"last_error,omitempty"`
}

// Record возвращает изменение в формате пакета синхронизации
func (p PendingChange) Record() sync.SyncRecord {
	return sync.SyncRecord{
		EntityName:     p.EntityName,
		RecordID:       p.RecordID,
		Data:           p.Data,
		LocalUpdatedAt: p.LocalUpdatedAt,
		IsDeleted:      p.IsDeleted,
	}
}

// PushReport итог отправки очереди
type PushReport struct {
	Batches   int                 `json:"batches"`
	Synced    int                 `json:"synced"`
	Conflicts []sync.SyncConflict `json:"conflicts"`
	Errors    []sync.RecordError  `json:"errors"`
}

// PullCursor позиция последнего полученного изменения в порядке
// (server_updated_at, entity_name, record_id)
type PullCursor struct {
	At         time.Time `json:"at"`
	EntityName string    `json:"entity_name,omitempty"`
	RecordID   string    `json:"record_id,omitempty"`
}

func (c PullCursor) after(o PullCursor) bool {
	if !c.At.Equal(o.At) {
		return c.At.After(o.At)
	}
	if c.EntityName != o.EntityName {
		return c.EntityName > o.EntityName
	}
	return c.RecordID > o.RecordID
}

// PullReport итог получения изменений
type PullReport struct {
	Pages   int       `json:"pages"`
	Changes int       `json:"changes"`
	Cursor  time.Time `json:"cursor"`
}

// LocalStatus состояние локального хранилища
type LocalStatus struct {
	Pending    int64     `json:"pending"`
	ServerRows int64     `json:"server_rows"`
	Cursor     time.Time `json:"cursor"`
}
