package sync

import (
	"time"
)

// DTO (Data Transfer Objects) для API синхронизации

// SyncRecord изменение, сделанное на устройстве
type SyncRecord struct {
	EntityName     string         `json:"entity_name" minLength:"1" example:"customers"`
	RecordID       string         `json:"record_id" minLength:"1" example:"c1"`
	Data           map[string]any `json:"data"`
	LocalUpdatedAt time.Time      `json:"local_updated_at" format:"date-time"`
	IsDeleted      bool           `json:"is_deleted,omitempty"`
}

// SyncBatchRequest пакет изменений от устройства
type SyncBatchRequest struct {
	ClientID string       `json:"client_id" minLength:"1"`
	BranchID string       `json:"branch_id" minLength:"1"`
	DeviceID string       `json:"device_id" minLength:"1"`
	Records  []SyncRecord `json:"records"`
}

func (r SyncBatchRequest) Tenant() Tenant {
	return Tenant{ClientID: r.ClientID, BranchID: r.BranchID}
}

// SyncConflict запись, не примененная из-за более новой версии на сервере
type SyncConflict struct {
	EntityName        string         `json:"entity_name"`
	RecordID          string         `json:"record_id"`
	LocalData         map[string]any `json:"local_data"`
	ServerData        map[string]any `json:"server_data"`
	LocalUpdatedAt    time.Time      `json:"local_updated_at"`
	ServerUpdatedAt   time.Time      `json:"server_updated_at"`
	ServerSyncVersion int64          `json:"server_sync_version"`
	ServerIsDeleted   bool           `json:"server_is_deleted"`
}

// RecordError ошибка обработки отдельной записи пакета
type RecordError struct {
	EntityName string `json:"entity_name"`
	RecordID   string `json:"record_id"`
	Error      string `json:"error"`
}

// SyncBatchResponse результат обработки пакета.
// Success означает фиксацию транзакции, а не успех каждой записи.
type SyncBatchResponse struct {
	Success     bool           `json:"success"`
	SyncedCount int            `json:"synced_count"`
	Conflicts   []SyncConflict `json:"conflicts"`
	Errors      []RecordError  `json:"errors"`
}

// PullChangesRequest запрос изменений после курсора.
// Без CursorEntity граница since исключающая целиком, иначе курсор указывает
// на последнюю полученную строку в порядке (server_updated_at, entity_name, record_id).
type PullChangesRequest struct {
	ClientID     string    `json:"client_id" minLength:"1"`
	BranchID     string    `json:"branch_id" minLength:"1"`
	Since        time.Time `json:"since,omitempty" format:"date-time"`
	CursorEntity string    `json:"cursor_entity,omitempty"`
	CursorID     string    `json:"cursor_id,omitempty"`
	Entities     []string  `json:"entities,omitempty"`
}

func (r PullChangesRequest) Tenant() Tenant {
	return Tenant{ClientID: r.ClientID, BranchID: r.BranchID}
}

// Change изменение строки для устройства
type Change struct {
	EntityName      string         `json:"entity_name"`
	RecordID        string         `json:"record_id"`
	Data            map[string]any `json:"data"`
	ServerUpdatedAt time.Time      `json:"server_updated_at"`
	SyncVersion     int64          `json:"sync_version"`
	IsDeleted       bool           `json:"is_deleted"`
}

// PullChangesResponse страница изменений.
// NextCursor, NextCursorEntity и NextCursorID заданы только при HasMore
// и передаются в следующий запрос как since, cursor_entity и cursor_id.
type PullChangesResponse struct {
	Changes          []Change   `json:"changes"`
	HasMore          bool       `json:"has_more"`
	NextCursor       *time.Time `json:"next_cursor,omitempty"`
	NextCursorEntity string     `json:"next_cursor_entity,omitempty"`
	NextCursorID     string     `json:"next_cursor_id,omitempty"`
}

// ResolveConflictRequest запрос на разрешение ранее возвращенного конфликта
type ResolveConflictRequest struct {
	ClientID   string         `json:"client_id" minLength:"1"`
	BranchID   string         `json:"branch_id" minLength:"1"`
	DeviceID   string         `json:"device_id,omitempty"`
	EntityName string         `json:"entity_name" minLength:"1"`
	RecordID   string         `json:"record_id" minLength:"1"`
	Resolution Resolution     `json:"resolution" enum:"accept_server,accept_client"`
	ClientData map[string]any `json:"client_data,omitempty"`
	IsDeleted  bool           `json:"is_deleted,omitempty"`
}

func (r ResolveConflictRequest) Tenant() Tenant {
	return Tenant{ClientID: r.ClientID, BranchID: r.BranchID}
}

// TableStats число живых строк сущности
type TableStats struct {
	EntityName  string `json:"entity_name"`
	RecordCount int64  `json:"record_count"`
}

// DiagnosticsResponse сводка состояния синхронизации клиента
type DiagnosticsResponse struct {
	PendingQueueCount int64        `json:"pending_queue_count"`
	LastSyncAt        *time.Time   `json:"last_sync_at,omitempty"`
	TablesStats       []TableStats `json:"tables_stats"`
}
