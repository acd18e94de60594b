package sync

import (
	"time"

	"github.com/google/uuid"
)

const (
	// MaxBatchSize максимальное число записей в одном пакете push
	MaxBatchSize = 50
	// MaxPullSize максимальное число изменений в одном ответе pull
	MaxPullSize = 100
)

// Tenant область данных клиента: все чтения и записи ограничены этой парой
type Tenant struct {
	ClientID string
	BranchID string
}

func (t Tenant) valid() bool {
	return t.ClientID != "" && t.BranchID != ""
}

// Operation тип операции в журнале исходящих уведомлений
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Resolution способ разрешения конфликта
type Resolution string

const (
	ResolutionAcceptServer Resolution = "accept_server"
	ResolutionAcceptClient Resolution = "accept_client"
)

// Row строка синхронизируемой сущности в хранилище.
// Data содержит только бизнес-колонки, служебные поля вынесены отдельно.
type Row struct {
	ID              string
	IsDeleted       bool
	ServerUpdatedAt time.Time
	SyncVersion     int64
	Data            map[string]any
}

// Mutation принятое изменение строки.
// При вставке sync_version равен 1, при обновлении увеличивается хранилищем на 1.
type Mutation struct {
	ID              string
	Tenant          Tenant
	Columns         map[string]any
	IsDeleted       bool
	ServerUpdatedAt time.Time
}

// OutboxEntry запись журнала исходящих уведомлений для внешнего транспорта
type OutboxEntry struct {
	ID         uuid.UUID
	Tenant     Tenant
	DeviceID   string
	EntityName string
	RecordID   string
	Operation  Operation
	CreatedAt  time.Time
}
