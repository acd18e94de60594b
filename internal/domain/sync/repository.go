package sync

import (
	"context"
	"time"

	"possync/internal/domain/schema"
)

// Repository интерфейс хранилища синхронизируемых сущностей
type Repository interface {
	// WithinTx выполняет fn в одной транзакции: ошибка fn откатывает всё
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Чтение
	// ListChanges возвращает строки после pos по возрастанию (server_updated_at, id)
	ListChanges(ctx context.Context, entity schema.Entity, tenant Tenant, pos Position, limit int) ([]Row, error)
	CountRows(ctx context.Context, entity schema.Entity, tenant Tenant) (int64, error)

	// Журнал исходящих уведомлений
	PendingOutboxCount(ctx context.Context, tenant Tenant) (int64, error)
	LastOutboxAt(ctx context.Context, tenant Tenant) (*time.Time, error)
}

// Position граница выборки изменений одной сущности.
// Подходят строки с server_updated_at > Since, а при IncludeSince также
// строки с server_updated_at = Since и id > AfterID (побайтовое сравнение).
type Position struct {
	Since        time.Time
	IncludeSince bool
	AfterID      string
}

// Tx операции внутри транзакции.
// Ошибки отдельного оператора, отклоненные базой, оборачиваются в ErrRecordRejected.
type Tx interface {
	// GetRow блокирует строку до конца транзакции, ErrRowNotFound если её нет
	GetRow(ctx context.Context, entity schema.Entity, tenant Tenant, id string) (*Row, error)
	FindByNaturalKey(ctx context.Context, entity schema.Entity, tenant Tenant, key map[string]any) (*Row, error)
	// InsertRow возвращает ErrDuplicateKey при нарушении уникальности id
	InsertRow(ctx context.Context, entity schema.Entity, m Mutation) error
	// UpdateRow увеличивает sync_version на 1, ErrRowNotFound если строки нет в области клиента
	UpdateRow(ctx context.Context, entity schema.Entity, m Mutation) error
	AppendOutbox(ctx context.Context, entry OutboxEntry) error

	// Savepoint выполняет fn во вложенной транзакции: ошибка fn откатывает только её
	Savepoint(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Translator переводит запись устройства в колонки хранилища
type Translator interface {
	ClientToServer(entityName string, data map[string]any, clientID, branchID string) (map[string]any, error)
}

// Recorder метрики синхронизации
type Recorder interface {
	BatchProcessed(ctx context.Context, d time.Duration, synced, conflicts, failed int)
	ChangesPulled(ctx context.Context, n int)
	ConflictResolved(ctx context.Context, resolution string)
}

type noopRecorder struct{}

func (noopRecorder) BatchProcessed(context.Context, time.Duration, int, int, int) {}
func (noopRecorder) ChangesPulled(context.Context, int)                          {}
func (noopRecorder) ConflictResolved(context.Context, string)                    {}
