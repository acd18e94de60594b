package schema

// ColumnType тип бизнес-колонки синхронизируемой таблицы
type ColumnType string

const (
	ColumnText      ColumnType = "text"
	ColumnInteger   ColumnType = "integer"
	ColumnNumeric   ColumnType = "numeric"
	ColumnBoolean   ColumnType = "boolean"
	ColumnTimestamp ColumnType = "timestamp"
	ColumnJSON      ColumnType = "json"
)

// Служебные колонки, присутствующие в каждой синхронизируемой таблице
const (
	ColumnID              = "id"
	ColumnClientID        = "client_id"
	ColumnBranchID        = "branch_id"
	ColumnIsDeleted       = "is_deleted"
	ColumnServerUpdatedAt = "server_updated_at"
	ColumnSyncVersion     = "sync_version"
)

// MetadataColumns служебные колонки в порядке выборки
var MetadataColumns = []string{
	ColumnID,
	ColumnClientID,
	ColumnBranchID,
	ColumnIsDeleted,
	ColumnServerUpdatedAt,
	ColumnSyncVersion,
}

// IsMetadataColumn сообщает, управляется ли колонка движком синхронизации
func IsMetadataColumn(name string) bool {
	for _, c := range MetadataColumns {
		if c == name {
			return true
		}
	}
	return false
}

func (t ColumnType) valid() bool {
	switch t {
	case ColumnText, ColumnInteger, ColumnNumeric, ColumnBoolean, ColumnTimestamp, ColumnJSON:
		return true
	}
	return false
}

// Column бизнес-колонка сущности
type Column struct {
	Name string     `yaml:"name"`
	Type ColumnType `yaml:"type"`
}

// Entity синхронизируемая сущность (таблица)
type Entity struct {
	Name    string   `yaml:"name"`
	Columns []Column `yaml:"columns"`
	// NaturalKey набор колонок, по которому повторно созданная при восстановлении
	// из бэкапа запись распознается как уже синхронизированная.
	NaturalKey []string `yaml:"natural_key,omitempty"`
}

// Column возвращает описание колонки по имени
func (e Entity) Column(name string) (Column, bool) {
	for _, c := range e.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames бизнес-колонки в порядке объявления
func (e Entity) ColumnNames() []string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return names
}

// HasNaturalKey включена ли для сущности дедупликация по натуральному ключу
func (e Entity) HasNaturalKey() bool {
	return len(e.NaturalKey) > 0
}
