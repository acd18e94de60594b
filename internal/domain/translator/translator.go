// Package translator преобразует запись в формате устройства в набор колонок хранилища.
//
// Устройства присылают поля в camelCase, хранилище использует snake_case и
// типизированные колонки из реестра схемы. Переводчик чистый: без побочных
// эффектов и без обращения к хранилищу. Служебные колонки синхронизации
// (server_updated_at, sync_version) он никогда не возвращает.
package translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"possync/internal/domain/schema"
)

var ErrInvalidValue = errors.New("invalid field value")

// Translator переводчик на основе реестра схемы
type Translator struct {
	registry *schema.Registry
}

func New(registry *schema.Registry) *Translator {
	return &Translator{registry: registry}
}

// ClientToServer возвращает карту колонок хранилища для записи устройства.
// Неизвестные поля отбрасываются, значения приводятся к типу колонки.
func (t *Translator) ClientToServer(entityName string, data map[string]any, clientID, branchID string) (map[string]any, error) {
	entity, ok := t.registry.Lookup(entityName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrUnknownEntity, entityName)
	}

	out := make(map[string]any, len(data)+2)
	for key, raw := range data {
		name := ToSnakeCase(key)
		if schema.IsMetadataColumn(name) {
			continue
		}

		col, ok := entity.Column(name)
		if !ok {
			continue
		}

		value, err := coerce(col.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidValue, entity.Name, col.Name, err)
		}
		out[col.Name] = value
	}

	out[schema.ColumnClientID] = clientID
	out[schema.ColumnBranchID] = branchID

	return out, nil
}

// ToSnakeCase переводит имя поля устройства (invoiceId, HTMLColor) в имя колонки
func ToSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)

	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prev != '_' && (unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower)) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

func coerce(typ schema.ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch typ {
	case schema.ColumnText:
		return toText(v)
	case schema.ColumnInteger:
		return toInteger(v)
	case schema.ColumnNumeric:
		return toNumeric(v)
	case schema.ColumnBoolean:
		return toBoolean(v)
	case schema.ColumnTimestamp:
		return toTimestamp(v)
	case schema.ColumnJSON:
		return toJSON(v)
	}

	return nil, fmt.Errorf("unsupported column type %q", typ)
}

func toText(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	}
	return nil, fmt.Errorf("expected string, got %T", v)
}

func toInteger(v any) (any, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("expected integer, got %v", x)
		}
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	}
	return nil, fmt.Errorf("expected integer, got %T", v)
}

func toNumeric(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	return nil, fmt.Errorf("expected number, got %T", v)
}

func toBoolean(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case float64:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	}
	return nil, fmt.Errorf("expected boolean, got %v", v)
}

// toJSON сериализует значение заранее: строка должна попасть в jsonb как JSON-строка
func toJSON(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// toTimestamp принимает RFC 3339 или миллисекунды Unix (формат JavaScript-клиентов)
func toTimestamp(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(x))
		if err != nil {
			return nil, err
		}
		return ts.UTC(), nil
	case float64:
		return time.UnixMilli(int64(x)).UTC(), nil
	case int64:
		return time.UnixMilli(x).UTC(), nil
	case json.Number:
		ms, err := x.Int64()
		if err != nil {
			return nil, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	return nil, fmt.Errorf("expected timestamp, got %T", v)
}
