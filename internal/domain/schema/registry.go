package schema

import (
	"fmt"
	"regexp"
)

var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Registry неизменяемый реестр синхронизируемых сущностей и их псевдонимов.
// Создается один раз при старте и передается во все компоненты явно.
type Registry struct {
	version  int
	entities []Entity
	index    map[string]int
	aliases  map[string]string
}

// New проверяет описание сущностей и псевдонимов и строит реестр
func New(entities []Entity, aliases map[string]string) (*Registry, error) {
	r := &Registry{
		entities: make([]Entity, 0, len(entities)),
		index:    make(map[string]int, len(entities)),
		aliases:  make(map[string]string, len(aliases)),
	}

	for _, e := range entities {
		if err := validateEntity(e); err != nil {
			return nil, err
		}
		if _, dup := r.index[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate entity %q", ErrInvalidRegistry, e.Name)
		}
		r.index[e.Name] = len(r.entities)
		r.entities = append(r.entities, e)
	}

	for alias, canonical := range aliases {
		if _, ok := r.index[canonical]; !ok {
			return nil, fmt.Errorf("%w: alias %q points to unknown entity %q", ErrInvalidRegistry, alias, canonical)
		}
		if _, shadows := r.index[alias]; shadows {
			return nil, fmt.Errorf("%w: alias %q shadows a canonical entity", ErrInvalidRegistry, alias)
		}
		r.aliases[alias] = canonical
	}

	return r, nil
}

func validateEntity(e Entity) error {
	if !identifierRe.MatchString(e.Name) {
		return fmt.Errorf("%w: invalid entity name %q", ErrInvalidRegistry, e.Name)
	}

	seen := make(map[string]struct{}, len(e.Columns))
	for _, c := range e.Columns {
		if !identifierRe.MatchString(c.Name) {
			return fmt.Errorf("%w: %s: invalid column name %q", ErrInvalidRegistry, e.Name, c.Name)
		}
		if IsMetadataColumn(c.Name) {
			return fmt.Errorf("%w: %s: column %q is managed by the sync engine", ErrInvalidRegistry, e.Name, c.Name)
		}
		if !c.Type.valid() {
			return fmt.Errorf("%w: %s.%s: unsupported type %q", ErrInvalidRegistry, e.Name, c.Name, c.Type)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate column %q", ErrInvalidRegistry, e.Name, c.Name)
		}
		seen[c.Name] = struct{}{}
	}

	for _, k := range e.NaturalKey {
		if _, ok := seen[k]; !ok {
			return fmt.Errorf("%w: %s: natural key column %q is not declared", ErrInvalidRegistry, e.Name, k)
		}
	}

	return nil
}

// Version версия описания реестра (0 для реестров, собранных в коде)
func (r *Registry) Version() int {
	return r.version
}

// Canonicalize переводит псевдоним в каноническое имя; неизвестное имя возвращается как есть
func (r *Registry) Canonicalize(name string) string {
	if canonical, ok := r.aliases[name]; ok {
		return canonical
	}
	return name
}

// IsSyncable проверяет, входит ли сущность (после канонизации) в список разрешенных
func (r *Registry) IsSyncable(name string) bool {
	_, ok := r.index[r.Canonicalize(name)]
	return ok
}

// Lookup возвращает описание сущности по имени или псевдониму
func (r *Registry) Lookup(name string) (Entity, bool) {
	i, ok := r.index[r.Canonicalize(name)]
	if !ok {
		return Entity{}, false
	}
	return r.entities[i], true
}

// Entities все сущности в фиксированном порядке объявления
func (r *Registry) Entities() []Entity {
	out := make([]Entity, len(r.entities))
	copy(out, r.entities)
	return out
}

// Names канонические имена сущностей в порядке объявления
func (r *Registry) Names() []string {
	names := make([]string, len(r.entities))
	for i, e := range r.entities {
		names[i] = e.Name
	}
	return names
}
