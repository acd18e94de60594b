package schema

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed registry.yaml
var defaultRegistry []byte

type document struct {
	Version  int               `yaml:"version"`
	Entities []Entity          `yaml:"entities"`
	Aliases  map[string]string `yaml:"aliases"`
}

// Default реестр, поставляемый вместе с сервером
func Default() (*Registry, error) {
	return Parse(defaultRegistry)
}

// LoadFile читает реестр из YAML-файла (переопределение при развертывании)
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	return Parse(data)
}

// Parse разбирает YAML-описание реестра
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}
	if len(doc.Entities) == 0 {
		return nil, fmt.Errorf("%w: no entities declared", ErrInvalidRegistry)
	}

	r, err := New(doc.Entities, doc.Aliases)
	if err != nil {
		return nil, err
	}
	r.version = doc.Version

	return r, nil
}
