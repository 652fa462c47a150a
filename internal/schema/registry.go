package schema

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Registry holds the entity schemas known to the process, in declaration order.
type Registry struct {
	order  []string
	byName map[string]*EntitySchema
}

// NewRegistry validates the schemas and indexes them by name.
func NewRegistry(schemas ...*EntitySchema) (*Registry, error) {
	r := &Registry{byName: make(map[string]*EntitySchema)}
	if err := r.Override(schemas...); err != nil {
		return nil, err
	}
	return r, nil
}

// Defaults returns the built-in purchases, expenses and campaigns schemas.
func Defaults() (*Registry, error) {
	schemas, err := Parse(defaultsYAML)
	if err != nil {
		return nil, fmt.Errorf("Defaults: %w", err)
	}
	return NewRegistry(schemas...)
}

// MustDefaults is Defaults for callers that cannot recover, such as tests.
func MustDefaults() *Registry {
	r, err := Defaults()
	if err != nil {
		panic(err)
	}
	return r
}

// Parse decodes a YAML list of entity schemas.
func Parse(data []byte) ([]*EntitySchema, error) {
	var schemas []*EntitySchema
	if err := yaml.Unmarshal(data, &schemas); err != nil {
		return nil, fmt.Errorf("parse schemas: %w", err)
	}
	for _, s := range schemas {
		applyDefaults(s)
	}
	return schemas, nil
}

// LoadFile reads schemas from a YAML file.
func LoadFile(path string) ([]*EntitySchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadFile: read %q: %w", path, err)
	}
	return Parse(data)
}

// Override validates the schemas and replaces same-named entries, appending new ones.
func (r *Registry) Override(schemas ...*EntitySchema) error {
	for _, s := range schemas {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, exists := r.byName[s.Name]; !exists {
			r.order = append(r.order, s.Name)
		}
		r.byName[s.Name] = s
	}
	return nil
}

// Get returns the named schema.
func (r *Registry) Get(name string) (*EntitySchema, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Names returns the schema names in declaration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// All returns the schemas in declaration order.
func (r *Registry) All() []*EntitySchema {
	out := make([]*EntitySchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

func applyDefaults(s *EntitySchema) {
	if s.Title == "" {
		s.Title = s.Name
	}
	if s.Collection == "" {
		s.Collection = s.Name
	}
	if s.IDField == "" {
		s.IDField = "id"
	}
	if s.SlugLength == 0 {
		s.SlugLength = 20
	}
	for i := range s.Columns {
		if s.Columns[i].Type == "" {
			s.Columns[i].Type = TypeText
		}
	}
}
