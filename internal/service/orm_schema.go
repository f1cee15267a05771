package service

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// FieldSchema declares one typed field of an ORM prototype.
type FieldSchema struct {
	Name     string           `json:"name" yaml:"name"`
	Type     domain.ValueType `json:"type" yaml:"type"`
	Required bool             `json:"required,omitempty" yaml:"required"`
}

// PrototypeSchema is the field table of a registered prototype.
type PrototypeSchema struct {
	PrototypeID uuid.UUID     `json:"prototype_id" yaml:"-"`
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description"`
	Fields      []FieldSchema `json:"fields" yaml:"fields"`
}

func (p *PrototypeSchema) Field(name string) (FieldSchema, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// FieldNames returns the declared field names in declaration order.
func (p *PrototypeSchema) FieldNames() []string {
	names := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks the field table without touching the store.
func (p *PrototypeSchema) Validate() error {
	if p.Name == "" {
		return domain.MissingField("name")
	}
	// Shadowed by the registration route under /v1/orm.
	if p.Name == "prototypes" {
		return domain.InvalidValue("name", "prototypes is a reserved prototype name")
	}
	seen := make(map[string]bool, len(p.Fields))
	for _, f := range p.Fields {
		if f.Name == "" {
			return domain.MissingField("fields.name")
		}
		if f.Name == "uuid" {
			return domain.InvalidValue(f.Name, "uuid is a reserved field name")
		}
		if seen[f.Name] {
			return domain.InvalidValue(f.Name, "duplicate field "+f.Name)
		}
		seen[f.Name] = true
		if !domain.ValidValueType(string(f.Type)) {
			return domain.InvalidValue(f.Name, fmt.Sprintf("unknown value type %q", f.Type))
		}
	}
	return nil
}

// CheckValue type-checks v against the declared field.
func (p *PrototypeSchema) CheckValue(name string, v any) error {
	f, ok := p.Field(name)
	if !ok {
		return domain.InvalidValue(name, fmt.Sprintf("%s has no field %q", p.Name, name))
	}
	if v == nil {
		return domain.MissingField(name)
	}
	if !f.Type.Check(v) {
		return domain.InvalidValue(name, fmt.Sprintf("%s expects a %s, got %T", name, f.Type, v))
	}
	return nil
}

// SchemaRegistry maps prototype names and ids to their field tables.
type SchemaRegistry struct {
	mu     sync.RWMutex
	byName map[string]*PrototypeSchema
	byID   map[uuid.UUID]*PrototypeSchema
}

func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		byName: make(map[string]*PrototypeSchema),
		byID:   make(map[uuid.UUID]*PrototypeSchema),
	}
}

func (r *SchemaRegistry) put(s *PrototypeSchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[s.Name] = s
	r.byID[s.PrototypeID] = s
}

func (r *SchemaRegistry) Get(name string) (*PrototypeSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

func (r *SchemaRegistry) GetByID(id uuid.UUID) (*PrototypeSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

func (r *SchemaRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type schemaFile struct {
	Prototypes []PrototypeSchema `yaml:"prototypes"`
}

// ParseSchemas decodes a YAML document of the form
//
//	prototypes:
//	  - name: Person
//	    fields:
//	      - {name: name, type: string, required: true}
func ParseSchemas(r io.Reader) ([]PrototypeSchema, error) {
	var f schemaFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse schema file: %w", err)
	}
	for i := range f.Prototypes {
		if err := f.Prototypes[i].Validate(); err != nil {
			return nil, err
		}
	}
	return f.Prototypes, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
