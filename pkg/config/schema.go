package config

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/typedconf/typedconf/pkg/config/definition"
)

// DefaultListDelimiter splits string-typed raw values into slices during
// binding when the schema declares a list field.
const DefaultListDelimiter = ","

// Schema pairs a target configuration struct with the field registry
// enumerated from its tags. The registry drives defaults, explicit
// env/flag mappings and required-field checks; the struct drives binding.
//
// Each resolution run decodes into its own copy of the target type and
// commits the copy to the target under the schema's lock, only after every
// check passed. A failed run leaves the target untouched.
type Schema struct {
	target    any
	registry  *definition.Registry
	profiles  []string
	defaults  any
	delimiter string

	mu sync.Mutex
}

// SchemaOption customizes schema construction.
type SchemaOption func(*Schema)

// WithProfiles declares the valid profile names for this schema. An active
// profile outside this set, and not carried by any source, fails
// resolution with ProfileNotFoundError.
func WithProfiles(names ...string) SchemaOption {
	return func(s *Schema) { s.profiles = names }
}

// WithDefaults supplies a struct whose non-zero fields become the implicit
// lowest-precedence layer, rendered through the same koanf tags.
func WithDefaults(defaults any) SchemaOption {
	return func(s *Schema) { s.defaults = defaults }
}

// WithListDelimiter overrides the delimiter used to coerce string values
// into slice fields.
func WithListDelimiter(delimiter string) SchemaOption {
	return func(s *Schema) { s.delimiter = delimiter }
}

// WithField registers or overrides a single field definition, for schema
// details the tag walk cannot express (programmatic defaults, help text).
func WithField(field *definition.FieldDef) SchemaOption {
	return func(s *Schema) { s.registry.Register(field) }
}

// NewSchema builds a schema from a pointer to a configuration struct.
func NewSchema(target any, opts ...SchemaOption) (*Schema, error) {
	v := reflect.ValueOf(target)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema target must be a non-nil pointer to a struct")
	}
	registry, err := definition.FromStruct(target)
	if err != nil {
		return nil, err
	}
	s := &Schema{
		target:    target,
		registry:  registry,
		delimiter: DefaultListDelimiter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Fields enumerates the schema's field definitions in stable order.
func (s *Schema) Fields() []definition.FieldDef {
	return s.registry.Fields()
}

// Registry exposes the underlying field registry, e.g. to feed explicit
// env or flag mappings into source providers.
func (s *Schema) Registry() *definition.Registry {
	return s.registry
}

// commit copies a fully decoded and validated value into the target.
func (s *Schema) commit(fresh any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reflect.ValueOf(s.target).Elem().Set(reflect.ValueOf(fresh).Elem())
}
