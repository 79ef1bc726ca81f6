package definition

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// FieldDef describes a single configuration field: where it lives in the
// dotted key space and how each source kind addresses it.
type FieldDef struct {
	Path     string       // dotted path like "db.host"
	Default  any          // default value, nil when the field has none
	EnvVar   string       // explicit environment variable name like "DB_HOST"
	CLIFlag  string       // CLI flag name like "db-host"
	Type     reflect.Type // declared field type, used for coercion diagnostics
	Required bool         // field must be supplied by some layer or default
	Help     string       // help text for CLI surfaces
}

// Registry holds all configuration field definitions for one schema.
type Registry struct {
	fields map[string]FieldDef
}

// NewRegistry creates an empty field registry.
func NewRegistry() *Registry {
	return &Registry{fields: make(map[string]FieldDef)}
}

// Register adds or replaces a field definition.
func (r *Registry) Register(field *FieldDef) {
	r.fields[field.Path] = *field
}

// Field returns a field definition by dotted path.
func (r *Registry) Field(path string) (FieldDef, bool) {
	field, exists := r.fields[path]
	return field, exists
}

// Fields returns all definitions ordered by path. The order is stable so
// callers enumerating the schema see a deterministic sequence.
func (r *Registry) Fields() []FieldDef {
	paths := make([]string, 0, len(r.fields))
	for p := range r.fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	result := make([]FieldDef, 0, len(paths))
	for _, p := range paths {
		result = append(result, r.fields[p])
	}
	return result
}

// Defaults returns the dotted-path map of all declared default values.
func (r *Registry) Defaults() map[string]any {
	result := make(map[string]any)
	for path, field := range r.fields {
		if field.Default != nil {
			result[path] = field.Default
		}
	}
	return result
}

// RequiredPaths returns the dotted paths of all required fields, ordered.
func (r *Registry) RequiredPaths() []string {
	var paths []string
	for path, field := range r.fields {
		if field.Required {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// EnvMapping returns a map from environment variable name to dotted path
// for every field that declares an explicit env var.
func (r *Registry) EnvMapping() map[string]string {
	mapping := make(map[string]string)
	for path, field := range r.fields {
		if field.EnvVar != "" {
			mapping[field.EnvVar] = path
		}
	}
	return mapping
}

// FlagMapping returns a map from CLI flag name to dotted path for every
// field that declares an explicit flag.
func (r *Registry) FlagMapping() map[string]string {
	mapping := make(map[string]string)
	for path, field := range r.fields {
		if field.CLIFlag != "" {
			mapping[field.CLIFlag] = path
		}
	}
	return mapping
}

// FromStruct builds a registry by walking a configuration struct's tags.
// The `koanf` tag names the path segment, `env` and `flag` declare explicit
// source mappings, `help` carries CLI help text, and a `validate` tag
// containing "required" marks the field required. Nested structs recurse
// with their segments joined by dots.
func FromStruct(target any) (*Registry, error) {
	t := reflect.TypeOf(target)
	if t == nil {
		return nil, fmt.Errorf("schema target cannot be nil")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema target must be a struct or pointer to struct, got %s", t.Kind())
	}
	registry := NewRegistry()
	collectFields(registry, t, "")
	return registry, nil
}

func collectFields(registry *Registry, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		koanfTag := field.Tag.Get("koanf")
		if koanfTag == "" || koanfTag == "-" {
			continue
		}
		path := koanfTag
		if prefix != "" {
			path = prefix + "." + koanfTag
		}
		ft := field.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		// time.Duration and time.Time are leaves, not sub-schemas.
		if ft.Kind() == reflect.Struct && ft.PkgPath() != "time" {
			collectFields(registry, ft, path)
			continue
		}
		registry.Register(&FieldDef{
			Path:     path,
			EnvVar:   tagValue(field, "env"),
			CLIFlag:  tagValue(field, "flag"),
			Type:     field.Type,
			Required: hasRequired(field.Tag.Get("validate")),
			Help:     field.Tag.Get("help"),
		})
	}
}

func tagValue(field reflect.StructField, name string) string {
	v := field.Tag.Get(name)
	if v == "-" {
		return ""
	}
	return v
}

func hasRequired(validateTag string) bool {
	for _, part := range strings.Split(validateTag, ",") {
		if strings.TrimSpace(part) == "required" {
			return true
		}
	}
	return false
}
