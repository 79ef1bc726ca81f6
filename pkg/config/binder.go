package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/v2"
)

// bindSchema coerces and validates the merged mapping against the schema.
// It never stops at the first problem: required checks, decode failures
// and constraint violations are all collected so one resolution attempt
// reports everything at once.
//
// Decoding happens into a fresh per-run copy of the target type; the copy
// is committed to the schema's target only when every check passed, so a
// failed run never leaves partial state behind and concurrent runs never
// share a decode destination.
func bindSchema(validate *validator.Validate, schema *Schema, merged map[string]MergedValue) []ValidationError {
	var errs []ValidationError
	reported := make(map[string]bool)

	for _, path := range schema.registry.RequiredPaths() {
		if _, ok := merged[path]; !ok {
			errs = append(errs, ValidationError{
				Key:     path,
				Origin:  OriginNone,
				Message: "required key missing: no layer provided it and no default is declared",
			})
			reported[path] = true
		}
	}

	flat := make(map[string]any, len(merged))
	for key, mv := range merged {
		flat[key] = mv.Value
	}
	nested := maps.Unflatten(flat, ".")

	k := koanf.New(".")
	if err := k.Load(rawMap(nested), nil); err != nil {
		errs = append(errs, ValidationError{Message: fmt.Sprintf("failed to assemble merged mapping: %v", err)})
		return errs
	}

	paths := fieldPathTable(reflect.TypeOf(schema.target))
	fresh := reflect.New(reflect.TypeOf(schema.target).Elem()).Interface()
	if err := decodeInto(k, schema, fresh); err != nil {
		for _, issue := range splitDecodeErrors(err) {
			key := resolveErrorKey(issue.name, issue.message, paths)
			if reported[key] {
				continue
			}
			errs = append(errs, ValidationError{
				Key:     key,
				Origin:  winnerOf(merged, key),
				Message: issue.message,
			})
			reported[key] = true
		}
	}

	var verrs validator.ValidationErrors
	if err := validate.Struct(fresh); errors.As(err, &verrs) {
		for _, fe := range verrs {
			key := namespaceKey(fe.StructNamespace(), paths)
			if reported[key] {
				continue
			}
			errs = append(errs, ValidationError{
				Key:     key,
				Origin:  winnerOf(merged, key),
				Message: constraintMessage(fe),
			})
			reported[key] = true
		}
	} else if err != nil {
		errs = append(errs, ValidationError{Message: fmt.Sprintf("validation failed: %v", err)})
	}

	sort.Slice(errs, func(i, j int) bool { return errs[i].Key < errs[j].Key })
	if len(errs) == 0 {
		schema.commit(fresh)
	}
	return errs
}

// decodeInto unmarshals the assembled mapping into dst with weak typing,
// so string raw values from env, argv and secret layers coerce to the
// declared primitive types. Durations parse from their string form and
// delimiter-joined strings expand into slices.
func decodeInto(k *koanf.Koanf, schema *Schema, dst any) error {
	return k.UnmarshalWithConf("", dst, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           dst,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(schema.delimiter),
			),
		},
	})
}

// decodeIssue is one per-field decode failure with the field name the
// decoder reported, when it reported one.
type decodeIssue struct {
	name    string
	message string
}

// splitDecodeErrors unpacks the per-field failures mapstructure joins into
// one error value, keeping each field's reported name for attribution.
func splitDecodeErrors(err error) []decodeIssue {
	var issues []decodeIssue
	collectDecodeIssues(err, &issues)
	return issues
}

func collectDecodeIssues(err error, issues *[]decodeIssue) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, sub := range joined.Unwrap() {
			collectDecodeIssues(sub, issues)
		}
		return
	}
	var de *mapstructure.DecodeError
	if errors.As(err, &de) {
		*issues = append(*issues, decodeIssue{name: de.Name(), message: de.Error()})
		return
	}
	if sub := errors.Unwrap(err); sub != nil {
		collectDecodeIssues(sub, issues)
		return
	}
	*issues = append(*issues, decodeIssue{message: err.Error()})
}

var quotedPathPattern = regexp.MustCompile(`'([^']+)'`)

// resolveErrorKey maps the field name attached to a decode failure back
// into the dotted key space. Failures that carry no name fall back to the
// first quoted path in the message; an empty result means the failure
// could not be pinned to a key and renders with a placeholder.
func resolveErrorKey(name, msg string, paths map[string]string) string {
	if name == "" {
		if m := quotedPathPattern.FindStringSubmatch(msg); m != nil {
			name = m[1]
		}
	}
	if name == "" {
		return ""
	}
	if path, ok := paths[name]; ok {
		return path
	}
	return strings.ToLower(name)
}

// namespaceKey maps a validator struct namespace like "AppConfig.DB.Host"
// to its dotted key.
func namespaceKey(namespace string, paths map[string]string) string {
	parts := strings.SplitN(namespace, ".", 2)
	if len(parts) == 2 {
		if path, ok := paths[parts[1]]; ok {
			return path
		}
	}
	if path, ok := paths[namespace]; ok {
		return path
	}
	return strings.ToLower(namespace)
}

func constraintMessage(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("failed %q constraint (param %s)", fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("failed %q constraint", fe.Tag())
}

func winnerOf(merged map[string]MergedValue, key string) Origin {
	if mv, ok := merged[key]; ok {
		return mv.Winner
	}
	return OriginNone
}

// fieldPathTable walks the target struct and maps field-name paths like
// "DB.Host" onto dotted tag paths like "db.host", so errors reported in
// struct terms can be attributed to merged keys.
func fieldPathTable(t reflect.Type) map[string]string {
	table := make(map[string]string)
	if t == nil {
		return table
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return table
	}
	collectFieldPaths(table, t, "", "")
	return table
}

func collectFieldPaths(table map[string]string, t reflect.Type, namePrefix, pathPrefix string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("koanf")
		if tag == "" || tag == "-" {
			continue
		}
		name := field.Name
		if namePrefix != "" {
			name = namePrefix + "." + name
		}
		path := tag
		if pathPrefix != "" {
			path = pathPrefix + "." + tag
		}
		table[name] = path
		table[path] = path
		ft := field.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft.PkgPath() != "time" {
			collectFieldPaths(table, ft, name, path)
		}
	}
}

// rawMap adapts an already-assembled map to koanf's provider interface.
type rawMap map[string]any

func (r rawMap) Read() (map[string]any, error) {
	return r, nil
}

func (r rawMap) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("ReadBytes not implemented")
}
