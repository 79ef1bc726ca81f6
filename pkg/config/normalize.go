package config

import (
	"strings"
)

// FlagConvention declares how dashed flag names map into the dotted key
// space when no explicit flag mapping exists for them.
type FlagConvention int

const (
	// DashToDot maps "db-host" to "db.host".
	DashToDot FlagConvention = iota
	// DashToUnderscore maps "max-tokens" to "max_tokens".
	DashToUnderscore
)

// layerBuilder accumulates normalized entries for one layer and fails fast
// when two distinct native keys collapse onto the same dotted key.
type layerBuilder struct {
	origin  Origin
	entries map[string]Entry
}

func newLayerBuilder(origin Origin) *layerBuilder {
	return &layerBuilder{origin: origin, entries: make(map[string]Entry)}
}

func (b *layerBuilder) set(key, nativeKey string, value any) error {
	if prev, exists := b.entries[key]; exists && prev.NativeKey != nativeKey {
		return &DuplicateKeyError{
			Origin:    b.origin,
			Key:       key,
			NativeKey: nativeKey,
			Conflict:  prev.NativeKey,
		}
	}
	b.entries[key] = Entry{Value: value, NativeKey: nativeKey}
	return nil
}

func (b *layerBuilder) layer(t SourceType, profile string) *RawLayer {
	return &RawLayer{Origin: b.origin, Type: t, Profile: profile, Entries: b.entries}
}

// flattenTables recursively flattens nested tables into dotted keys with
// lowercase segments. Segment case is normalized, so [DB] and [db] tables
// collide and surface as a DuplicateKeyError rather than a silent pick.
func flattenTables(b *layerBuilder, prefix, nativePrefix string, m map[string]any) error {
	for k, v := range m {
		key := strings.ToLower(k)
		native := k
		if prefix != "" {
			key = prefix + "." + key
			native = nativePrefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			if err := flattenTables(b, key, native, nested); err != nil {
				return err
			}
			continue
		}
		if err := b.set(key, native, v); err != nil {
			return err
		}
	}
	return nil
}

// normalizeEnvKey converts an environment variable name into a dotted key.
// The declared prefix is stripped (a non-matching name is excluded), the
// name is lowercased and split on the nesting delimiter; single underscores
// inside a segment are preserved, so with delimiter "__" the variable
// APP_DB__MAX_CONNS becomes db.max_conns under prefix APP_.
func normalizeEnvKey(name, prefix, delimiter string) (string, bool) {
	if prefix != "" {
		if !strings.HasPrefix(name, prefix) {
			return "", false
		}
		name = strings.TrimPrefix(name, prefix)
	}
	name = strings.ToLower(name)
	var segments []string
	for _, part := range strings.Split(name, strings.ToLower(delimiter)) {
		part = strings.Trim(part, "_")
		if part != "" {
			segments = append(segments, part)
		}
	}
	if len(segments) == 0 {
		return "", false
	}
	return strings.Join(segments, "."), true
}

// normalizeFlagName converts a CLI flag name into a dotted key. Leading
// dashes are stripped, the name is lowercased, and the direct dotted form
// --a.b.c passes through unchanged. Otherwise dashes map per convention.
func normalizeFlagName(name string, convention FlagConvention) string {
	name = strings.ToLower(strings.TrimLeft(name, "-"))
	if strings.Contains(name, ".") {
		return name
	}
	switch convention {
	case DashToUnderscore:
		return strings.ReplaceAll(name, "-", "_")
	default:
		return strings.ReplaceAll(name, "-", ".")
	}
}
