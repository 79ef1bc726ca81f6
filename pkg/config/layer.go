package config

import (
	"sort"
	"time"
)

// Origin identifies where a layer's data came from: a file path, "env",
// "flags", "secret-store:<name>", "default" or "static".
type Origin string

// OriginNone marks errors for keys that no layer provided.
const OriginNone Origin = ""

// SourceType identifies the kind of a configuration source. The kind
// determines the source's rank in the precedence order.
type SourceType string

const (
	SourceDefault SourceType = "default"
	SourceFile    SourceType = "file"
	SourceDotenv  SourceType = "dotenv"
	SourceSecret  SourceType = "secret"
	SourceEnv     SourceType = "env"
	SourceFlag    SourceType = "flag"
	SourceStatic  SourceType = "static"
)

// PrecedenceOrder is an explicit ordering of source kinds from lowest to
// highest precedence. Within one kind, layers keep their declaration order.
type PrecedenceOrder []SourceType

// DefaultPrecedence returns the standard ordering: defaults, then files,
// secret stores, dotenv files, environment, flags, with programmatic
// static overrides on top.
func DefaultPrecedence() PrecedenceOrder {
	return PrecedenceOrder{
		SourceDefault,
		SourceFile,
		SourceSecret,
		SourceDotenv,
		SourceEnv,
		SourceFlag,
		SourceStatic,
	}
}

func (p PrecedenceOrder) rank(t SourceType) (int, bool) {
	for i, kind := range p {
		if kind == t {
			return i, true
		}
	}
	return 0, false
}

// Entry is a single normalized key/value pair inside a layer. NativeKey
// preserves the source's original spelling for duplicate-key attribution.
type Entry struct {
	Value     any
	NativeKey string
}

// RawLayer is one source's normalized contribution: dotted keys mapped to
// entries, tagged with the producing origin and an optional profile.
// A RawLayer is immutable once produced.
type RawLayer struct {
	Origin  Origin
	Type    SourceType
	Profile string
	Entries map[string]Entry
}

// MergedValue is the merge result for one dotted key: the winning value,
// the origin that set it, and the full contribution history in ascending
// precedence order.
type MergedValue struct {
	Key        string
	Value      any
	Winner     Origin
	Provenance []Origin
}

// ResolvedConfig is the outcome of a resolution run: every merged key with
// its provenance, plus run metadata. It is owned by the caller and never
// mutated after Resolve returns.
type ResolvedConfig struct {
	Profile  string
	Values   map[string]MergedValue
	LoadedAt time.Time
}

// Keys returns all merged dotted keys in lexical order.
func (rc *ResolvedConfig) Keys() []string {
	keys := make([]string, 0, len(rc.Values))
	for k := range rc.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Winner returns the origin whose value won for the given key.
func (rc *ResolvedConfig) Winner(key string) Origin {
	return rc.Values[key].Winner
}

// Provenance returns the ordered origins that contributed to the key.
func (rc *ResolvedConfig) Provenance(key string) []Origin {
	return rc.Values[key].Provenance
}

// Get returns the merged raw value for the given key.
func (rc *ResolvedConfig) Get(key string) (any, bool) {
	mv, ok := rc.Values[key]
	if !ok {
		return nil, false
	}
	return mv.Value, true
}
