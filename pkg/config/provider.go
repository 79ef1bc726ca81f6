package config

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/maps"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/spf13/pflag"
)

// DefaultEnvDelimiter separates nesting levels in environment variable
// names: APP_DB__HOST maps to db.host under prefix APP_.
const DefaultEnvDelimiter = "__"

// Source produces one normalized configuration layer. Implementations may
// perform blocking I/O in Load; any handle they open is released before
// Load returns, on every path, so sources carry no state that needs
// explicit teardown.
type Source interface {
	// Load reads the source and returns its normalized layer.
	Load() (*RawLayer, error)
	// Type returns the source kind, which fixes its precedence rank.
	Type() SourceType
	// Origin identifies the source in provenance and error reports.
	Origin() Origin
	// Profile returns the profile tag, or "" for always-active sources.
	Profile() string
}

// TOMLOptions configures a TOML file source.
type TOMLOptions struct {
	// Required makes a missing file a SourceError instead of an empty layer.
	Required bool
	Profile  string
}

type tomlProvider struct {
	path string
	opts TOMLOptions
}

// NewTOMLProvider creates a configuration source backed by a TOML file.
// A missing optional file yields an empty layer.
func NewTOMLProvider(path string, opts TOMLOptions) Source {
	return &tomlProvider{path: path, opts: opts}
}

func (t *tomlProvider) Load() (*RawLayer, error) {
	b := newLayerBuilder(t.Origin())
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) && !t.opts.Required {
			return b.layer(SourceFile, t.opts.Profile), nil
		}
		return nil, fmt.Errorf("failed to read TOML file: %w", err)
	}
	var tables map[string]any
	if err := toml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("failed to parse TOML file: %w", err)
	}
	if err := flattenTables(b, "", "", tables); err != nil {
		return nil, err
	}
	return b.layer(SourceFile, t.opts.Profile), nil
}

func (t *tomlProvider) Type() SourceType { return SourceFile }
func (t *tomlProvider) Origin() Origin   { return Origin(t.path) }
func (t *tomlProvider) Profile() string  { return t.opts.Profile }

// EnvOptions configures the environment-scan source.
type EnvOptions struct {
	// Prefix restricts the scan to matching variables; it is stripped
	// before normalization. Empty means every variable participates.
	Prefix string
	// Delimiter separates nesting levels, DefaultEnvDelimiter when empty.
	Delimiter string
	// Mapping pins explicit variable names to dotted paths and takes
	// priority over the generic transform.
	Mapping map[string]string
	Profile string
}

type envProvider struct {
	opts EnvOptions
}

// NewEnvProvider creates a configuration source that scans the process
// environment through koanf's env provider.
func NewEnvProvider(opts EnvOptions) Source {
	if opts.Delimiter == "" {
		opts.Delimiter = DefaultEnvDelimiter
	}
	return &envProvider{opts: opts}
}

func (e *envProvider) Load() (*RawLayer, error) {
	b := newLayerBuilder(e.Origin())
	var dupErr error
	provider := env.Provider(".", env.Opt{
		Prefix: e.opts.Prefix,
		TransformFunc: func(key, value string) (string, any) {
			dotted, ok := e.opts.Mapping[key]
			if !ok {
				dotted, ok = normalizeEnvKey(key, e.opts.Prefix, e.opts.Delimiter)
			}
			if !ok {
				return "", nil
			}
			if err := b.set(dotted, key, value); err != nil && dupErr == nil {
				dupErr = err
			}
			// Entries are collected in the builder; returning an empty
			// key keeps the provider's own map out of the picture.
			return "", nil
		},
	})
	if _, err := provider.Read(); err != nil {
		return nil, fmt.Errorf("failed to scan environment: %w", err)
	}
	if dupErr != nil {
		return nil, dupErr
	}
	return b.layer(SourceEnv, e.opts.Profile), nil
}

func (e *envProvider) Type() SourceType { return SourceEnv }
func (e *envProvider) Origin() Origin   { return "env" }
func (e *envProvider) Profile() string  { return e.opts.Profile }

// DotenvOptions configures a dotenv file source.
type DotenvOptions struct {
	Prefix    string
	Delimiter string
	Required  bool
	Profile   string
}

type dotenvProvider struct {
	path string
	opts DotenvOptions
}

// NewDotenvProvider creates a configuration source backed by a dotenv
// file. Keys are normalized exactly like environment variables.
func NewDotenvProvider(path string, opts DotenvOptions) Source {
	if opts.Delimiter == "" {
		opts.Delimiter = DefaultEnvDelimiter
	}
	return &dotenvProvider{path: path, opts: opts}
}

func (d *dotenvProvider) Load() (*RawLayer, error) {
	b := newLayerBuilder(d.Origin())
	vars, err := godotenv.Read(d.path)
	if err != nil {
		if os.IsNotExist(err) && !d.opts.Required {
			return b.layer(SourceDotenv, d.opts.Profile), nil
		}
		return nil, fmt.Errorf("failed to read dotenv file: %w", err)
	}
	for name, value := range vars {
		dotted, ok := normalizeEnvKey(name, d.opts.Prefix, d.opts.Delimiter)
		if !ok {
			continue
		}
		if err := b.set(dotted, name, value); err != nil {
			return nil, err
		}
	}
	return b.layer(SourceDotenv, d.opts.Profile), nil
}

func (d *dotenvProvider) Type() SourceType { return SourceDotenv }
func (d *dotenvProvider) Origin() Origin   { return Origin(d.path) }
func (d *dotenvProvider) Profile() string  { return d.opts.Profile }

// FlagOptions configures a command-line flag source.
type FlagOptions struct {
	// Mapping pins explicit flag names to dotted paths; unmapped flags go
	// through the generic dash convention.
	Mapping    map[string]string
	Convention FlagConvention
	Profile    string
}

type flagProvider struct {
	flags *pflag.FlagSet
	opts  FlagOptions
}

// NewFlagProvider creates a configuration source over a parsed flag set.
// Only flags the user actually set contribute; repeated slice flags
// aggregate into one value.
func NewFlagProvider(flags *pflag.FlagSet, opts FlagOptions) Source {
	return &flagProvider{flags: flags, opts: opts}
}

func (f *flagProvider) Load() (*RawLayer, error) {
	b := newLayerBuilder(f.Origin())
	var dupErr error
	f.flags.Visit(func(fl *pflag.Flag) {
		if dupErr != nil {
			return
		}
		dotted, ok := f.opts.Mapping[fl.Name]
		if !ok {
			dotted = normalizeFlagName(fl.Name, f.opts.Convention)
		}
		var value any = fl.Value.String()
		if sv, isSlice := fl.Value.(pflag.SliceValue); isSlice {
			value = sv.GetSlice()
		}
		if err := b.set(dotted, fl.Name, value); err != nil {
			dupErr = err
		}
	})
	if dupErr != nil {
		return nil, dupErr
	}
	return b.layer(SourceFlag, f.opts.Profile), nil
}

func (f *flagProvider) Type() SourceType { return SourceFlag }
func (f *flagProvider) Origin() Origin   { return "argv" }
func (f *flagProvider) Profile() string  { return f.opts.Profile }

// SecretClient retrieves one named secret bundle as flat key/value pairs.
type SecretClient interface {
	Fetch(name string) (map[string]string, error)
}

type secretProvider struct {
	client  SecretClient
	name    string
	profile string
}

// NewSecretProvider creates a configuration source backed by an external
// secret store. Keys inside the bundle are normalized like environment
// names, with the dotted form passing through unchanged.
func NewSecretProvider(client SecretClient, name, profile string) Source {
	return &secretProvider{client: client, name: name, profile: profile}
}

func (s *secretProvider) Load() (*RawLayer, error) {
	b := newLayerBuilder(s.Origin())
	bundle, err := s.client.Fetch(s.name)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch secret %q: %w", s.name, err)
	}
	for name, value := range bundle {
		dotted, ok := normalizeEnvKey(name, "", DefaultEnvDelimiter)
		if !ok {
			continue
		}
		if err := b.set(dotted, name, value); err != nil {
			return nil, err
		}
	}
	return b.layer(SourceSecret, s.profile), nil
}

func (s *secretProvider) Type() SourceType { return SourceSecret }
func (s *secretProvider) Origin() Origin   { return Origin("secret-store:" + s.name) }
func (s *secretProvider) Profile() string  { return s.profile }

// HTTPSecretClient fetches secret bundles from a KV-style HTTP store.
type HTTPSecretClient struct {
	http *resty.Client
}

// NewHTTPSecretClient creates a client for a secret store exposing
// GET <baseURL>/v1/secret/<name> with a {"data": {...}} payload.
func NewHTTPSecretClient(baseURL, token string) *HTTPSecretClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second)
	if token != "" {
		client.SetAuthToken(token)
	}
	return &HTTPSecretClient{http: client}
}

// Fetch retrieves the named secret bundle.
func (c *HTTPSecretClient) Fetch(name string) (map[string]string, error) {
	var out struct {
		Data map[string]string `json:"data"`
	}
	resp, err := c.http.R().
		SetResult(&out).
		Get("/v1/secret/" + name)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("secret store returned %s", resp.Status())
	}
	return out.Data, nil
}

type staticProvider struct {
	data    map[string]any
	origin  Origin
	profile string
}

// NewStaticProvider creates a configuration source from an in-process map,
// nested or flat. It ranks above every other kind, the slot programmatic
// overrides occupy.
func NewStaticProvider(data map[string]any, origin Origin, profile string) Source {
	return &staticProvider{data: data, origin: origin, profile: profile}
}

func (s *staticProvider) Load() (*RawLayer, error) {
	b := newLayerBuilder(s.origin)
	if err := flattenTables(b, "", "", s.data); err != nil {
		return nil, err
	}
	return b.layer(SourceStatic, s.profile), nil
}

func (s *staticProvider) Type() SourceType { return SourceStatic }
func (s *staticProvider) Origin() Origin   { return s.origin }
func (s *staticProvider) Profile() string  { return s.profile }

type defaultsProvider struct {
	schema *Schema
}

// newDefaultsSource builds the implicit rank-zero layer from the schema:
// registry defaults, overridden by the non-zero leaves of the schema's
// defaults struct rendered through koanf's structs provider.
func newDefaultsSource(schema *Schema) Source {
	return &defaultsProvider{schema: schema}
}

func (d *defaultsProvider) Load() (*RawLayer, error) {
	base := maps.Unflatten(d.schema.registry.Defaults(), ".")
	if d.schema.defaults != nil {
		rendered, err := structs.Provider(d.schema.defaults, "koanf").Read()
		if err != nil {
			return nil, fmt.Errorf("failed to render defaults struct: %w", err)
		}
		if err := mergo.Merge(&base, pruneZeroLeaves(rendered), mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge defaults: %w", err)
		}
	}
	b := newLayerBuilder("default")
	if err := flattenTables(b, "", "", base); err != nil {
		return nil, err
	}
	return b.layer(SourceDefault, ""), nil
}

func (d *defaultsProvider) Type() SourceType { return SourceDefault }
func (d *defaultsProvider) Origin() Origin   { return "default" }
func (d *defaultsProvider) Profile() string  { return "" }

// pruneZeroLeaves drops zero-valued leaves from a rendered defaults map.
// A zero field on the defaults struct means "no default declared"; keeping
// it would mask missing-required detection and pollute provenance.
func pruneZeroLeaves(m map[string]any) map[string]any {
	result := make(map[string]any)
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			pruned := pruneZeroLeaves(nested)
			if len(pruned) > 0 {
				result[k] = pruned
			}
			continue
		}
		if isZeroLeaf(v) {
			continue
		}
		result[k] = v
	}
	return result
}

func isZeroLeaf(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	default:
		return rv.IsZero()
	}
}
