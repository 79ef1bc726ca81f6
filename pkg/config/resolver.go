package config

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/typedconf/typedconf/pkg/logger"
)

// Resolver runs the resolution pipeline: gather layers, normalize, filter
// by profile, merge by precedence, bind against the schema. A Resolver
// holds no per-run state and is safe for concurrent Resolve calls: each
// run builds its own layer set and merged mapping, decodes into its own
// copy of the target type, and commits the copy to the schema's target
// under the schema's lock. Reading the target while another Resolve on
// the same schema is still running is the caller's own synchronization
// problem, as with any shared struct.
type Resolver struct {
	validate   *validator.Validate
	precedence PrecedenceOrder
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithPrecedence overrides the default source-kind ordering. Each Resolve
// call uses the resolver's own order; there is no process-wide mutable
// precedence.
func WithPrecedence(order PrecedenceOrder) ResolverOption {
	return func(r *Resolver) { r.precedence = order }
}

// NewResolver creates a resolver with the default precedence order.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		validate:   validator.New(),
		precedence: DefaultPrecedence(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve merges the given sources under the active profile and binds the
// result into the schema's target struct. The implicit defaults layer from
// the schema always participates at the lowest rank.
//
// On failure the error is one of *SourceError, *DuplicateKeyError,
// *ProfileNotFoundError or *ResolutionError; the latter carries every
// failing field with the origin that caused it.
func (r *Resolver) Resolve(ctx context.Context, schema *Schema, profile string, sources ...Source) (*ResolvedConfig, error) {
	all := append([]Source{newDefaultsSource(schema)}, sources...)
	rc, err := r.inspect(ctx, profile, schema.profiles, all)
	if err != nil {
		return nil, err
	}
	if errs := bindSchema(r.validate, schema, rc.Values); len(errs) > 0 {
		return nil, &ResolutionError{Validation: errs}
	}
	return rc, nil
}

// Inspect merges the given sources without binding to a schema, exposing
// the raw merged mapping with full provenance. Useful for diagnostics.
func (r *Resolver) Inspect(ctx context.Context, profile string, sources ...Source) (*ResolvedConfig, error) {
	return r.inspect(ctx, profile, nil, sources)
}

func (r *Resolver) inspect(ctx context.Context, profile string, declared []string, sources []Source) (*ResolvedConfig, error) {
	log := logger.FromContext(ctx)
	ordered, err := r.orderSources(sources)
	if err != nil {
		return nil, err
	}
	selected, err := selectProfile(ordered, profile, declared)
	if err != nil {
		return nil, err
	}
	layers := make([]*RawLayer, 0, len(selected))
	for _, src := range selected {
		layer, err := src.Load()
		if err != nil {
			var dup *DuplicateKeyError
			if errors.As(err, &dup) {
				return nil, err
			}
			return nil, &SourceError{Origin: src.Origin(), Err: err}
		}
		log.Debug("loaded configuration layer",
			"origin", string(layer.Origin),
			"kind", string(layer.Type),
			"keys", len(layer.Entries))
		layers = append(layers, layer)
	}
	return &ResolvedConfig{
		Profile:  profile,
		Values:   mergeLayers(layers),
		LoadedAt: time.Now(),
	}, nil
}

// orderSources sorts sources by precedence rank, keeping declaration
// order within a rank so same-kind layers never silently race.
func (r *Resolver) orderSources(sources []Source) ([]Source, error) {
	ordered := make([]Source, len(sources))
	copy(ordered, sources)
	ranks := make([]int, len(ordered))
	for i, src := range ordered {
		rank, ok := r.precedence.rank(src.Type())
		if !ok {
			return nil, fmt.Errorf("source kind %q has no rank in the precedence order", src.Type())
		}
		ranks[i] = rank
	}
	indices := make([]int, len(ordered))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool { return ranks[indices[a]] < ranks[indices[b]] })
	result := make([]Source, len(ordered))
	for i, idx := range indices {
		result[i] = ordered[idx]
	}
	return result, nil
}
