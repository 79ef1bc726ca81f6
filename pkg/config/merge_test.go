package config

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func layerOf(origin Origin, t SourceType, entries map[string]any) *RawLayer {
	layer := &RawLayer{Origin: origin, Type: t, Entries: make(map[string]Entry, len(entries))}
	for k, v := range entries {
		layer.Entries[k] = Entry{Value: v, NativeKey: k}
	}
	return layer
}

func TestMergeLayers(t *testing.T) {
	t.Run("Should let the later layer win and keep full provenance", func(t *testing.T) {
		merged := mergeLayers([]*RawLayer{
			layerOf("base.toml", SourceFile, map[string]any{"db.host": "file", "db.port": 5432}),
			layerOf("argv", SourceFlag, map[string]any{"db.host": "flag"}),
		})

		host := merged["db.host"]
		assert.Equal(t, "flag", host.Value)
		assert.Equal(t, Origin("argv"), host.Winner)
		assert.Equal(t, []Origin{"base.toml", "argv"}, host.Provenance)

		port := merged["db.port"]
		assert.Equal(t, 5432, port.Value)
		assert.Equal(t, Origin("base.toml"), port.Winner)
		assert.Equal(t, []Origin{"base.toml"}, port.Provenance)
	})

	t.Run("Should fully replace the earlier value at the exact key", func(t *testing.T) {
		merged := mergeLayers([]*RawLayer{
			layerOf("a.toml", SourceFile, map[string]any{"tags": []string{"x", "y"}}),
			layerOf("b.toml", SourceFile, map[string]any{"tags": []string{"z"}}),
		})
		assert.Equal(t, []string{"z"}, merged["tags"].Value)
	})

	t.Run("Should merge key-path-granular, not tree-granular", func(t *testing.T) {
		// Two layers touch different keys under the same table: both survive.
		merged := mergeLayers([]*RawLayer{
			layerOf("a.toml", SourceFile, map[string]any{"db.host": "x"}),
			layerOf("b.toml", SourceFile, map[string]any{"db.port": 5432}),
		})
		assert.Equal(t, "x", merged["db.host"].Value)
		assert.Equal(t, 5432, merged["db.port"].Value)
	})
}

func TestMergeLayers_Properties(t *testing.T) {
	keyGen := rapid.SampledFrom([]string{"db.host", "db.port", "api.key", "name", "tags", "timeout"})

	t.Run("Should be deterministic over identical layer sets", func(t *testing.T) {
		rapid.Check(t, func(rt *rapid.T) {
			var layers []*RawLayer
			count := rapid.IntRange(0, 4).Draw(rt, "layers")
			for i := 0; i < count; i++ {
				entries := rapid.MapOfN(keyGen, rapid.IntRange(0, 100).AsAny(), 0, 6).Draw(rt, fmt.Sprintf("entries%d", i))
				layers = append(layers, layerOf(Origin(fmt.Sprintf("layer%d", i)), SourceFile, entries))
			}
			first := mergeLayers(layers)
			second := mergeLayers(layers)
			require.Equal(t, first, second)
		})
	})

	t.Run("Should always let the highest layer win for every key it defines", func(t *testing.T) {
		rapid.Check(t, func(rt *rapid.T) {
			lower := rapid.MapOfN(keyGen, rapid.IntRange(0, 100).AsAny(), 0, 6).Draw(rt, "lower")
			upper := rapid.MapOfN(keyGen, rapid.IntRange(0, 100).AsAny(), 0, 6).Draw(rt, "upper")
			merged := mergeLayers([]*RawLayer{
				layerOf("lower", SourceFile, lower),
				layerOf("upper", SourceFlag, upper),
			})
			for key, want := range upper {
				mv := merged[key]
				require.Equal(t, want, mv.Value)
				require.Equal(t, Origin("upper"), mv.Winner)
				if _, also := lower[key]; also {
					require.Equal(t, []Origin{"lower", "upper"}, mv.Provenance)
				} else {
					require.Equal(t, []Origin{"upper"}, mv.Provenance)
				}
			}
		})
	})
}
