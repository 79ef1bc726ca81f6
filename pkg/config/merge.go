package config

// mergeLayers folds precedence-ordered layers into one merged mapping.
// For each key: first sighting inserts with provenance [origin]; later
// sightings append the origin and overwrite value and winner. Last wins,
// full history kept. The fold is O(total entries) with no backtracking.
//
// A later value fully replaces the earlier one at the exact key. Layers
// are flattened before they reach the merger, so replacement is granular
// per key path rather than per subtree: two layers each setting a
// different key under the same table both contribute.
//
// The merger is deliberately schema-agnostic; rejecting unknown keys is
// the binder's job.
func mergeLayers(layers []*RawLayer) map[string]MergedValue {
	merged := make(map[string]MergedValue)
	for _, layer := range layers {
		for key, entry := range layer.Entries {
			mv, exists := merged[key]
			if !exists {
				merged[key] = MergedValue{
					Key:        key,
					Value:      entry.Value,
					Winner:     layer.Origin,
					Provenance: []Origin{layer.Origin},
				}
				continue
			}
			mv.Value = entry.Value
			mv.Winner = layer.Origin
			mv.Provenance = append(mv.Provenance, layer.Origin)
			merged[key] = mv
		}
	}
	return merged
}
