package config

import "slices"

// selectProfile returns the sources that participate in a resolution for
// the given active profile: untagged sources are always active, tagged
// sources only when their tag matches. Relative order is preserved.
//
// An active profile that is neither declared on the schema nor carried by
// any source fails with ProfileNotFoundError instead of silently resolving
// to defaults only.
func selectProfile(sources []Source, active string, declared []string) ([]Source, error) {
	if active == "" {
		var selected []Source
		for _, src := range sources {
			if src.Profile() == "" {
				selected = append(selected, src)
			}
		}
		return selected, nil
	}
	known := slices.Contains(declared, active)
	var selected []Source
	for _, src := range sources {
		if src.Profile() == active {
			known = true
		}
		if src.Profile() == "" || src.Profile() == active {
			selected = append(selected, src)
		}
	}
	if !known {
		return nil, &ProfileNotFoundError{Profile: active}
	}
	return selected, nil
}
