package config

import (
	"fmt"
	"strings"
)

// SourceError reports an I/O or parse failure in a single layer source.
// It is fatal: resolution cannot proceed against an incomplete layer set.
type SourceError struct {
	Origin Origin
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %q failed: %v", e.Origin, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// DuplicateKeyError reports two distinct native keys in one layer that
// normalize to the same dotted key. Both spellings are named so the caller
// can fix the ambiguity instead of the engine silently picking one.
type DuplicateKeyError struct {
	Origin    Origin
	Key       string
	NativeKey string
	Conflict  string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("source %q: native keys %q and %q both normalize to %q",
		e.Origin, e.Conflict, e.NativeKey, e.Key)
}

// ProfileNotFoundError reports an active profile that is neither declared
// on the schema nor carried by any source.
type ProfileNotFoundError struct {
	Profile string
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("profile %q not found: no source or schema declares it", e.Profile)
}

// ValidationError reports one failing field. Origin is the winner of the
// merged value that failed, or OriginNone when no layer provided the key.
type ValidationError struct {
	Key     string
	Origin  Origin
	Message string
}

func (e ValidationError) Error() string {
	key := e.Key
	if key == "" {
		key = "(unknown key)"
	}
	origin := string(e.Origin)
	if origin == "" {
		origin = "none"
	}
	return fmt.Sprintf("%s (origin %s): %s", key, origin, e.Message)
}

// ResolutionError carries every field failure found during binding. It is
// returned only after all fields have been checked, never on the first.
type ResolutionError struct {
	Validation []ValidationError
}

func (e *ResolutionError) Error() string {
	if len(e.Validation) == 0 {
		return "configuration resolution failed"
	}
	msgs := make([]string, len(e.Validation))
	for i, ve := range e.Validation {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("configuration resolution failed with %d error(s): %s",
		len(e.Validation), strings.Join(msgs, "; "))
}
