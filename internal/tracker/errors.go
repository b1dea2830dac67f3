package tracker

import (
	"errors"
	"fmt"
)

// ErrLocked is returned when a forced recalculation finds the user's lock
// already held by another worker. Incremental updates never return it; they
// skip silently.
var ErrLocked = errors.New("tracker: recalculation already in progress")

// ValidationError reports an offline-session admission rule violation with a
// field-level reason. It is surfaced to the submission workflow and never
// persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
