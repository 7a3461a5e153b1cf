package entity

import "fmt"

// ValidationError reports a domain invariant violation on a single
// field. Feeds, entries, jobs, and embeddings return it from their
// Validate methods; the message carries no internals and is safe to
// surface to callers.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}
