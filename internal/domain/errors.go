package domain

import (
	"errors"
	"fmt"
)

// TransientError marks a remote failure that is safe to retry on the next
// online edge or explicit refresh. No user action required.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// RejectedError marks a remote failure that must be surfaced to the user and
// never retried automatically.
type RejectedError struct {
	Op     string
	Status int
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: rejected by remote (status %d): %s", e.Op, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s: rejected by remote: %s", e.Op, e.Reason)
}

// SerializationError marks corrupt persisted data. Callers treat the value as
// absent, substitute defaults, and log; it never crashes the engine.
type SerializationError struct {
	Key string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("corrupt persisted value for %q: %v", e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// IdentityMismatchError signals that the active identity changed between two
// distinct real principals. The required side effect is clearing the previous
// identity's local scope; it is not a failure of the sync itself.
type IdentityMismatchError struct {
	Previous string
	Current  string
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("identity changed from %q to %q; previous local scope must be cleared", e.Previous, e.Current)
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRejected reports whether err is (or wraps) a RejectedError.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}
