package core

// errors.go defines the typed errors the reconciliation and undo-log
// operations can return. HTTP status mapping lives in the web layer;
// user-facing messages live in error_messages.go.

import (
	"errors"
	"fmt"
)

// ErrSnapshotNotFound is returned when a snapshot id resolves to nothing.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrAlreadyRolledBack is returned when rollback is invoked on a snapshot
// that has already been rolled back. Rollback is never a silent no-op.
var ErrAlreadyRolledBack = errors.New("snapshot already rolled back")

// ErrInvalidMode is returned for an update mode other than replace/append.
var ErrInvalidMode = errors.New("invalid update mode")

// ValidationError rejects an incoming record whose normalized email and
// phone are both empty: such a record has no identity to match on.
type ValidationError struct {
	Row    int // zero-based index into the incoming batch
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %d: %s", e.Row, e.Reason)
}

// TransactionError wraps a store-level failure that aborted an entire
// apply or rollback. Nothing partially persists; the cause is preserved
// for the caller.
type TransactionError struct {
	Op  string // "apply" or "rollback"
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s transaction failed: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}
