package build

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalState   = errors.New("illegal state")
	ErrDeletionDenied = errors.New("deletion denied")
	ErrStoreFailure   = errors.New("artifact store failure")
	ErrNilExecutor    = errors.New("executor handle is required")
	ErrStoreBound     = errors.New("artifact store already bound")

	ErrRecordDeleted    = errors.New("record already deleted")
	ErrDeleteInProgress = errors.New("deletion already in progress")
)

// IllegalStateError reports an operation attempted from a state that does not
// allow it. It is a caller error and is never retried automatically.
type IllegalStateError struct {
	Op     string
	Record string
	Status Status
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("cannot %s %s while it is %s", e.Op, e.Record, e.Status)
}

func (e *IllegalStateError) Unwrap() error {
	return ErrIllegalState
}

func illegalState(op string, r *Record, status Status) error {
	return &IllegalStateError{Op: op, Record: r.String(), Status: status}
}

// DeletionDeniedError carries the guard's reason verbatim. Reason is plain
// text and may contain externally supplied display names; renderers must escape it.
type DeletionDeniedError struct {
	Record string
	Reason string
}

func (e *DeletionDeniedError) Error() string {
	return fmt.Sprintf("Unable to delete %s because it is %s", e.Record, e.Reason)
}

func (e *DeletionDeniedError) Unwrap() error {
	return ErrDeletionDenied
}

// StoreFailure wraps an error returned by an artifact store backend.
type StoreFailure struct {
	Op     string
	Record string
	Err    error
}

func (e *StoreFailure) Error() string {
	return fmt.Sprintf("artifact store %s failed for %s: %v", e.Op, e.Record, e.Err)
}

func (e *StoreFailure) Unwrap() []error {
	return []error{ErrStoreFailure, e.Err}
}
