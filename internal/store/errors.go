package store

import (
	"errors"
	"fmt"
)

// sentinel classes surfaced at the API boundary; wrap with fmt.Errorf("%w", ...)
// so callers can errors.Is/errors.As instead of matching on strings.
var (
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")
	ErrStorage  = errors.New("storage failure")
)

// ConflictError wraps an integrity-constraint violation.
type ConflictError struct {
	Entity string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Entity, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError wraps a missing-row lookup.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StorageError wraps a disk/IO-level failure from the underlying driver.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return fmt.Errorf("%w: %v", ErrStorage, e.Err) }

func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
