package utils

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the storage layers. Callers test for them
// with errors.Is after unwrapping whatever context was added on the way up.
var (
	// ErrKeyExists is returned by unique-tree inserts on a duplicate key.
	ErrKeyExists = errors.New("key already exists")

	// ErrDisposed is returned when a released block or closed handle is used.
	ErrDisposed = errors.New("object has been disposed")

	// ErrNotSupported is returned for operations the layer cannot perform,
	// such as serializing variable-length tree values.
	ErrNotSupported = errors.New("operation not supported")

	// ErrCorrupted indicates an on-disk format violation: misaligned file
	// length, oversize content length, a broken chain link and the like.
	ErrCorrupted = errors.New("storage format corrupted")

	// ErrNotFound indicates a record or row that was expected to exist.
	ErrNotFound = errors.New("not found")
)

// StoreError represents a structured storage error.
type StoreError struct {
	Context string
	Cause   error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Context, e.Cause)
}

// WrapError creates a contextual error.
func WrapError(context string, cause error) error {
	if cause == nil {
		return nil
	}
	return &StoreError{
		Context: context,
		Cause:   cause,
	}
}

// Unwrap provides compatibility with errors.Unwrap().
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Corrupted builds an ErrCorrupted with a formatted detail message.
func Corrupted(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupted, fmt.Sprintf(format, args...))
}
