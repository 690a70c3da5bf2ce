package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when an analysis does not exist for the user.
	ErrNotFound = errors.New("analysis not found")
	// ErrProductNotFound is returned when a product code is not part of the analysis.
	ErrProductNotFound = errors.New("product not found")
	// ErrConflict is returned when a save races with another writer. Callers
	// may retry from a fresh read.
	ErrConflict = errors.New("analysis was modified concurrently")
)

// ValidationError reports an override whose values break its own invariants.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// UpstreamError reports a failed run of the forecasting process.
type UpstreamError struct {
	ExitCode int
	TimedOut bool
	Stderr   string
	Timeout  time.Duration
	Err      error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString("forecast process failed")
	switch {
	case e.TimedOut:
		fmt.Fprintf(&b, ": timed out after %s", e.Timeout)
	case e.ExitCode != 0:
		fmt.Fprintf(&b, ": exit code %d", e.ExitCode)
	}
	if e.Err != nil && !e.TimedOut {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		fmt.Fprintf(&b, " (%s)", stderr)
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// StorageError wraps a failure of the document store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// WrapStorage wraps err as a StorageError unless it is already one of the
// sentinel outcomes callers branch on.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
