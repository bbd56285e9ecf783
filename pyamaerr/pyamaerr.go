// Package pyamaerr defines the shared error taxonomy used across the
// pipeline packages. Stages wrap a sentinel in a *StageError so callers
// can recover which FOV and stage failed with errors.As while still
// matching the underlying cause with errors.Is.
package pyamaerr

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Compare against these with errors.Is.
var (
	ErrInvalidArgument = errors.New("pyama: invalid argument")
	ErrInvalidShape    = errors.New("pyama: invalid shape")
	ErrShapeMismatch   = errors.New("pyama: shape mismatch")
	ErrNotFound        = errors.New("pyama: artifact not found")
	ErrIOFailure       = errors.New("pyama: io failure")
	ErrInvalidRange    = errors.New("pyama: invalid fov range")
	ErrCancelled       = errors.New("pyama: cancelled")
	ErrNumericFailure  = errors.New("pyama: numeric failure")
)

// StageError associates a sentinel (or arbitrary) cause with the stage
// and FOV that produced it.
type StageError struct {
	Stage string
	FOV   int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: fov %d: %v", e.Stage, e.FOV, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Wrap builds a *StageError, attributing err to the given stage/fov.
// Wrapping a nil error returns nil so call sites can write
// `return pyamaerr.Wrap(stage, fov, err)` unconditionally.
func Wrap(stage string, fov int, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, FOV: fov, Err: err}
}

// IsCancelled reports whether err is (or wraps) a cancellation, whether
// it originated from this package's sentinel or from context.Canceled.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
