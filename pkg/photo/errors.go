package photo

import (
	"errors"
	"fmt"
)

var (
	// ErrBudgetExceeded marks a result whose size is over budget at the quality floor.
	// It is informational: the result is still usable.
	ErrBudgetExceeded = errors.New("byte budget not met at quality floor")

	// ErrCapacityExceeded is reported when a selection is truncated to the batch room.
	ErrCapacityExceeded = errors.New("batch capacity exceeded")

	// ErrPipelineUnavailable is fatal for the whole batch.
	ErrPipelineUnavailable = errors.New("photo pipeline unavailable")

	// ErrPhotoNotFound is returned for an unknown photo ID.
	ErrPhotoNotFound = errors.New("photo not found")
)

// DecodeError means the source is not a readable, supported image.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %q: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError means the codec produced no output.
type EncodeError struct {
	Name    string
	Quality float64
	Err     error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encoding %q at quality %.2f: %v", e.Name, e.Quality, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// IsFileError reports whether err only affects a single file of a batch.
func IsFileError(err error) bool {
	var de *DecodeError
	var ee *EncodeError
	return errors.As(err, &de) || errors.As(err, &ee)
}
