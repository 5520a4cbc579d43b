package domain

import "errors"

var (
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the referenced todo does not exist.
	ErrNotFound = errors.New("todo not found")
	// ErrInvalidID is returned by stores for ids they could never have issued.
	ErrInvalidID = errors.New("invalid todo id")
	// ErrConflict means a write kept losing to concurrent writers.
	ErrConflict = errors.New("todo changed concurrently")
)

// ValidationError describes rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
