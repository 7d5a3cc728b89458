package tensor

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is reported when tensor dimensions are incompatible for an
// operation.
var ErrShapeMismatch = errors.New("shape mismatch")

// ShapeError provides detailed information about an incompatible shape.
// It unwraps to ErrShapeMismatch.
type ShapeError struct {
	Op      string // Operation that rejected the input (e.g., "matmul", "patchify")
	Details string // Human-readable description of the offending shapes
}

// NewShapeError builds a ShapeError for op with a formatted detail message.
func NewShapeError(op, format string, args ...any) *ShapeError {
	return &ShapeError{Op: op, Details: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, ErrShapeMismatch, e.Details)
}

// Unwrap allows errors.Is(err, ErrShapeMismatch).
func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}
