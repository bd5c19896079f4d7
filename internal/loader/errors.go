package loader

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrUnknownFormat     = errors.New("unknown checkpoint format")
	ErrOffsetOverlap     = errors.New("tensor offsets overlap")
	ErrOutOfBounds       = errors.New("tensor extends beyond data section")
	ErrNegativeOffset    = errors.New("negative offset or size")
	ErrTooManyTensors    = errors.New("too many tensors in file")
	ErrTensorNameTooLong = errors.New("tensor name too long")
	ErrInvalidTensorName = errors.New("invalid tensor name")
	ErrHeaderTooLarge    = errors.New("header exceeds maximum size")
	ErrSizeMismatch      = errors.New("tensor byte size does not match shape")
	ErrDuplicateTensor   = errors.New("tensor appears in more than one file")
	ErrChecksumMismatch  = errors.New("checksum mismatch: file may be corrupted")
)

// ValidationError provides detailed information about validation failures.
type ValidationError struct {
	Type    string // Type of error (e.g., "offset_overlap", "out_of_bounds")
	Tensor  string // Primary tensor name involved
	Tensor2 string // Secondary tensor name (for overlap errors)
	Details string // Additional details
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Tensor2 != "" {
		return fmt.Sprintf("%s: tensors %q and %q: %s", e.Type, e.Tensor, e.Tensor2, e.Details)
	}
	if e.Tensor != "" {
		return fmt.Sprintf("%s: tensor %q: %s", e.Type, e.Tensor, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}

// Is maps the error type onto the package sentinels.
func (e *ValidationError) Is(target error) bool {
	switch e.Type {
	case "offset_overlap":
		return target == ErrOffsetOverlap
	case "out_of_bounds":
		return target == ErrOutOfBounds
	case "negative_offset":
		return target == ErrNegativeOffset
	case "too_many_tensors":
		return target == ErrTooManyTensors
	case "name_too_long":
		return target == ErrTensorNameTooLong
	case "invalid_name":
		return target == ErrInvalidTensorName
	case "size_mismatch":
		return target == ErrSizeMismatch
	}
	return false
}
