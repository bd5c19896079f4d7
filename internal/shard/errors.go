package shard

import (
	"errors"
	"fmt"

	"github.com/born-ml/tpload/internal/tensor"
)

// Common errors. Every typed error below matches one of these with errors.Is.
var (
	ErrConfiguration        = errors.New("invalid partition configuration")
	ErrShapeMismatch        = errors.New("shape mismatch")
	ErrMissingMandatoryStep = errors.New("mandatory load step never ran")
	ErrDuplicateWrite       = errors.New("destination rows written twice")
	ErrUnwrittenParameter   = errors.New("destination rows never written")
	ErrUnknownName          = errors.New("unknown parameter name")
)

// ConfigurationError reports a partition that cannot be applied to the model,
// such as a head count not divisible by the world size.
type ConfigurationError struct {
	Name    string // Parameter name, empty for partition-wide problems
	Details string
}

func (e *ConfigurationError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("configuration: %q: %s", e.Name, e.Details)
	}
	return "configuration: " + e.Details
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ShapeMismatchError reports a sliced source whose shape differs from the
// destination region it is copied into.
type ShapeMismatchError struct {
	Name     string
	Expected tensor.Shape
	Actual   tensor.Shape
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: %q: expected %v, got %v", e.Name, e.Expected, e.Actual)
}

// Is reports whether target is ErrShapeMismatch.
func (e *ShapeMismatchError) Is(target error) bool { return target == ErrShapeMismatch }

// MissingMandatoryStepError reports a required processing step that the
// stream never triggered, e.g. lm_head normalization.
type MissingMandatoryStepError struct {
	Name string
	Step string
}

func (e *MissingMandatoryStepError) Error() string {
	return fmt.Sprintf("missing mandatory step: %s of %q never ran", e.Step, e.Name)
}

// Is reports whether target is ErrMissingMandatoryStep.
func (e *MissingMandatoryStepError) Is(target error) bool { return target == ErrMissingMandatoryStep }

// DuplicateWriteError reports rows of a destination written more than once.
type DuplicateWriteError struct {
	Name       string
	Source     string
	Start, End int
}

func (e *DuplicateWriteError) Error() string {
	return fmt.Sprintf("duplicate write: %q rows [%d, %d) from %q were already written", e.Name, e.Start, e.End, e.Source)
}

// Is reports whether target is ErrDuplicateWrite.
func (e *DuplicateWriteError) Is(target error) bool { return target == ErrDuplicateWrite }

// UnwrittenParameterError reports destination rows no entry wrote.
type UnwrittenParameterError struct {
	Name       string
	Start, End int
}

func (e *UnwrittenParameterError) Error() string {
	return fmt.Sprintf("unwritten parameter: %q rows [%d, %d)", e.Name, e.Start, e.End)
}

// Is reports whether target is ErrUnwrittenParameter.
func (e *UnwrittenParameterError) Is(target error) bool { return target == ErrUnwrittenParameter }

// UnknownNameError reports an entry with no destination when unknown names
// are treated as errors.
type UnknownNameError struct {
	Name string
}

func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("unknown parameter name %q", e.Name)
}

// Is reports whether target is ErrUnknownName.
func (e *UnknownNameError) Is(target error) bool { return target == ErrUnknownName }

// UnknownNameWarning records an entry that was dropped because it has no
// destination. Warnings are collected in the Report, they do not fail a load.
type UnknownNameWarning struct {
	Name string
	Dest string
}

func (w UnknownNameWarning) String() string {
	if w.Dest != "" && w.Dest != w.Name {
		return fmt.Sprintf("%q (destination %q) has no parameter", w.Name, w.Dest)
	}
	return fmt.Sprintf("%q has no parameter", w.Name)
}
