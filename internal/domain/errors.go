package domain

import (
	"errors"
	"fmt"
)

// ErrPredictionUnavailable is matched by every StageError.
var ErrPredictionUnavailable = errors.New("prediction unavailable")

// ShapeError reports an arity or width mismatch.
type ShapeError struct {
	Stage    string
	Expected int
	Actual   int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: shape mismatch: expected %d, got %d", e.Stage, e.Expected, e.Actual)
}

// MissingFieldError reports a mandatory field absent from the input.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing mandatory field %q", e.Field)
}

// InvalidFieldError reports a field whose value cannot be transformed.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// ArtifactLoadError reports an artifact that could not be fetched or decoded.
type ArtifactLoadError struct {
	Artifact string
	Err      error
}

func (e *ArtifactLoadError) Error() string {
	return fmt.Sprintf("artifact %s: %v", e.Artifact, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error {
	return e.Err
}

// StageError is the orchestrator's structured failure: the stage that
// failed and the underlying cause.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("prediction unavailable: %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrPredictionUnavailable) match any StageError.
func (e *StageError) Is(target error) bool {
	return target == ErrPredictionUnavailable
}
