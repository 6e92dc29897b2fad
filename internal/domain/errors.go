package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds shared across packages. Match with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrIO             = errors.New("i/o failure")
	ErrEngineNotFound = errors.New("whisper engine executable not found")
	ErrProcess        = errors.New("engine process failed")
	ErrSerialization  = errors.New("malformed stored record")
	ErrValidation     = errors.New("validation failed")
	ErrInvalidInput   = errors.New("invalid input")
	ErrModelNotFound  = fmt.Errorf("model %w", ErrNotFound)
)

// JobError ties a failure to the operation and job that produced it.
type JobError struct {
	Op    string
	JobID string
	Kind  error
	Err   error
}

// NewJobError returns a *JobError for op on jobID.
func NewJobError(op, jobID string, kind, err error) error {
	return &JobError{Op: op, JobID: jobID, Kind: kind, Err: err}
}

// Error implements error.
func (e *JobError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.JobID != "" {
		b.WriteString(" job ")
		b.WriteString(e.JobID)
	}
	if e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause.
func (e *JobError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap classifies validation failures as invalid input.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
