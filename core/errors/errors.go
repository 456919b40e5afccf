// Package errors provides the error kinds shared by the merge detector and its collaborators.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrMalformedRecord indicates a line that does not follow its record layout
	ErrMalformedRecord = errors.New("malformed record")
	// ErrUnavailable indicates an external data source could not be reached
	ErrUnavailable = errors.New("unavailable")
)

// RecordError describes a line of external data that could not be decoded.
type RecordError struct {
	Kind    string // Record kind (e.g., "term", "reference")
	Line    int    // 1-based line number, 0 when unknown
	Text    string // Offending line, truncated for display
	Message string // What was wrong with it
}

func (e *RecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed %s record at line %d: %s: %q", e.Kind, e.Line, e.Message, e.Text)
	}
	return fmt.Sprintf("malformed %s record: %s: %q", e.Kind, e.Message, e.Text)
}

func (e *RecordError) Unwrap() error {
	return ErrMalformedRecord
}

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "reference dataset", "listing")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation
	Message string // Human-readable error message
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "download")
	Path      string // File path or URL involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// maxRecordText bounds the line excerpt kept in a RecordError.
const maxRecordText = 120

// NewRecord creates a RecordError, truncating long lines.
func NewRecord(kind string, line int, text, message string) *RecordError {
	if len(text) > maxRecordText {
		text = text[:maxRecordText] + "..."
	}
	return &RecordError{
		Kind:    kind,
		Line:    line,
		Text:    text,
		Message: message,
	}
}

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, value, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target any) bool {
	return errors.As(err, target)
}
