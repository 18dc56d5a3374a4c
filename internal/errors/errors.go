// Package errors provides centralized error definitions and error handling utilities
// for labelflow. It defines the error taxonomy of the labeling workflow, semantic
// error types, constructors with context wrapping, and classification helpers.
//
// # Error Types
//
// Domain errors raised by the workflow core:
//   - MissingReferenceError: a pixelmap value references a category absent from its source
//   - IncompleteConfigurationError: a job descriptor lacks a required parameter
//   - TransientError: a collaborator call (annotation, job or config store) failed
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found (job image, folder, annotation)
//   - ValidationError: invalid input or configuration
//
// # Usage
//
//	err := errors.NewMissingReferenceError("labels", 12, 7).WithImage("img-1")
//
//	if errors.Is(err, errors.ErrMissingReference) { ... }
//
//	var transient *errors.TransientError
//	if errors.As(err, &transient) { ... }
//
// Nothing in the core retries automatically. IsRetryable only reports whether a
// caller may reasonably try again.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrMissingReference indicates a value points at a category that does not exist.
	ErrMissingReference = New("missing category reference")
	// ErrIncompleteConfiguration indicates a required descriptor parameter is absent.
	ErrIncompleteConfiguration = New("incomplete configuration")
	// ErrNotFound indicates a requested resource does not exist.
	ErrNotFound = New("not found")
	// ErrJobNotFound indicates the requested job image, version or CLI is not registered.
	ErrJobNotFound = New("job not found")
	// ErrTransient indicates a collaborator call failed.
	ErrTransient = New("transient failure")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// LabelflowError is the base interface for all labelflow errors.
type LabelflowError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed if the caller tries again.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// withContext formats "prefix [k=v, ...]: message[: cause]".
func withContext(prefix string, parts []string, message string, cause error) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain Errors
// -----------------------------------------------------------------------------

// MissingReferenceError reports a pixelmap value that has no matching category in
// its source list, or a category label that is absent from the canonical registry.
//
// Example:
//
//	err := errors.NewMissingReferenceError("predictions", 40, 9).WithImage("img-7")
//	fmt.Println(err) // "missing reference [image=img-7, source=predictions, index=40]: value 9 has no category"
type MissingReferenceError struct {
	baseError
	ImageID string
	Source  string
	Index   int
	Value   int
	Label   string
}

// NewMissingReferenceError creates an error for the value at index that has no category.
func NewMissingReferenceError(source string, index, value int) *MissingReferenceError {
	return &MissingReferenceError{
		baseError: baseError{
			message:    fmt.Sprintf("value %d has no category", value),
			severity:   SeverityError,
			userFacing: true,
		},
		Source: source,
		Index:  index,
		Value:  value,
	}
}

// NewUnregisteredLabelError creates an error for a category label that the
// canonical registry does not know about.
func NewUnregisteredLabelError(source, label string) *MissingReferenceError {
	return &MissingReferenceError{
		baseError: baseError{
			message:    fmt.Sprintf("label %q is not registered", label),
			severity:   SeverityError,
			userFacing: true,
		},
		Source: source,
		Index:  -1,
		Value:  -1,
		Label:  label,
	}
}

// WithImage adds an image ID to the error context.
func (e *MissingReferenceError) WithImage(id string) *MissingReferenceError {
	e.ImageID = id
	return e
}

// Error returns the formatted error message.
func (e *MissingReferenceError) Error() string {
	var parts []string
	if e.ImageID != "" {
		parts = append(parts, fmt.Sprintf("image=%s", e.ImageID))
	}
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("source=%s", e.Source))
	}
	if e.Index >= 0 {
		parts = append(parts, fmt.Sprintf("index=%d", e.Index))
	}
	return withContext("missing reference", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *MissingReferenceError) Is(target error) bool {
	if _, ok := target.(*MissingReferenceError); ok {
		return true
	}
	if target == ErrMissingReference {
		return true
	}
	return e.baseError.Is(target)
}

// IncompleteConfigurationError reports a configuration or descriptor that lacks a
// required entry. It is informational: callers fall back to an empty selection.
//
// Example:
//
//	err := errors.NewIncompleteConfigurationError("parameters.certainty.values")
type IncompleteConfigurationError struct {
	baseError
	Field string
}

// NewIncompleteConfigurationError creates an IncompleteConfigurationError for field.
func NewIncompleteConfigurationError(field string) *IncompleteConfigurationError {
	return &IncompleteConfigurationError{
		baseError: baseError{
			message:    "no value available",
			severity:   SeverityInfo,
			userFacing: true,
		},
		Field: field,
	}
}

// Error returns the formatted error message.
func (e *IncompleteConfigurationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	return withContext("incomplete configuration", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *IncompleteConfigurationError) Is(target error) bool {
	if _, ok := target.(*IncompleteConfigurationError); ok {
		return true
	}
	if target == ErrIncompleteConfiguration {
		return true
	}
	return e.baseError.Is(target)
}

// TransientError wraps a failed collaborator call such as an HTTP round trip.
//
// Example:
//
//	err := errors.NewTransientError("fetch annotation", cause).WithResource("annotation/abc")
type TransientError struct {
	baseError
	Operation string
	Resource  string
}

// NewTransientError creates a TransientError for the named operation.
func NewTransientError(operation string, cause error) *TransientError {
	return &TransientError{
		baseError: baseError{
			message:    operation,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
	}
}

// WithResource adds the resource path or identifier to the error context.
func (e *TransientError) WithResource(resource string) *TransientError {
	e.Resource = resource
	return e
}

// Error returns the formatted error message.
func (e *TransientError) Error() string {
	var parts []string
	if e.Resource != "" {
		parts = append(parts, fmt.Sprintf("resource=%s", e.Resource))
	}
	return withContext("transient failure", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *TransientError) Is(target error) bool {
	if _, ok := target.(*TransientError); ok {
		return true
	}
	if target == ErrTransient {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("folder", "Features")
//	fmt.Println(err) // "folder 'Features' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// NewJobNotFoundError creates a NotFoundError for a job image reference. It matches
// ErrJobNotFound.
func NewJobNotFoundError(ref string) *NotFoundError {
	return NewNotFoundError("job image", ref).WithCause(ErrJobNotFound)
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if target == ErrNotFound {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("default group is not defined").WithField("annotationGroups.defaultGroup")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return withContext("validation error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition.
// The workflow core never retries on its own; this is advice for the caller.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var lfErr LabelflowError
	if As(err, &lfErr) {
		return lfErr.IsRetryable()
	}

	return Is(err, ErrTransient)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var lfErr LabelflowError
	if As(err, &lfErr) {
		return lfErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement LabelflowError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var lfErr LabelflowError
	if As(err, &lfErr) {
		return lfErr.Severity()
	}

	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this returns nil for a nil error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
