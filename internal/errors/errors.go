package errors

import (
	stderrors "errors"
	"fmt"
)

// RoomdexError is the structured error type used across roomdex.
// It carries enough context to decide between skipping, retrying and aborting.
type RoomdexError struct {
	// Code is the unique error code (e.g., "ERR_203_MAPPING_SOURCE_MISSING").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is derived from the code.
	Category Category

	// Severity is derived from the code.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable is true when a later redelivery may succeed.
	Retryable bool

	// Suggestion is an actionable hint for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *RoomdexError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RoomdexError) Unwrap() error {
	return e.Cause
}

// Is matches another RoomdexError by code.
func (e *RoomdexError) Is(target error) bool {
	if t, ok := target.(*RoomdexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *RoomdexError) WithDetail(key, value string) *RoomdexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the operator.
func (e *RoomdexError) WithSuggestion(suggestion string) *RoomdexError {
	e.Suggestion = suggestion
	return e
}

// New creates a new RoomdexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RoomdexError {
	return &RoomdexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RoomdexError from an existing error.
// Returns nil for a nil error.
func Wrap(code string, err error) *RoomdexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *RoomdexError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StoreError creates a mapping store transaction error.
func StoreError(message string, cause error) *RoomdexError {
	return New(ErrCodeStoreTxn, message, cause)
}

// EngineError creates a retryable search engine error.
func EngineError(message string, cause error) *RoomdexError {
	return New(ErrCodeEngineUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *RoomdexError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *RoomdexError {
	return New(ErrCodeInternal, message, cause)
}

// As finds the first RoomdexError in err's chain.
func As(err error) (*RoomdexError, bool) {
	var re *RoomdexError
	if stderrors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsRetryable checks if an error anywhere in the chain is retryable.
func IsRetryable(err error) bool {
	if re, ok := As(err); ok {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if re, ok := As(err); ok {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" when err is not a RoomdexError.
func GetCode(err error) string {
	if re, ok := As(err); ok {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category, or "" when err is not a RoomdexError.
func GetCategory(err error) Category {
	if re, ok := As(err); ok {
		return re.Category
	}
	return ""
}
