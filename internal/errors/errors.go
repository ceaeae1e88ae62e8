// Package errors provides the typed errors shared by the renewal workflow.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Type identifies the category of error
type Type string

const (
	// TypeElementNotFound indicates a page element did not appear within the wait bound
	TypeElementNotFound Type = "ELEMENT_NOT_FOUND"

	// TypeParsing indicates a scraped value or date could not be parsed
	TypeParsing Type = "PARSING_ERROR"

	// TypeUnitMismatch indicates two quantities of different unit families were combined
	TypeUnitMismatch Type = "UNIT_MISMATCH"

	// TypeUnexpectedPage indicates a page element was found but did not look as expected
	TypeUnexpectedPage Type = "UNEXPECTED_PAGE"

	// TypeAuthentication indicates the mail relay rejected the credentials
	TypeAuthentication Type = "AUTHENTICATION_ERROR"

	// TypeTransport indicates the mail relay could not be reached or secured
	TypeTransport Type = "TRANSPORT_ERROR"

	// TypeConfig indicates a configuration error
	TypeConfig Type = "CONFIG_ERROR"

	// TypeInternal indicates an internal error
	TypeInternal Type = "INTERNAL_ERROR"
)

// Error represents a domain error with context
type Error struct {
	Type    Type                   `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new error
func New(errType Type, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new formatted error
func Newf(errType Type, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with context
func Wrap(errType Type, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an error with formatted context
func Wrapf(errType Type, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// IsType reports whether any error in err's chain is a typed error of t.
func IsType(err error, t Type) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Type == t {
			return true
		}
		err = e.Cause
	}
	return false
}

// TypeOf returns the type of the outermost typed error in err's chain,
// or TypeInternal when there is none.
func TypeOf(err error) Type {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return TypeInternal
}

// ElementNotFound creates an element-wait error for a CSS selector
func ElementNotFound(selector string, cause error) *Error {
	return Wrapf(TypeElementNotFound, cause, "element %q not found", selector).
		WithContext("selector", selector)
}

// Parsing creates a parsing error
func Parsing(message string, cause error) *Error {
	return Wrap(TypeParsing, message, cause)
}

// Authentication creates a mail authentication error
func Authentication(message string, cause error) *Error {
	return Wrap(TypeAuthentication, message, cause)
}

// Transport creates a mail transport error
func Transport(message string, cause error) *Error {
	return Wrap(TypeTransport, message, cause)
}

// Config creates a configuration error
func Config(message string, cause error) *Error {
	return Wrap(TypeConfig, message, cause)
}

// Internal creates an internal error
func Internal(message string, cause error) *Error {
	return Wrap(TypeInternal, message, cause)
}
