// Package errors provides the structured error types used by the collage
// engine, its HTTP API and its CLI.
//
// Every failure the engine reports carries a machine-readable Code so that
// callers can decide how to surface it:
//
//	err := errors.New(errors.ErrCodeNoTemplate, "no template for %d images", n)
//	if errors.Is(err, errors.ErrCodeNoTemplate) {
//	    // ask the user for a different image count
//	}
//
// Slot-level failures are collected rather than returned one by one; see
// SlotError and AbortedError.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents a machine-readable error code.
type Code string

const (
	// Composition errors
	ErrCodeNoTemplate         Code = "NO_TEMPLATE_FOR_COUNT"
	ErrCodeSlotDecode         Code = "SLOT_DECODE_FAILURE"
	ErrCodeCompositionAborted Code = "COMPOSITION_ABORTED"

	// Export errors
	ErrCodeExport Code = "EXPORT_FAILURE"

	// Request errors
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeInvalidState Code = "INVALID_STATE"
	ErrCodeNotFound     Code = "NOT_FOUND"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err carries the given error code anywhere in its chain.
func Is(err error, code Code) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if no coded error is found in the chain.
//
// Aggregate and slot errors take precedence over any *Error they wrap, so an
// aborted composition always reports COMPOSITION_ABORTED.
func GetCode(err error) Code {
	var ae *AbortedError
	if errors.As(err, &ae) {
		return ErrCodeCompositionAborted
	}
	var se *SlotError
	if errors.As(err, &se) {
		return ErrCodeSlotDecode
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
func UserMessage(err error) string {
	var ae *AbortedError
	if errors.As(err, &ae) {
		return ae.Message()
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + e.Cause.Error()
		}
		return e.Message
	}
	return err.Error()
}

// SlotError records why a single slot's source could not be acquired.
type SlotError struct {
	Index   int    // Slot index, zero based
	Locator string // Locator that was being resolved
	Err     error
}

// Error implements the error interface.
func (e *SlotError) Error() string {
	return fmt.Sprintf("%s: slot %d (%s): %v", ErrCodeSlotDecode, e.Index, e.Locator, e.Err)
}

// Unwrap returns the underlying load or decode error.
func (e *SlotError) Unwrap() error { return e.Err }

// AbortedError is the aggregate failure returned when acquisition did not
// yield a full set of decoded images. Failures are ordered by slot index.
type AbortedError struct {
	Requested int
	Decoded   int
	Failures  []*SlotError
}

// Error implements the error interface.
func (e *AbortedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCodeCompositionAborted, e.Message())
}

// Message reports the first failing slot and how many others failed.
func (e *AbortedError) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "decoded %d of %d images", e.Decoded, e.Requested)
	if len(e.Failures) > 0 {
		first := e.Failures[0]
		fmt.Fprintf(&b, "; slot %d: %v", first.Index, first.Err)
		if n := len(e.Failures) - 1; n > 0 {
			fmt.Fprintf(&b, " (and %d more)", n)
		}
	}
	return b.String()
}

// Unwrap exposes every slot failure to errors.Is/As.
func (e *AbortedError) Unwrap() []error {
	out := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f
	}
	return out
}
