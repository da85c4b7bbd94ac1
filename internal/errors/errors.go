// Package errors defines the coded error taxonomy used by depaudit.
//
// Codes separate fatal conditions (an unreadable manifest, invalid
// configuration) from the recoverable ones the scanner logs and works around
// (an unreadable lock file, an unavailable registry):
//
//	err := errors.Wrap(errors.ErrCodeManifestUnreadable, cause, "read %s", path)
//	if errors.Is(err, errors.ErrCodeManifestUnreadable) {
//	    // abort the scan
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

const (
	// ErrCodeManifestUnreadable is fatal: there is nothing to scan.
	ErrCodeManifestUnreadable Code = "MANIFEST_UNREADABLE"
	// ErrCodeLockfileUnreadable degrades the scan to direct dependencies.
	ErrCodeLockfileUnreadable Code = "LOCKFILE_UNREADABLE"
	// ErrCodeEnrichmentUnavailable degrades one package's registry data.
	ErrCodeEnrichmentUnavailable Code = "ENRICHMENT_UNAVAILABLE"
	// ErrCodeNotFound marks data the registry does not have.
	ErrCodeNotFound Code = "NOT_FOUND"

	ErrCodeInvalidConfig     Code = "INVALID_CONFIG"
	ErrCodeReportWriteFailed Code = "REPORT_WRITE_FAILED"
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

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns the message without the code prefix for *Error values
// and the plain error string otherwise.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + e.Cause.Error()
		}
		return e.Message
	}
	return err.Error()
}
