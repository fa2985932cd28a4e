// Package errors defines the error taxonomy used across the capture pipeline.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown = "UNKNOWN_ERROR"

	// Fatal: structural or format problems that abort the run.
	CodeTruncatedCapture      = "TRUNCATED_CAPTURE"
	CodeSegmentCountMismatch  = "SEGMENT_COUNT_MISMATCH"
	CodeMissingBinaryArtifact = "MISSING_BINARY_ARTIFACT"
	CodeSymbolicationMismatch = "SYMBOLICATION_MISMATCH"
	CodeAmbiguousSymbol       = "AMBIGUOUS_SYMBOL"
	CodeNoSymbol              = "NO_SYMBOL"
	CodeOrphanBlock           = "ORPHAN_BLOCK"

	// Recoverable: absorbed locally, never returned from the pipeline.
	CodeUnresolvedAddress = "UNRESOLVED_ADDRESS"
	CodeMissingSourceFile = "MISSING_SOURCE_FILE"
	CodeLineOutOfRange    = "LINE_OUT_OF_RANGE"

	CodeInvalidInput  = "INVALID_INPUT"
	CodeParseError    = "PARSE_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeToolError     = "TOOL_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeDatabaseError = "DATABASE_ERROR"
	CodeUploadError   = "UPLOAD_ERROR"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code string, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error instances, usable as errors.Is targets.
var (
	ErrTruncatedCapture      = New(CodeTruncatedCapture, "truncated capture")
	ErrSegmentCountMismatch  = New(CodeSegmentCountMismatch, "segment count mismatch")
	ErrMissingBinaryArtifact = New(CodeMissingBinaryArtifact, "missing binary artifact")
	ErrSymbolicationMismatch = New(CodeSymbolicationMismatch, "symbolication mismatch")
	ErrAmbiguousSymbol       = New(CodeAmbiguousSymbol, "ambiguous symbol")
	ErrNoSymbol              = New(CodeNoSymbol, "no symbol")
	ErrOrphanBlock           = New(CodeOrphanBlock, "orphan line-table block")
	ErrUnresolvedAddress     = New(CodeUnresolvedAddress, "unresolved address")
	ErrMissingSourceFile     = New(CodeMissingSourceFile, "missing source file")
	ErrLineOutOfRange        = New(CodeLineOutOfRange, "line out of range")
	ErrInvalidInput          = New(CodeInvalidInput, "invalid input")
	ErrParseError            = New(CodeParseError, "parse error")
	ErrConfigError           = New(CodeConfigError, "configuration error")
	ErrToolError             = New(CodeToolError, "external tool error")
	ErrNotFound              = New(CodeNotFound, "resource not found")
	ErrDatabaseError         = New(CodeDatabaseError, "database error")
	ErrUploadError           = New(CodeUploadError, "upload error")
)

// IsTruncatedCapture checks if the error is a truncated capture error.
func IsTruncatedCapture(err error) bool {
	return errors.Is(err, ErrTruncatedCapture)
}

// IsSegmentCountMismatch checks if the error is a segment count mismatch.
func IsSegmentCountMismatch(err error) bool {
	return errors.Is(err, ErrSegmentCountMismatch)
}

// IsMissingBinaryArtifact checks if the error is a missing binary error.
func IsMissingBinaryArtifact(err error) bool {
	return errors.Is(err, ErrMissingBinaryArtifact)
}

// IsOrphanBlock checks if the error is an orphan block error.
func IsOrphanBlock(err error) bool {
	return errors.Is(err, ErrOrphanBlock)
}

// IsRecoverable reports whether err only degrades a single frame or stack.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrUnresolvedAddress) ||
		errors.Is(err, ErrMissingSourceFile) ||
		errors.Is(err, ErrLineOutOfRange)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
