package engine

import (
	"errors"
	"fmt"
)

// QueryError represents an error detected while processing a query.
//
// The taxonomy follows the pipeline stages:
//   - Parse: malformed syntax, detected before any plan exists
//   - Translate: syntactically valid but semantically wrong queries
//   - Execution: collaborator-reported failure (missing index, invalid
//     cursor, start vertex not found)
//   - Usage: feature misuse, e.g. FULLTEXT_SCORE without FULLTEXT
//
// Client reports whether the caller, not the system, caused the error;
// transports map client errors to 4xx-style responses.
type QueryError struct {
	// Code identifies the error category.
	Code QueryErrorCode

	// Message is a human-readable description.
	Message string

	// Client is true when the request itself is at fault.
	Client bool

	// Details contains additional context.
	Details map[string]string
}

// QueryErrorCode categorizes query errors.
type QueryErrorCode string

const (
	// ErrCodeParse indicates malformed query syntax.
	ErrCodeParse QueryErrorCode = "PARSE_ERROR"

	// ErrCodeTranslate indicates a semantically invalid query.
	ErrCodeTranslate QueryErrorCode = "TRANSLATE_ERROR"

	// ErrCodeExecution indicates a failure during plan execution.
	ErrCodeExecution QueryErrorCode = "EXECUTION_ERROR"

	// ErrCodeUsage indicates feature misuse by the caller.
	ErrCodeUsage QueryErrorCode = "USAGE_ERROR"
)

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewParseError wraps a parser failure. Parse errors are always client
// errors and never partially execute a plan.
func NewParseError(err error) *QueryError {
	return &QueryError{Code: ErrCodeParse, Message: err.Error(), Client: true}
}

// NewTranslateError wraps a translation failure.
func NewTranslateError(err error) *QueryError {
	return &QueryError{Code: ErrCodeTranslate, Message: err.Error(), Client: true}
}

// NewExecutionError creates a collaborator/runtime failure. These are
// server-side unless explicitly marked otherwise (see NewCursorError).
func NewExecutionError(format string, args ...any) *QueryError {
	return &QueryError{Code: ErrCodeExecution, Message: fmt.Sprintf(format, args...)}
}

// NewCursorError reports a malformed or garbled cursor token. The token
// is client input, so the error is a client error, deliberately distinct
// from an empty result page.
func NewCursorError(format string, args ...any) *QueryError {
	return &QueryError{Code: ErrCodeExecution, Message: fmt.Sprintf(format, args...), Client: true}
}

// NewUsageError reports feature misuse.
func NewUsageError(format string, args ...any) *QueryError {
	return &QueryError{Code: ErrCodeUsage, Message: fmt.Sprintf(format, args...), Client: true}
}

// IsClientError returns true if the error was caused by the request.
// Uses errors.As to handle wrapped errors.
func IsClientError(err error) bool {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Client
	}
	return false
}

// ErrorCode extracts the error category, or "" for non-query errors.
func ErrorCode(err error) QueryErrorCode {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}
