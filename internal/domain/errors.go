package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
// Implementing this interface enables extensible error handling (OCP compliance).
type HTTPError interface {
	error
	StatusCode() int
}

// Domain error types implementing HTTPError interface
type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}

	// UnauthorizedError indicates authentication failure
	UnauthorizedError struct {
		Message string
	}

	// ForbiddenError indicates authorization failure
	ForbiddenError struct {
		Message string
	}
)

// Error implementations
func (e *NotFoundError) Error() string     { return e.Message }
func (e *ValidationError) Error() string   { return e.Message }
func (e *UnauthorizedError) Error() string { return e.Message }
func (e *ForbiddenError) Error() string    { return e.Message }

// StatusCode implementations (HTTPError interface)
func (e *NotFoundError) StatusCode() int     { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int   { return http.StatusBadRequest }
func (e *UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }
func (e *ForbiddenError) StatusCode() int    { return http.StatusForbidden }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// ErrStaleVersion is returned by the active-revision CAS swap when the
	// expected version no longer matches. Callers retry against fresh state.
	ErrStaleVersion = errors.New("active revision version changed")
)

// Stable machine-readable codes attached to CodedError responses.
// Clients branch on these, so they never change.
const (
	CodeTargetBlockNotFound    = "target_block_not_found"
	CodeEvidenceQuoteNotFound  = "evidence_quote_not_matched"
	CodeConcurrentEdit         = "concurrent_edit"
	CodeApplyFailed            = "apply_failed"
	CodeScopeTooLarge          = "scope_too_large"
	CodeInvalidToken           = "invalid_token"
	CodeTokenMismatch          = "token_mismatch"
	CodeTokenExpired           = "token_expired"
	CodeDocNotFound            = "doc_not_found"
	CodeDocumentModified       = "document_modified"
	CodeVersionMismatch        = "version_mismatch"
	CodeMissingPreviewHash     = "missing_preview_hash"
	CodePreviewHashMismatch    = "preview_hash_mismatch"
	CodePlanHashMismatch       = "plan_hash_mismatch"
)

// CodedError carries a stable machine-readable code alongside the message.
// Implements HTTPError so handlers can map it without switching on codes.
type CodedError struct {
	Code    string
	Message string
	Status  int
	// Extra holds additional context surfaced to the client
	// (e.g. current_version vs token_version on a version mismatch).
	Extra map[string]interface{}
}

// Error implements the error interface
func (e *CodedError) Error() string {
	return e.Message
}

// StatusCode implements the HTTPError interface
func (e *CodedError) StatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	return http.StatusUnprocessableEntity
}

// Coded builds a CodedError with the given HTTP status, code and message.
func Coded(status int, code, message string) *CodedError {
	return &CodedError{Code: code, Message: message, Status: status}
}

// CodeOf extracts the machine code from an error chain, or "" if none.
func CodeOf(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}
