package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Mesa error code.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"    // 400
	ErrNotFound          ErrorCode = "NOT_FOUND"          // 404
	ErrFileNotFound      ErrorCode = "FILE_NOT_FOUND"     // 404
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION" // 409
	ErrAttemptInFlight   ErrorCode = "ATTEMPT_IN_FLIGHT"  // 409
	ErrConflict          ErrorCode = "CONFLICT"           // 409
	ErrUnknownCapsule    ErrorCode = "UNKNOWN_CAPSULE"    // 422
	ErrArchetypeMismatch ErrorCode = "ARCHETYPE_MISMATCH" // 422
	ErrCatalogInvalid    ErrorCode = "CATALOG_INVALID"    // 422
	ErrCancelled         ErrorCode = "CANCELLED"          // 499
	ErrInternal          ErrorCode = "INTERNAL"           // 500
)

// MesaError represents a structured error with code, status, and details.
type MesaError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *MesaError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *MesaError {
	return &MesaError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing persisted record.
// kind names the record type ("session", "table", ...).
func NewNotFound(kind, identifier string) *MesaError {
	return &MesaError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *MesaError {
	return &MesaError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewInvalidTransition creates a 409 error for a rejected phase change.
func NewInvalidTransition(from, to string) *MesaError {
	return &MesaError{
		Code:    ErrInvalidTransition,
		Status:  409,
		Message: fmt.Sprintf("cannot move from %s to %s", from, to),
		Details: map[string]any{"from": from, "to": to},
	}
}

// NewAttemptInFlight creates a 409 error when a session already has an
// unresolved verification attempt.
func NewAttemptInFlight(sessionID, attemptID string) *MesaError {
	return &MesaError{
		Code:    ErrAttemptInFlight,
		Status:  409,
		Message: fmt.Sprintf("session %s already has attempt %s in flight", sessionID, attemptID),
		Details: map[string]any{"session_id": sessionID, "attempt_id": attemptID},
	}
}

// NewConflict creates a 409 error when a record changed between being read
// and being written back. The caller can reload and retry.
func NewConflict(kind, identifier string) *MesaError {
	return &MesaError{
		Code:    ErrConflict,
		Status:  409,
		Message: fmt.Sprintf("%s %s was modified concurrently", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewUnknownCapsule creates a 422 error for a capsule id absent from the catalog.
// This is a configuration error: callers must validate capsule ids up front.
func NewUnknownCapsule(capsuleID string) *MesaError {
	return &MesaError{
		Code:    ErrUnknownCapsule,
		Status:  422,
		Message: fmt.Sprintf("capsule %q is not in the catalog", capsuleID),
		Details: map[string]any{"capsule_id": capsuleID},
	}
}

// NewArchetypeMismatch creates a 422 error for an archetype that is not part
// of the given capsule's sequence.
func NewArchetypeMismatch(capsuleID, archetypeID string) *MesaError {
	return &MesaError{
		Code:    ErrArchetypeMismatch,
		Status:  422,
		Message: fmt.Sprintf("archetype %q does not belong to capsule %q", archetypeID, capsuleID),
		Details: map[string]any{"capsule_id": capsuleID, "archetype_id": archetypeID},
	}
}

// NewCatalogInvalid creates a 422 error listing catalog validation problems.
func NewCatalogInvalid(problems []string) *MesaError {
	return &MesaError{
		Code:    ErrCatalogInvalid,
		Status:  422,
		Message: fmt.Sprintf("catalog failed validation: %v", problems),
		Details: map[string]any{"problems": problems},
	}
}

// NewCancelled creates a 499 error when an operation is cancelled via context.
func NewCancelled(op string) *MesaError {
	return &MesaError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The underlying cause is kept in Details for logging and never surfaced
// in Message.
func NewInternal(err error) *MesaError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &MesaError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error (or anything it wraps) is a MesaError with the given code.
func Is(err error, code ErrorCode) bool {
	var mErr *MesaError
	if stderrors.As(err, &mErr) {
		return mErr.Code == code
	}
	return false
}

// As returns the MesaError in err's chain, if any.
func As(err error) (*MesaError, bool) {
	var mErr *MesaError
	if stderrors.As(err, &mErr) {
		return mErr, true
	}
	return nil, false
}
