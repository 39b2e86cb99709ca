package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// APIError represents a custom error type for API responses
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Details string `json:"details,omitempty"`
}

// Error returns the error message
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on Code so a detailed copy still compares equal to its sentinel.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy of e carrying context about the failing entity.
func (e *APIError) WithDetails(format string, args ...any) *APIError {
	cp := *e
	cp.Details = fmt.Sprintf(format, args...)
	return &cp
}

func NewAPIError(code, message string, status int, details ...string) *APIError {
	err := &APIError{
		Code:    code,
		Message: message,
		Status:  status,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

var (
	ErrInvalidInput = NewAPIError("INVALID_INPUT", "Invalid request data", http.StatusBadRequest)
	ErrUnauthorized = NewAPIError("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrNotFound     = NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrInternal     = NewAPIError("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrConflict     = NewAPIError("CONFLICT", "Resource conflict", http.StatusConflict)

	// Validation
	ErrInvalidCoordinate = NewAPIError("INVALID_COORDINATE", "Coordinate out of range", http.StatusBadRequest)
	ErrEmptyComment      = NewAPIError("EMPTY_COMMENT", "Comment text is blank", http.StatusBadRequest)
	ErrCommentTooLong    = NewAPIError("COMMENT_TOO_LONG", "Comment text exceeds 200 characters", http.StatusBadRequest)

	// Conflicts
	ErrAlreadyLiked      = NewAPIError("ALREADY_LIKED", "Badge already liked by user", http.StatusConflict)
	ErrDuplicateRequest  = NewAPIError("DUPLICATE_REQUEST", "Follow request or follow already exists", http.StatusConflict)
	ErrSelfRelation      = NewAPIError("SELF_RELATION", "Users cannot follow themselves", http.StatusConflict)
	ErrInvalidTransition = NewAPIError("INVALID_TRANSITION", "Action not allowed in current relation state", http.StatusConflict)
	ErrUsernameTaken     = NewAPIError("USERNAME_TAKEN", "Username already registered", http.StatusConflict)

	// Missing entities
	ErrUserNotFound     = NewAPIError("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	ErrBadgeNotFound    = NewAPIError("BADGE_NOT_FOUND", "Badge not found", http.StatusNotFound)
	ErrCommentNotFound  = NewAPIError("COMMENT_NOT_FOUND", "Comment not found", http.StatusNotFound)
	ErrMonumentNotFound = NewAPIError("MONUMENT_NOT_FOUND", "Monument not found", http.StatusNotFound)

	ErrUnauthorizedTransition = NewAPIError("UNAUTHORIZED_TRANSITION", "Actor may not perform this action", http.StatusForbidden)
	ErrForbidden              = NewAPIError("FORBIDDEN", "Administrator access required", http.StatusForbidden)
)

func Wrap(err error, code, message string, status int) *APIError {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}
	return NewAPIError(code, message, status, err.Error())
}

// Is and As forward to the standard library so callers importing this
// package under the name errors keep both.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// IsValidation reports whether err was rejected before any mutation because
// of malformed input.
func IsValidation(err error) bool { return statusOf(err) == http.StatusBadRequest }

// IsConflict reports whether err means the caller should re-fetch state.
func IsConflict(err error) bool { return statusOf(err) == http.StatusConflict }

func statusOf(err error) int {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
