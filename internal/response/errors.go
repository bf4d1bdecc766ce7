package response

import (
	"net/http"

	"github.com/examguard/examguard-backend/internal/apperr"
)

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication / Authorization ────────────────────────────────
	ErrTokenRequired     ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid      ErrCode = "TOKEN_INVALID"
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentOnly       ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminOnly         ErrCode = "ADMIN_ACCESS_ONLY"
	ErrSessionMismatch   ErrCode = "SESSION_TOKEN_MISMATCH"
	ErrAttemptTerminated ErrCode = "ATTEMPT_TERMINATED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources / State Machine ─────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Proctoring ────────────────────────────────────────────────────
	ErrChatBlocked     ErrCode = "CHAT_BLOCKED"
	ErrUpstreamFailure ErrCode = "UPSTREAM_FAILURE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentOnly:
		return "This resource is restricted to students."
	case ErrAdminOnly:
		return "This resource is restricted to administrators."
	case ErrSessionMismatch:
		return "The exam session token does not match the active attempt."
	case ErrAttemptTerminated:
		return "This exam attempt has been blocked."
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "The requested transition conflicts with the attempt's current state."
	case ErrChatBlocked:
		return "Chat is currently blocked for this attempt."
	case ErrUpstreamFailure:
		return "An upstream storage call failed. Please retry."
	case ErrFileTooLarge:
		return "The file exceeds the upload size limit."
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}

// FromAppError maps a service-layer error to an HTTP status and ErrCode.
func FromAppError(err error) (int, ErrCode) {
	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidInput:
		return http.StatusBadRequest, ErrInvalidPayload
	case apperr.CodeNotFound:
		return http.StatusNotFound, ErrNotFound
	case apperr.CodeForbidden:
		return http.StatusForbidden, ErrForbidden
	case apperr.CodeSessionMismatch:
		return http.StatusForbidden, ErrSessionMismatch
	case apperr.CodeConflict:
		return http.StatusConflict, ErrConflict
	case apperr.CodeAttemptTerminated:
		return http.StatusConflict, ErrAttemptTerminated
	case apperr.CodeUpstreamFailure:
		return http.StatusBadGateway, ErrUpstreamFailure
	case apperr.CodeChatBlocked:
		return http.StatusForbidden, ErrChatBlocked
	default:
		return http.StatusInternalServerError, ErrInternal
	}
}
