package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/scry-research/internal/api/shared"
	"github.com/phrazzld/scry-research/internal/domain"
	"github.com/phrazzld/scry-research/internal/knowledge"
	"github.com/phrazzld/scry-research/internal/service/auth"
	"github.com/phrazzld/scry-research/internal/store"
	"github.com/phrazzld/scry-research/internal/task"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingSubject),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, knowledge.ErrContentUnavailable):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, domain.ErrTaskTerminal):
		return http.StatusConflict

	// Bad request errors
	case isBadRequest(err):
		return http.StatusBadRequest

	case errors.Is(err, knowledge.ErrUnsupportedContent):
		return http.StatusUnprocessableEntity

	// Backpressure from the in-process queue
	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

func isBadRequest(err error) bool {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return true
	}
	for _, target := range []error{
		store.ErrInvalidEntity,
		task.ErrInvalidRequest,
		domain.ErrValidation,
		domain.ErrInvalidID,
		domain.ErrInvalidMode,
		domain.ErrSubjectRequired,
		domain.ErrOwnerRequired,
		domain.ErrEmptyTaskID,
		domain.ErrEmptyDocumentSubject,
		domain.ErrEmptyDocumentFilename,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingSubject):
		return "Invalid token"
	case errors.Is(err, domain.ErrUnauthorized):
		return "Unauthorized"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrDocumentNotFound):
		return "Document not found"
	case errors.Is(err, knowledge.ErrContentUnavailable):
		return "Document content not available"
	case errors.Is(err, knowledge.ErrUnsupportedContent):
		return "Document content is not text"

	case errors.Is(err, store.ErrDuplicate):
		return "Entity already exists"
	case errors.Is(err, domain.ErrTaskTerminal):
		return "Task already finished"

	case errors.Is(err, domain.ErrInvalidMode):
		return "Invalid mode: must be one of MACRO, STRATEGY, STOCK"
	case errors.Is(err, domain.ErrSubjectRequired):
		return "Subject is required for STOCK mode"
	case errors.Is(err, domain.ErrOwnerRequired):
		return "Owner is required"
	case errors.Is(err, domain.ErrEmptyDocumentSubject):
		return "Invalid subject"
	case errors.Is(err, domain.ErrEmptyDocumentFilename):
		return "Invalid filename"
	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID format"
	case errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, task.ErrInvalidRequest),
		errors.Is(err, domain.ErrValidation):
		return "Invalid request data"

	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrQueueClosed):
		return "Report queue is unavailable, try again later"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator output into a message naming the
// first failing field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "Invalid " + strings.ToLower(fe.Field()) + ": " + getValidationTagMessage(fe.Tag())
	}
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the status and safe message for err. A non-empty
// message overrides the derived one.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}

// HandleValidationError writes a 400 for a request that failed validation.
func HandleValidationError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
}
