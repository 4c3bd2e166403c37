package response

import (
	"errors"
	"net/http"

	"gallery_planner/internal/domain/models"
)

var (
	ErrInvalidRequestFormat = ErrorResponse{
		Status:  StatusError,
		Error:   "invalid_request",
		Details: "Invalid request format",
	}

	ErrAuthenticationFailed = ErrorResponse{
		Status: StatusError,
		Error:  "authentication_failed",
	}

	ErrInternal = ErrorResponse{
		Status: StatusError,
		Error:  "internal_error",
	}
)

// FromError сопоставляет ошибку домена со статусом HTTP.
// Внутренние ошибки наружу не раскрываются.
func FromError(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, ErrorResponseWithDetails("validation_error", err.Error())
	case errors.Is(err, models.ErrNotFoundOrAccessDenied):
		return http.StatusNotFound, ErrorResponseWithDetails("not_found", "resource not found or access denied")
	case errors.Is(err, models.ErrCapacityExceeded):
		return http.StatusConflict, ErrorResponseWithDetails("capacity_exceeded", "all slots A-Z are in use")
	case errors.Is(err, models.ErrDuplicateSkipped):
		return http.StatusConflict, ErrorResponseWithDetails("duplicate_skipped", "file with this name already exists")
	case errors.Is(err, models.ErrUnreadableImage):
		return http.StatusUnprocessableEntity, ErrorResponseWithDetails("unreadable_image", "file is not a readable image")
	case errors.Is(err, models.ErrTransientWorker):
		return http.StatusServiceUnavailable, ErrorResponseWithDetails("transient_worker_failure", "image processing failed, retry")
	default:
		return http.StatusInternalServerError, ErrInternal
	}
}
