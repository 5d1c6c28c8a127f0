package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"kasirinaja/backoffice/internal/lifecycle"
	"kasirinaja/backoffice/internal/service"
	"kasirinaja/backoffice/internal/store"
)

func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, lifecycle.ErrInvalidInput),
		errors.Is(err, lifecycle.ErrInvalidAmount),
		errors.Is(err, store.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrInvalidState),
		errors.Is(err, lifecycle.ErrAlreadySettled),
		errors.Is(err, lifecycle.ErrNotDeletable),
		errors.Is(err, store.ErrDuplicateTransaction),
		errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, service.ErrAnalyticsUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps a service error onto a status. Anything unmapped
// is logged and reported as a generic 500.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeError(w, status, err)
}
