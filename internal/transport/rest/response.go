package rest

import (
	"log/slog"
	"net/http"
	"time"

	perrors "github.com/Dimi2435/product-inventory-api/internal/errors"
	"github.com/Dimi2435/product-inventory-api/pkg/web"
)

// errorResponse is the envelope returned for every failed request.
// Details and Errors are omitted when empty.
type errorResponse struct {
	Timestamp time.Time         `json:"timestamp"`
	Status    int               `json:"status"`
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	ErrorCode string            `json:"errorCode"`
	Details   string            `json:"details,omitempty"`
	Path      string            `json:"path"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// respondError writes a ProductError as an error envelope.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, pErr *perrors.ProductError) {
	web.RespondJSON(w, logger, pErr.Status, errorResponse{
		Timestamp: time.Now().UTC(),
		Status:    pErr.Status,
		Error:     http.StatusText(pErr.Status),
		Message:   pErr.Message,
		ErrorCode: pErr.ErrorCode,
		Details:   pErr.Details,
		Path:      r.URL.Path,
	})
}

// respondValidationErrors writes a 400 envelope carrying per-field messages.
func respondValidationErrors(w http.ResponseWriter, r *http.Request, logger *slog.Logger, fieldErrors map[string]string) {
	web.RespondJSON(w, logger, http.StatusBadRequest, errorResponse{
		Timestamp: time.Now().UTC(),
		Status:    http.StatusBadRequest,
		Error:     http.StatusText(http.StatusBadRequest),
		Message:   "Validation failed",
		ErrorCode: perrors.CodeBadRequest,
		Path:      r.URL.Path,
		Errors:    fieldErrors,
	})
}

// respondServiceError maps any service error to its envelope. Errors that are
// not ProductError values are reported as internal without leaking the cause.
func respondServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if pErr, ok := perrors.AsProductError(err); ok {
		respondError(w, r, logger, pErr)
		return
	}
	logger.ErrorContext(r.Context(), "Unexpected service error", "error", err)
	respondError(w, r, logger, perrors.NewInternal("An unexpected error occurred"))
}
