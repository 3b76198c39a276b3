package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
)

// transactionPayload decorates a transaction with its derived status.
type transactionPayload struct {
	core.Transaction
	Status core.Status `json:"status"`
}

func transactionResponse(t core.Transaction) transactionPayload {
	return transactionPayload{
		Transaction: t,
		Status:      t.Status(core.DateOf(timeNow())),
	}
}

func transactionListResponse(ts []core.Transaction) []transactionPayload {
	today := core.DateOf(timeNow())
	out := make([]transactionPayload, len(ts))
	for i, t := range ts {
		out[i] = transactionPayload{Transaction: t, Status: t.Status(today)}
	}
	return out
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		RequestID: trace.GetRequestID(r.Context()),
	})
}

// writeServiceError maps domain and service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrEmailTaken):
		writeError(w, r, http.StatusConflict, err.Error())
	case isValidationError(err):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed", "error", err,
			"path", r.URL.Path, "method", r.Method)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func isValidationError(err error) bool {
	for _, v := range []error{
		core.ErrEmptyTitle,
		core.ErrTitleTooLong,
		core.ErrDescriptionTooLong,
		core.ErrInvalidType,
		core.ErrInvalidCategory,
		core.ErrZeroDate,
		core.ErrEmptyEmail,
		core.ErrInvalidAmount,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}
