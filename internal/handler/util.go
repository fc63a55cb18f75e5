// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/tixagent/internal/booking"
	"github.com/capitalize-ai/tixagent/internal/service"
	"github.com/capitalize-ai/tixagent/internal/session"
	"github.com/capitalize-ai/tixagent/pkg/logger"
)

const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

// writeServiceError maps service and orchestrator errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, op string, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, booking.ErrMissingProof), errors.Is(err, booking.ErrNoPendingBooking):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrProofReused), errors.Is(err, booking.ErrSnapshotMismatch):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrJournalUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error("request failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
