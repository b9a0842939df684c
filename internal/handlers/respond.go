package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	apperrors "github.com/bytefinance/backend/internal/errors"
	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/services"
)

const maxBodyBytes = 1_048_576

// decodeJSON reads exactly one JSON object into dst and writes the 400 itself
// when it can't.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, apperrors.WrapValidationError("body", err))
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a service error onto an HTTP status.
func writeError(w http.ResponseWriter, log *logrus.Logger, err error) {
	switch {
	case apperrors.IsValidationError(err):
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
	case apperrors.IsNotFound(err):
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case apperrors.IsAlreadyExists(err),
		errors.Is(err, apperrors.ErrAccountArchived),
		errors.Is(err, apperrors.ErrInvalidLoanTransition),
		errors.Is(err, apperrors.ErrConflictingFinalization):
		services.SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
	case apperrors.IsUnavailable(err), errors.Is(err, apperrors.ErrLockNotAcquired):
		w.Header().Set("Retry-After", "1")
		services.SendErrorResponse(w, "Service temporarily unavailable", http.StatusServiceUnavailable, nil)
	default:
		log.WithError(err).Error("unhandled error")
		services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}

func resultStatusCode(status models.CommandStatus) int {
	switch status {
	case models.StatusApplied, models.StatusAlreadyApplied, models.StatusReversed:
		return http.StatusOK
	case models.StatusPending:
		return http.StatusAccepted
	default:
		return http.StatusUnprocessableEntity
	}
}

// writeResult writes a command outcome. A pending result travels with the
// error that left it pending; the client retries with the same key.
func writeResult(w http.ResponseWriter, log *logrus.Logger, res *models.CommandResult, err error) {
	if res != nil && res.Status == models.StatusPending {
		if err != nil {
			log.WithError(err).WithField("entry_id", res.EntryID).Warn("command left pending")
		}
		writeJSON(w, http.StatusAccepted, res)
		return
	}
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, resultStatusCode(res.Status), res)
}
