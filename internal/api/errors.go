package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"venuebook/internal/domain"
	"venuebook/internal/repository"
)

type errorResponse struct {
	Error    string      `json:"error"`
	Field    string      `json:"field,omitempty"`
	Conflict interface{} `json:"conflict,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps service errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		ve *domain.ValidationError
		ce *domain.ConflictError
		te *domain.InvalidTransitionError
		ue *domain.SpaceInUseError
		nf *domain.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error(), Field: ve.Field})
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, errorResponse{Error: ce.Error(), Conflict: ce.Existing})
	case errors.As(err, &te):
		writeError(w, http.StatusBadRequest, te.Error())
	case errors.As(err, &ue):
		writeError(w, http.StatusConflict, ue.Error())
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, nf.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, repository.ErrLockTimeout):
		writeError(w, http.StatusServiceUnavailable, "space is busy, retry later")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
