package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/logsync/internal/common"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

// fail maps a domain error onto an HTTP status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrInvalidEntry):
		writeError(w, http.StatusBadRequest, "invalid_entry", err)
	case errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, common.ErrNotCanonical):
		writeError(w, http.StatusConflict, "not_synced", err)
	case errors.Is(err, common.ErrPendingChanges):
		writeError(w, http.StatusConflict, "pending_changes", err)
	case errors.Is(err, common.ErrUnauthenticated), errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "unauthenticated", err)
	case errors.Is(err, common.ErrUnreachable):
		writeError(w, http.StatusServiceUnavailable, "backend_unreachable", err)
	case errors.Is(err, common.ErrRemoteRejected):
		writeError(w, http.StatusUnprocessableEntity, "remote_rejected", err)
	default:
		s.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
