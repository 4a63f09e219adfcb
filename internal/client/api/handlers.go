package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/client/syncqueue"
	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/go-chi/chi/v5"
)

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.State.Snapshot())
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	var (
		recs any
		err  error
	)
	switch {
	case r.URL.Query().Get("unsynced") == "true":
		recs, err = s.deps.Entries.Unsynced(r.Context())
	case r.URL.Query().Get("date") != "":
		recs, err = s.deps.Entries.ListByDate(r.Context(), r.URL.Query().Get("date"))
	default:
		recs, err = s.deps.Entries.List(r.Context())
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	var e models.Entry
	if err := decode(r, &e); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	rec, err := s.deps.Entries.Add(r.Context(), e)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Entries.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	var e models.Entry
	if err := decode(r, &e); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	rec, err := s.deps.Entries.Update(r.Context(), chi.URLParam(r, "id"), e)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Entries.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) verifyRecord(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Verifier.Verify(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) recordHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.History.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) recordRevisions(w http.ResponseWriter, r *http.Request) {
	revs, err := s.deps.History.Revisions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if revs == nil {
		revs = []models.RevisionEntry{}
	}
	writeJSON(w, http.StatusOK, revs)
}

type restoreRequest struct {
	Version int64 `json:"version"`
}

func (s *Server) restoreRecord(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.Version < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("version must be positive, got %d", req.Version))
		return
	}
	res, err := s.deps.History.Restore(r.Context(), chi.URLParam(r, "id"), req.Version)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) queue(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Sync.Pending(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) retryQueue(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Sync.RetryFailed(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reset": n})
}

// drainResponse adds the per-item error messages DrainReport keeps out of
// its JSON form.
type drainResponse struct {
	syncqueue.DrainReport
	Errors []string `json:"errors,omitempty"`
}

func (s *Server) sync(w http.ResponseWriter, r *http.Request) {
	if !s.deps.State.IsOnline() {
		writeError(w, http.StatusServiceUnavailable, "offline", common.ErrUnreachable)
		return
	}
	report, err := s.deps.Sync.Drain(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := drainResponse{DrainReport: report}
	for _, e := range report.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	status := http.StatusOK
	if !report.Ran {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

func (s *Server) verifyAll(w http.ResponseWriter, r *http.Request) {
	sum, err := s.deps.Verifier.VerifyAll(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if r.URL.Query().Get("details") != "true" {
		sum.Results = nil
	}
	writeJSON(w, http.StatusOK, sum)
}
