package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joseph-ayodele/property-importer/internal/async"
	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/pipeline"
)

// enqueueImport handles POST /api/imports. The run's progress is kept in
// the import_runs table and read back through GET /api/imports/{id}.
func (s *Server) enqueueImport(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeBody(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := req.Source.Validate(); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.TenantID == "" {
		s.respondError(w, r, common.ConfigurationError(common.CodeUserNoLocation, "no tenant selected for this import"))
		return
	}

	req.RunID = pipeline.NewRunID()
	runID, err := s.deps.Queue.Enqueue(r.Context(), async.Job{RunID: req.RunID, Request: req, SubmittedAt: time.Now()})
	if err != nil {
		if errors.Is(err, async.ErrClosed) {
			respondJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
			return
		}
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"runId": runID})
}

// getImport handles GET /api/imports/{id}.
func (s *Server) getImport(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		s.respondError(w, r, common.InvalidInputError("id is required"))
		return
	}
	run, err := s.deps.Runs.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// exportProperties handles GET /api/properties/export?tenantId=&since=.
// since is a date (2006-01-02) or an RFC 3339 timestamp.
func (s *Server) exportProperties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := strings.TrimSpace(q.Get("tenantId"))
	since, err := parseSince(q.Get("since"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	b, err := s.deps.Export.ExportPropertiesXLSX(r.Context(), tenantID, since)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="properties.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func parseSince(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, common.InvalidInputError("since must be YYYY-MM-DD or RFC 3339")
}
