package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JakeFAU/filmmeta/internal/progress/sinks"
)

// StatusSource exposes run progress collected from the event hub.
type StatusSource interface {
	Latest() (sinks.RunStatus, bool)
	Get(runID string) (sinks.RunStatus, bool)
}

// latestRun handles GET /v1/runs/latest. It answers {"run": {...}}, 404
// before any run has started, or 503 without a status source.
func (s *Server) latestRun(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run status unavailable")
		return
	}
	st, ok := s.status.Latest()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no run has started")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": st})
}

// getRun handles GET /v1/runs/{run_id}. Malformed ids are 400, unknown ids
// 404.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run status unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, ok := s.status.Get(runID.String())
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": st})
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "run_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return id, nil
}
