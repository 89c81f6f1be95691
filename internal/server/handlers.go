package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ws := chi.URLParam(r, "workspaceID")
	snap, err := s.deps.Status.Snapshot(r.Context(), ws)
	if err != nil {
		zap.L().Error("server: status", zap.String("workspace_id", ws), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRunEnrichment(w http.ResponseWriter, r *http.Request) {
	s.runBatch(w, r, "enrichment", s.deps.Enrichment)
}

func (s *Server) handleRunEmail(w http.ResponseWriter, r *http.Request) {
	s.runBatch(w, r, "email", s.deps.Email)
}

func (s *Server) runBatch(w http.ResponseWriter, r *http.Request, kind string, runner BatchRunner) {
	ws := chi.URLParam(r, "workspaceID")
	size, ok := batchSize(w, r)
	if !ok {
		return
	}
	res, err := runner.ProcessBatch(r.Context(), ws, size)
	if err != nil {
		zap.L().Error("server: batch failed", zap.String("kind", kind), zap.String("workspace_id", ws), zap.Error(err))
		writeError(w, http.StatusInternalServerError, kind+" batch failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// batchSize reads the optional batch_size query parameter; 0 means the
// dispatcher default.
func batchSize(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("batch_size")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 1000 {
		writeError(w, http.StatusBadRequest, "batch_size must be between 1 and 1000")
		return 0, false
	}
	return n, true
}

func (s *Server) handleRunFollowUps(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "campaignID")
	n, err := s.deps.FollowUps.ScheduleFollowUps(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "campaign not found")
		return
	}
	if err != nil {
		zap.L().Error("server: schedule follow-ups", zap.String("campaign_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "follow-up scheduling failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"scheduled": n})
}

func (s *Server) handleEnrichCandidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "candidateID")
	n, err := s.deps.Queuer.QueueEnrichmentForCandidate(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "candidate not found")
		return
	}
	if err != nil {
		zap.L().Error("server: queue enrichment", zap.String("candidate_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "queueing failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": n})
}
