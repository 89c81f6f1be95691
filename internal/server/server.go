// Package server exposes the batch entry points, queue status and the
// email tracking endpoints over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/monitoring"
	"github.com/sells-group/recruit-cli/internal/outreach"
)

// BatchRunner is a dispatcher's batch entry point.
type BatchRunner interface {
	ProcessBatch(ctx context.Context, workspaceID string, batchSize int) (model.BatchResult, error)
}

// FollowUpScheduler schedules a campaign's due follow-ups.
type FollowUpScheduler interface {
	ScheduleFollowUps(ctx context.Context, campaignID string) (int, error)
}

// CandidateQueuer queues a single candidate's enrichment gaps.
type CandidateQueuer interface {
	QueueEnrichmentForCandidate(ctx context.Context, candidateID string) (int, error)
}

// StatusSource reports a workspace's queue health.
type StatusSource interface {
	Snapshot(ctx context.Context, workspaceID string) (*monitoring.Snapshot, error)
}

// EventSink records tracking and delivery events.
type EventSink interface {
	Opened(ctx context.Context, emailID string) error
	Clicked(ctx context.Context, emailID string) error
	Unsubscribe(ctx context.Context, emailID string) error
	Relay(ctx context.Context, providerMessageID string, ev model.SendEvent) error
}

// Deps are the components the handlers call. A nil Tracker disables the
// tracking endpoints.
type Deps struct {
	Enrichment BatchRunner
	Email      BatchRunner
	FollowUps  FollowUpScheduler
	Queuer     CandidateQueuer
	Status     StatusSource
	Events     EventSink
	Tracker    *outreach.Tracker
}

// Server is the HTTP API.
type Server struct {
	deps   Deps
	router chi.Router
}

// New builds the router. An empty corsOrigins allows any origin.
func New(deps Deps, corsOrigins []string) *Server {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	s := &Server{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/status/{workspaceID}", s.handleStatus)
	r.Post("/workspaces/{workspaceID}/enrichment/run", s.handleRunEnrichment)
	r.Post("/workspaces/{workspaceID}/email/run", s.handleRunEmail)
	r.Post("/campaigns/{campaignID}/followups/run", s.handleRunFollowUps)
	r.Post("/candidates/{candidateID}/enrich", s.handleEnrichCandidate)

	r.Get("/t/o/{emailID}.gif", s.handleOpen)
	r.Get("/t/c/{emailID}", s.handleClick)
	r.Get("/u/{emailID}", s.handleUnsubscribe)
	r.Post("/u/{emailID}", s.handleUnsubscribe)
	r.Post("/webhooks/events", s.handleEvent)

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
