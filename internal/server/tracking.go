package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/store"
)

// pixel is a transparent 1x1 GIF.
var pixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

var relayEvents = map[model.SendEvent]bool{
	model.EventDelivered: true,
	model.EventOpened:    true,
	model.EventClicked:   true,
	model.EventReplied:   true,
	model.EventBounced:   true,
	model.EventComplaint: true,
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "emailID")
	if s.deps.Tracker == nil || !s.deps.Tracker.VerifyOpen(id, r.URL.Query().Get("sig")) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if err := s.deps.Events.Opened(r.Context(), id); err != nil {
		zap.L().Warn("server: record open", zap.String("email_id", id), zap.Error(err))
	}
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pixel)
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "emailID")
	target := r.URL.Query().Get("u")
	if s.deps.Tracker == nil || !s.deps.Tracker.VerifyClick(id, target, r.URL.Query().Get("sig")) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		http.Error(w, "bad target", http.StatusBadRequest)
		return
	}
	if err := s.deps.Events.Clicked(r.Context(), id); err != nil {
		zap.L().Warn("server: record click", zap.String("email_id", id), zap.Error(err))
	}
	http.Redirect(w, r, u.String(), http.StatusFound)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "emailID")
	if s.deps.Tracker == nil || !s.deps.Tracker.VerifyUnsubscribe(id, r.URL.Query().Get("sig")) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	err := s.deps.Events.Unsubscribe(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		zap.L().Error("server: unsubscribe", zap.String("email_id", id), zap.Error(err))
		http.Error(w, "unsubscribe failed", http.StatusInternalServerError)
		return
	}

	// One-click unsubscribe posts from the mail client and ignores the body.
	if r.Method == http.MethodPost {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<!doctype html><html><body><p>You have been unsubscribed.</p></body></html>"))
}

type eventRequest struct {
	Type              model.SendEvent `json:"type"`
	ProviderMessageID string          `json:"provider_message_id"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProviderMessageID == "" {
		writeError(w, http.StatusBadRequest, "provider_message_id is required")
		return
	}
	if !relayEvents[req.Type] {
		writeError(w, http.StatusBadRequest, "unknown event type")
		return
	}

	err := s.deps.Events.Relay(r.Context(), req.ProviderMessageID, req.Type)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown message")
		return
	}
	if err != nil {
		zap.L().Error("server: relay event",
			zap.String("provider_message_id", req.ProviderMessageID),
			zap.String("type", string(req.Type)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "event failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
