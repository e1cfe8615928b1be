package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"playback-session/internal/platform/metrics"
)

// Handler exposes the host-UI contract over HTTP using go-chi:
// create session, report host status, read the observable state, dispose.
type Handler struct {
	mgr     *Manager
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler over the given Manager, Logger, and optional
// Metrics. Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(mgr *Manager, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{mgr: mgr, log: log, metrics: m}
}

// createSessionRequest is the body of POST /sessions.
type createSessionRequest struct {
	Content  ContentReference `json:"content"`
	ViewerID int64            `json:"viewer_id"`
}

// hostStatusRequest is the body of POST /sessions/{session_id}/status.
type hostStatusRequest struct {
	PositionSeconds float64 `json:"position_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
	Playing         bool    `json:"playing"`
}

// sessionStateResponse is the read-only view the host UI renders from.
// Source is only present once the session holds a playable source.
type sessionStateResponse struct {
	SessionID string           `json:"session_id"`
	State     string           `json:"state"`
	Content   ContentReference `json:"content"`
	Source    *Source          `json:"source,omitempty"`
}

func stateResponse(id string, s *Session) sessionStateResponse {
	resp := sessionStateResponse{
		SessionID: id,
		State:     s.State().String(),
		Content:   s.Reference(),
	}
	if src, ok := s.CurrentSource(); ok {
		resp.Source = &src
	}
	return resp
}

// CreateSession handles POST /sessions.
// Body: { "content": { "kind": "movie", "id": 42 }, "viewer_id": 7 }.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid session body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	id, s, err := h.mgr.Open(req.Content, req.ViewerID)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidReference):
			w.WriteHeader(http.StatusBadRequest)
		default:
			h.log.Error("create session failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	h.log.Info("session created",
		slog.String("session_id", id),
		slog.String("content", req.Content.String()),
		slog.Int64("viewer_id", req.ViewerID))
	if h.metrics != nil {
		h.metrics.IncSessionsStarted()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(stateResponse(id, s))
}

// ReportStatus handles POST /sessions/{session_id}/status.
// Body: { "position_seconds": 20, "duration_seconds": 200, "playing": true }.
func (h *Handler) ReportStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	s, ok := h.mgr.Get(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var req hostStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid status body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.ReportHostStatus(req.PositionSeconds, req.DurationSeconds, req.Playing)
	w.WriteHeader(http.StatusAccepted)
}

// GetState handles GET /sessions/{session_id}/state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	s, ok := h.mgr.Get(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(stateResponse(id, s))
}

// DisposeSession handles DELETE /sessions/{session_id}. Disposing twice (or
// disposing an unknown id) is a no-op, matching Session.Dispose idempotency.
func (h *Handler) DisposeSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	h.mgr.Dispose(id)
	h.log.Info("session disposed", slog.String("session_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// Routes mounts the handler's endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{session_id}", func(r chi.Router) {
		r.Post("/status", h.ReportStatus)
		r.Get("/state", h.GetState)
		r.Delete("/", h.DisposeSession)
	})
}
