package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/interviewer/internal/engine"
	"github.com/pavelanni/interviewer/internal/gaps"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/store"
)

// Sessions reads live session state.
type Sessions interface {
	Session(ctx context.Context, id string) (*model.SessionState, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	sessions Sessions
	ledger   *gaps.Ledger
	sink     QuestionSink
}

// New creates a new Handler. sink may be nil.
func New(s *store.Store, sessions Sessions, ledger *gaps.Ledger, sink QuestionSink) *Handler {
	return &Handler{store: s, sessions: sessions, ledger: ledger, sink: sink}
}

// Routes registers the health check and the JSON API.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", h.handleListSessions)
		r.Get("/sessions/{sessionID}", h.handleGetSession)
		r.Get("/sessions/{sessionID}/result", h.handleSessionResult)
		r.Get("/users/{userID}/gaps", h.handleListGaps)
		r.Post("/gaps/{gapID}/resolve", h.handleResolveGap)
		r.Get("/questions/topics", h.handleListTopics)
		r.Post("/questions", h.handleUploadQuestions)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context(), store.SessionFilter{
		UserID: r.URL.Query().Get("user"),
		Status: model.SessionStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		slog.Error("failed to list sessions", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]model.SessionResult, 0, len(sessions))
	for i := range sessions {
		out = append(out, model.NewSessionResult(&sessions[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*model.SessionState, bool) {
	id := chi.URLParam(r, "sessionID")
	s, err := h.sessions.Session(r.Context(), id)
	switch {
	case err == nil:
		return s, true
	case errors.Is(err, engine.ErrInputViolation):
		http.Error(w, "session not found", http.StatusNotFound)
	case errors.Is(err, engine.ErrStateViolation):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("failed to load session", "session_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
	return nil, false
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		writeJSON(w, http.StatusOK, s)
	}
}

func (h *Handler) handleSessionResult(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		writeJSON(w, http.StatusOK, model.NewSessionResult(s))
	}
}

func (h *Handler) handleListGaps(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var (
		list []model.Gap
		err  error
	)
	if r.URL.Query().Get("all") == "true" {
		list, err = h.store.Gaps().ListByUser(r.Context(), userID)
	} else {
		list, err = h.ledger.Open(r.Context(), userID)
	}
	if err != nil {
		slog.Error("failed to list gaps", "user_id", userID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []model.Gap{}
	}
	writeJSON(w, http.StatusOK, list)
}

type resolveRequest struct {
	Status model.GapStatus `json:"status"`
}

func (h *Handler) handleResolveGap(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "gapID")
	var req resolveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	g, err := h.ledger.Resolve(r.Context(), id, req.Status)
	switch {
	case err == nil:
		slog.Info("gap resolved", "gap_id", id, "status", g.Status)
		writeJSON(w, http.StatusOK, g)
	case errors.Is(err, gaps.ErrNotFound):
		http.Error(w, "gap not found", http.StatusNotFound)
	case errors.Is(err, gaps.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("failed to resolve gap", "gap_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.store.ListDistinctTopics(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if topics == nil {
		topics = []string{}
	}
	writeJSON(w, http.StatusOK, topics)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
