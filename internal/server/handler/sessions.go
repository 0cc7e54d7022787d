// Package handler provides the HTTP handlers for the code-mender API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sevigo/code-mender/internal/core"
	"github.com/sevigo/code-mender/internal/storage"
)

// SessionHandler exposes fix sessions over HTTP: creation queues a background
// job, the read endpoints serve persisted state.
type SessionHandler struct {
	dispatcher core.JobDispatcher
	store      storage.Store
	logger     *slog.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(dispatcher core.JobDispatcher, store storage.Store, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		dispatcher: dispatcher,
		store:      store,
		logger:     logger,
	}
}

// createSessionRequest is the POST /sessions payload.
type createSessionRequest struct {
	ProjectPath string `json:"project_path,omitempty"`
	CloneURL    string `json:"clone_url,omitempty"`
	MaxProblems int    `json:"max_problems,omitempty"`
}

// Create queues a new fix session and returns its id.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req := &core.SessionRequest{
		SessionID:   uuid.NewString(),
		ProjectPath: body.ProjectPath,
		CloneURL:    body.CloneURL,
		MaxProblems: body.MaxProblems,
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), req); err != nil {
		h.logger.Error("failed to queue fix session", "error", err)
		http.Error(w, "failed to queue fix session", http.StatusServiceUnavailable)
		return
	}

	h.logger.Info("fix session queued", "session_id", req.SessionID)
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": req.SessionID})
}

// Get serves one session with its tracked problems.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load session", "session_id", id, "error", err)
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Report serves the session's verification reports in creation order.
func (h *SessionHandler) Report(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// A missing session is a 404; a session without reports is an empty list.
	if _, err := h.store.GetSession(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load session", "session_id", id, "error", err)
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}

	reports, err := h.store.ListReports(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load reports", "session_id", id, "error", err)
		http.Error(w, "failed to load reports", http.StatusInternalServerError)
		return
	}
	if reports == nil {
		reports = []core.ComprehensiveReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
