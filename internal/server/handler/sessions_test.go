package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/code-mender/internal/core"
	"github.com/sevigo/code-mender/internal/storage"
)

type fakeDispatcher struct {
	dispatched []*core.SessionRequest
	err        error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, req *core.SessionRequest) error {
	if d.err != nil {
		return d.err
	}
	d.dispatched = append(d.dispatched, req)
	return nil
}

func (d *fakeDispatcher) Stop() {}

type fakeStore struct {
	storage.Store

	session *core.WorkflowSession
	reports []core.ComprehensiveReport
}

func (s *fakeStore) GetSession(_ context.Context, id string) (*core.WorkflowSession, error) {
	if s.session == nil || s.session.ID != id {
		return nil, storage.ErrNotFound
	}
	return s.session, nil
}

func (s *fakeStore) ListReports(_ context.Context, _ string) ([]core.ComprehensiveReport, error) {
	return s.reports, nil
}

func newTestRouter(dispatcher *fakeDispatcher, store *fakeStore) *chi.Mux {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	h := NewSessionHandler(dispatcher, store, logger)

	r := chi.NewRouter()
	r.Post("/sessions", h.Create)
	r.Get("/sessions/{id}", h.Get)
	r.Get("/sessions/{id}/report", h.Report)
	return r
}

func TestSessionHandler_Create(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	router := newTestRouter(dispatcher, &fakeStore{})

	body := `{"project_path": "/tmp/project", "max_problems": 5}`
	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "session_id")

	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, "/tmp/project", dispatcher.dispatched[0].ProjectPath)
	assert.Equal(t, 5, dispatcher.dispatched[0].MaxProblems)
	assert.NotEmpty(t, dispatcher.dispatched[0].SessionID)
}

func TestSessionHandler_CreateRejectsEmptyTarget(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	router := newTestRouter(dispatcher, &fakeStore{})

	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, dispatcher.dispatched)
}

func TestSessionHandler_CreateQueueFull(t *testing.T) {
	dispatcher := &fakeDispatcher{err: errors.New("job queue is full")}
	router := newTestRouter(dispatcher, &fakeStore{})

	body := `{"clone_url": "https://example.com/repo.git"}`
	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSessionHandler_Get(t *testing.T) {
	store := &fakeStore{
		session: &core.WorkflowSession{
			ID:          "sess-1",
			ProjectPath: "/tmp/project",
			State:       core.SessionRunning,
			StartedAt:   time.Now().UTC(),
		},
	}
	router := newTestRouter(&fakeDispatcher{}, store)

	req := httptest.NewRequest(http.MethodGet, "/sessions/sess-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"id":"sess-1"`)
}

func TestSessionHandler_GetNotFound(t *testing.T) {
	router := newTestRouter(&fakeDispatcher{}, &fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/sessions/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionHandler_ReportEmptyList(t *testing.T) {
	store := &fakeStore{
		session: &core.WorkflowSession{ID: "sess-1", State: core.SessionCompleted},
	}
	router := newTestRouter(&fakeDispatcher{}, store)

	req := httptest.NewRequest(http.MethodGet, "/sessions/sess-1/report", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}
