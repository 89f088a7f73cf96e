package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"agency-tracker/internal/logging"
	"agency-tracker/pkg/tracker"
)

// UserHeader names the team user a request acts as. Authentication happens
// in front of this server.
const UserHeader = "X-User-ID"

// Server is the HTTP API server.
type Server struct {
	tracker *tracker.Tracker
	log     zerolog.Logger
	mux     *http.ServeMux
}

// New creates a new Server.
func New(t *tracker.Tracker, logger zerolog.Logger) *Server {
	s := &Server{
		tracker: t,
		log:     logging.Component(logger, "api"),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler. It records the acting user on the
// request context and logs each request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if uid := r.Header.Get(UserHeader); uid != "" {
		r = r.WithContext(logging.WithUserID(r.Context(), uid))
	}
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.log.Debug().Ctx(r.Context()).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", rec.status).
		Dur("took", time.Since(start)).
		Msg("request")
}

func (s *Server) routes() {
	// Views
	s.mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	s.mux.HandleFunc("GET /api/followups", s.handleFollowUps)
	s.mux.HandleFunc("GET /api/catalog", s.handleCatalog)
	s.mux.HandleFunc("GET /api/changes/stream", s.handleChangeStream)

	// Clients
	s.mux.HandleFunc("GET /api/clients", s.handleClientList)
	s.mux.HandleFunc("POST /api/clients", s.handleClientCreate)
	s.mux.HandleFunc("GET /api/clients/{id}", s.handleClientGet)

	// Projects
	s.mux.HandleFunc("GET /api/projects", s.handleProjectList)
	s.mux.HandleFunc("POST /api/projects", s.handleProjectCreate)
	s.mux.HandleFunc("GET /api/projects/{id}", s.handleProjectGet)
	s.mux.HandleFunc("PATCH /api/projects/{id}", s.handleProjectUpdate)
	s.mux.HandleFunc("DELETE /api/projects/{id}", s.handleProjectDelete)
	s.mux.HandleFunc("PUT /api/projects/{id}/services", s.handleServicesReplace)
	s.mux.HandleFunc("POST /api/projects/{id}/sync", s.handleProjectSync)

	// Tasks
	s.mux.HandleFunc("PATCH /api/tasks/{id}/status", s.handleTaskStatus)
	s.mux.HandleFunc("PATCH /api/tasks/{id}/assignee", s.handleTaskAssignee)
	s.mux.HandleFunc("POST /api/tasks/{id}/reminded", s.handleTaskReminded)

	// Team
	s.mux.HandleFunc("GET /api/team", s.handleTeamList)
	s.mux.HandleFunc("POST /api/team", s.handleTeamCreate)
	s.mux.HandleFunc("PATCH /api/team/{id}", s.handleTeamUpdate)
	s.mux.HandleFunc("DELETE /api/team/{id}", s.handleTeamDelete)

	// System
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

func actor(r *http.Request) string { return logging.UserID(r.Context()) }

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid JSON: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a tracker error to its status code. The message is passed
// through unchanged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tracker.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, tracker.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, tracker.ErrNotFound):
		status = http.StatusNotFound
	}
	ev := s.log.Warn()
	if status == http.StatusInternalServerError {
		ev = s.log.Error()
	}
	ev.Ctx(r.Context()).Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	writeError(w, status, err.Error())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}
