// Package api exposes the orchestrator over HTTP: session creation and
// execution, status polling, cancellation, and a Server-Sent Events stream
// of progress.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/draftforge/contentplan/internal/pipeline"
)

// Server is the HTTP front of a pipeline.Manager.
type Server struct {
	mgr  *pipeline.Manager
	log  zerolog.Logger
	http *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server's logger.
func WithLogger(log zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// NewServer creates an API server backed by the given manager.
func NewServer(mgr *pipeline.Manager, opts ...ServerOption) *Server {
	s := &Server{
		mgr: mgr,
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the server's route mux, for mounting in tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /v1/sessions/{id}/run", s.handleRunSession)
	mux.HandleFunc("POST /v1/sessions/{id}/cancel", s.handleCancelSession)
	mux.HandleFunc("GET /v1/sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /v1/sessions/{id}/stream", s.handleStream)

	return mux
}

// Start creates an HTTP server, registers routes, and begins serving.
// It returns immediately after starting the server in a background goroutine.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	go s.http.ListenAndServe()

	s.log.Info().Str("addr", addr).Msg("api server listening")
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// handleCreateSession creates a pending session from the posted parameters.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req pipeline.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sess, err := s.mgr.CreateSession(r.Context(), req)
	if err != nil {
		if errors.Is(err, pipeline.ErrSessionExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

// handleListSessions returns snapshots for all live sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.mgr.ListSessions(r.Context())
	if err != nil {
		s.writeManagerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": snaps})
}

// handleGetSession returns the session's current snapshot.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.mgr.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeManagerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// handleRunSession starts a pending session and returns its snapshot. It is
// idempotent for sessions already running or finished.
func (s *Server) handleRunSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.mgr.RunSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeManagerError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, snap)
}

// handleCancelSession requests cancellation. The response reports whether the
// request was accepted; it is not for sessions already terminal.
func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	accepted, err := s.mgr.CancelSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeManagerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": accepted})
}

// handleEvents returns the session's progress trace so far as a JSON array,
// for polling clients.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.mgr.Events(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeManagerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleStream streams progress as Server-Sent Events: the full trace so far
// is replayed first, then live events until the session finishes or the
// client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	replay, events, cancel, err := s.mgr.Subscribe(r.Context(), id)
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	defer cancel()

	sw := NewSSEWriter(w)
	sw.Init()

	for _, ev := range replay {
		if err := sw.WriteEvent(ev); err != nil {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				// Session reached a terminal status.
				return
			}
			if err := sw.WriteEvent(ev); err != nil {
				return
			}
		}
	}
}

// writeManagerError maps manager errors onto HTTP status codes.
func (s *Server) writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pipeline.ErrSessionExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrSessionTerminal):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
