// Package server exposes the council engine over HTTP: analyses stream
// as server-sent events, and sessions and tools are inspectable while a
// run is in flight.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"council-trader/internal/council"
	"council-trader/internal/models"
	"council-trader/internal/store"
	"council-trader/internal/stream"
	"council-trader/internal/tools"
)

// Server wires the orchestrator, session registry, tool registry, and
// optional repository behind an http.Handler.
type Server struct {
	orchestrator *council.Orchestrator
	sessions     *council.Registry
	tools        *tools.Registry
	repo         store.Repository
	logger       zerolog.Logger
}

func New(orchestrator *council.Orchestrator, sessions *council.Registry, toolReg *tools.Registry, repo store.Repository, logger zerolog.Logger) *Server {
	return &Server{
		orchestrator: orchestrator,
		sessions:     sessions,
		tools:        toolReg,
		repo:         repo,
		logger:       logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleCancelSession)
	mux.HandleFunc("GET /api/tools", s.handleListTools)
	mux.HandleFunc("POST /api/tools/{name}", s.handleInvokeTool)
	return mux
}

// ListenAndServe blocks until the context is done or the listener
// fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type analyzeRequest struct {
	Ticker string `json:"ticker"`
	AsOf   string `json:"as_of,omitempty"`
}

// handleAnalyze runs a full session and streams its events as SSE.
// Client disconnect cancels the run cooperatively through the request
// context.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	asOf := time.Now()
	if req.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", req.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid as_of date: %v", err))
			return
		}
		asOf = parsed
	}
	subject := models.Subject{Ticker: req.Ticker, AsOf: asOf}
	if err := subject.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	reporter := stream.NewReporter()
	go func() {
		session, err := s.orchestrator.Run(r.Context(), subject, reporter)
		if err != nil || session == nil {
			return
		}
		if s.repo == nil {
			return
		}
		decision := session.Decision()
		if decision == nil {
			return
		}
		rec := store.RecordFromDecision(decision, session.Reports(), session.Warnings(), session.Ledger.Total())
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.repo.SaveAnalysis(saveCtx, rec); err != nil {
			s.logger.Error().Err(err).Str("session", session.ID).Msg("persisting analysis failed")
		}
	}()

	for ev := range reporter.Events() {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error().Err(err).Msg("encoding event failed")
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			// Client gone; the request context cancels the run.
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tools.Invoke(r.Context(), "list_sessions", nil))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	result := s.tools.Invoke(r.Context(), "get_session", map[string]any{"session_id": r.PathValue("id")})
	writeJSON(w, statusFor(result), result)
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	result := s.tools.Invoke(r.Context(), "cancel_session", map[string]any{"session_id": r.PathValue("id")})
	writeJSON(w, statusFor(result), result)
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.tools.List()})
}

func (s *Server) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	args := map[string]any{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid arguments: %v", err))
			return
		}
	}
	result := s.tools.Invoke(r.Context(), r.PathValue("name"), args)
	writeJSON(w, statusFor(result), result)
}

func statusFor(result map[string]any) int {
	if result["status"] != "error" {
		return http.StatusOK
	}
	if result["code"] == tools.CodeNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"status": "error", "error": msg})
}
