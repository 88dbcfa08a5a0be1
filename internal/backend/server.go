// Package backend is a development server that streams coaching answers
// from a language model using the frame format transport.Client reads.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/aspiro/internal/ai"
	"github.com/spigell/aspiro/internal/logger"
)

const (
	maxRequestBody  = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// ResumeSource returns stored resume files by key. storage.Store implements it.
type ResumeSource interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// Server serves the coaching endpoints.
type Server struct {
	generator ai.Generator
	resumes   ResumeSource
	verifier  TokenVerifier
	logger    *zap.Logger
}

// New creates a Server. A nil generator or resume source makes the
// dependent endpoints answer 503; a nil verifier disables authentication.
func New(generator ai.Generator, resumes ResumeSource, verifier TokenVerifier, l *zap.Logger) *Server {
	return &Server{
		generator: generator,
		resumes:   resumes,
		verifier:  verifier,
		logger:    logger.OrNop(l),
	}
}

// Handler returns the HTTP handler of all routes.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/analyze-resume", s.handleAnalyzeResume)
	api.HandleFunc("POST /api/suggest-roles", s.handleSuggestRoles)
	api.HandleFunc("POST /api/explore-path", s.handleExplorePath)
	api.HandleFunc("POST /api/chat", s.handleChat)

	var protected http.Handler = api
	if s.verifier != nil {
		protected = requireToken(s.verifier, api)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("/api/", protected)
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("backend listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}

	s.logger.Info("backend stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	model := ""
	if s.generator != nil {
		model = s.generator.Model()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "model": model})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
