// Package httpapi exposes the feedback and chat services over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"data-sculptor/application"
	"data-sculptor/config"
	"data-sculptor/domain"
)

const maxBodyBytes = 4 << 20

// FeedbackProvider produces feedback for standalone code.
type FeedbackProvider interface {
	RequestFeedback(ctx context.Context, req application.FeedbackRequest) (domain.FeedbackSnapshot, error)
	LocalizeWarnings(ctx context.Context, req application.LocalizeRequest) ([]domain.LocalizedWarning, error)
}

// ChatResponder answers questions inside a conversation.
type ChatResponder interface {
	Reply(ctx context.Context, req application.ChatRequest) (string, error)
}

// Server wires the HTTP routes to the services.
type Server struct {
	feedback FeedbackProvider
	chat     ChatResponder
	cfg      config.ServerConfig
	mux      *http.ServeMux
}

// NewServer creates a Server. Either service may be nil; its routes then answer 503.
func NewServer(cfg config.ServerConfig, feedback FeedbackProvider, chat ChatResponder) *Server {
	s := &Server{feedback: feedback, chat: chat, cfg: cfg, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/v1/feedback", s.handleFeedback)
	s.mux.HandleFunc("POST /api/v1/localize", s.handleLocalize)
	s.mux.HandleFunc("POST /api/v1/chat", s.handleChat)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	log.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s\n", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorResponse{Detail: "internal error"}
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
		body.Detail = err.Error()
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		body.Detail = err.Error()
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		body = errorResponse{Detail: "session store unavailable, please retry", Retryable: true}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
		body = errorResponse{Detail: "request cancelled", Retryable: true}
	}
	if status >= http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, status, body)
}
