// Package httpapi exposes workflows over HTTP: runs stream as server-sent
// events, interrupted threads resume with an authorization decision, and
// the approval inbox is listable.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/convoflow/convoflow/pkg/convoflow/approval"
	"github.com/convoflow/convoflow/pkg/convoflow/checkpoint"
	"github.com/convoflow/convoflow/pkg/convoflow/event"
	"github.com/convoflow/convoflow/pkg/convoflow/registry"
)

// Runner is the type-erased handle the HTTP layer holds per workflow.
// Engine generics stay behind this boundary.
type Runner interface {
	// Name identifies the workflow in URLs and the registry.
	Name() string

	// Start runs a new conversation on the thread, publishing step events
	// to the shared bus. Returns an error only for a failed run; an
	// interrupt is a successful pause.
	Start(ctx context.Context, threadID, message string) error

	// Resume restarts an interrupted thread with the human decision.
	Resume(ctx context.Context, threadID string, authorized bool, message string) error

	// Thread returns the thread's latest checkpoint.
	Thread(threadID string) (*checkpoint.Checkpoint, error)
}

// Server wires the HTTP surface to the workflow runners.
type Server struct {
	runners   *registry.Registry[string, Runner]
	threads   *registry.Registry[string, string] // threadID -> workflow name
	bus       event.Bus
	approvals *approval.Inbox
	logger    *slog.Logger
	router    chi.Router

	// streamTimeout bounds how long an SSE stream stays open waiting for
	// its terminal event.
	streamTimeout time.Duration
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStreamTimeout bounds SSE stream lifetime. Default 5 minutes.
func WithStreamTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.streamTimeout = d
		}
	}
}

// NewServer builds the HTTP server around a shared bus and approval inbox.
// Register workflows with Register before serving.
func NewServer(bus event.Bus, approvals *approval.Inbox, opts ...ServerOption) *Server {
	s := &Server{
		runners:       registry.New[string, Runner](),
		threads:       registry.New[string, string](),
		bus:           bus,
		approvals:     approvals,
		logger:        slog.Default(),
		streamTimeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Post("/workflows/{name}/runs", s.handleStartRun)
	r.Post("/threads/{threadID}/resume", s.handleResume)
	r.Get("/threads/{threadID}", s.handleThread)
	r.Get("/approvals", s.handleApprovals)
	r.Get("/healthz", s.handleHealth)

	s.router = r
	return s
}

// Register adds a workflow runner. Panics on a duplicate name.
func (s *Server) Register(r Runner) {
	if s.runners.Has(r.Name()) {
		panic("httpapi: duplicate workflow: " + r.Name())
	}
	s.runners.Register(r.Name(), r)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
