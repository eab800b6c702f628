package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nstogner/vivica/pkg/chat"
	"github.com/nstogner/vivica/pkg/registry"
	"github.com/nstogner/vivica/pkg/state"
)

// Server serves the REST API and the live chat socket.
type Server struct {
	state    *state.State
	chat     *chat.Orchestrator
	registry *registry.Registry
	saveKey  func(string) error
	srv      *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithCredentialSink registers fn to be called with the new OpenRouter key
// whenever it changes through the settings endpoint.
func WithCredentialSink(fn func(string) error) Option {
	return func(s *Server) { s.saveKey = fn }
}

// New creates a new Server.
func New(st *state.State, orch *chat.Orchestrator, reg *registry.Registry, opts ...Option) *Server {
	s := &Server{
		state:    st,
		chat:     orch,
		registry: reg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Profiles
	mux.HandleFunc("GET /api/profiles", s.handleListProfiles)
	mux.HandleFunc("POST /api/profiles", s.handleCreateProfile)
	mux.HandleFunc("PUT /api/profiles/{id}", s.handleUpdateProfile)
	mux.HandleFunc("DELETE /api/profiles/{id}", s.handleDeleteProfile)
	mux.HandleFunc("POST /api/profiles/{id}/select", s.handleSelectProfile)
	mux.HandleFunc("PUT /api/profiles/{id}/memory", s.handleSetMemory)
	mux.HandleFunc("DELETE /api/profiles/{id}/memory", s.handlePurgeMemory)

	// Conversations
	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("POST /api/conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("POST /api/conversations/{id}/select", s.handleSelectConversation)
	mux.HandleFunc("PUT /api/conversations/{id}/memory-enabled", s.handleSetConversationMemory)

	// Settings
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handleUpdateSettings)

	// Models
	mux.HandleFunc("GET /api/models", s.handleListModels)

	// Memory
	mux.HandleFunc("POST /api/memory/sync", s.handleSyncMemory)

	// WebSocket
	mux.HandleFunc("/api/chat", s.handleChatWebSocket)

	return s.corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	slog.Info("Starting web server", "addr", addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	slog.Error("API Error", "status", status, "error", err)
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}

// stateError maps state sentinel errors onto HTTP statuses.
func (s *Server) stateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, state.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, err)
	case errors.Is(err, state.ErrDefaultProfile):
		s.errorResponse(w, http.StatusConflict, err)
	case errors.Is(err, state.ErrInvalid), errors.Is(err, chat.ErrNotRetryable):
		s.errorResponse(w, http.StatusBadRequest, err)
	default:
		s.errorResponse(w, http.StatusInternalServerError, err)
	}
}
