package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/twlines/maslow-sub003/internal/hub"
	"github.com/twlines/maslow-sub003/internal/kanban"
	"github.com/twlines/maslow-sub003/internal/orchestrator"
	"github.com/twlines/maslow-sub003/internal/scheduler"
	"github.com/twlines/maslow-sub003/internal/store"
)

// Config is the subset of operator configuration the API surface needs.
// WorkspacePath is the only source of the "cwd" an agent spawns into;
// it is never taken from a request.
type Config struct {
	WorkspacePath string
	AuthToken     string // empty disables the Authorization check
}

// Server wires the HTTP/WebSocket surface over components A-F. One
// instance per process; Start blocks until the listener stops.
type Server struct {
	cfg    Config
	router *mux.Router
	queue  *kanban.Queue
	store  *store.Store
	orch   *orchestrator.Orchestrator
	sched  *scheduler.Scheduler
	hub    *hub.Hub
	logger zerolog.Logger

	httpServer *http.Server
}

// New builds a Server and wires its routes. Call Start to listen.
func New(cfg Config, queue *kanban.Queue, st *store.Store, orch *orchestrator.Orchestrator, sched *scheduler.Scheduler, h *hub.Hub, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		queue:  queue,
		store:  st,
		orch:   orch,
		sched:  sched,
		hub:    h,
		logger: logger,
	}
	s.router = mux.NewRouter()
	s.router.Use(securityHeadersMiddleware)
	s.router.Use(s.requireAuth)
	s.setupRoutes()
	return s
}

// Router exposes the underlying mux.Router, mainly so tests can drive
// requests through httptest.NewServer without a real listener.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/auth/token", s.handleAuthToken).Methods(http.MethodPost)
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/projects", s.handleCreateProject).Methods(http.MethodPost)
	s.router.HandleFunc("/projects", s.handleListProjects).Methods(http.MethodGet)
	s.router.HandleFunc("/projects/{id}", s.handleGetProject).Methods(http.MethodGet)

	s.router.HandleFunc("/projects/{id}/cards", s.handleCreateCard).Methods(http.MethodPost)
	s.router.HandleFunc("/projects/{id}/cards", s.handleListCards).Methods(http.MethodGet)
	s.router.HandleFunc("/projects/{id}/cards/{cid}", s.handleGetCard).Methods(http.MethodGet)
	s.router.HandleFunc("/projects/{id}/cards/{cid}", s.handleUpdateCard).Methods(http.MethodPut)
	s.router.HandleFunc("/projects/{id}/cards/{cid}/skip", s.handleSkipCard).Methods(http.MethodPost)
	s.router.HandleFunc("/projects/{id}/cards/{cid}/context", s.handleSaveContext).Methods(http.MethodPost)
	s.router.HandleFunc("/projects/{id}/cards/{cid}/move", s.handleMoveCard).Methods(http.MethodPost)
	s.router.HandleFunc("/projects/{id}/cards/{cid}/assign", s.handleAssignAgent).Methods(http.MethodPost)

	s.router.HandleFunc("/projects/{id}/documents", s.handleCreateDocument).Methods(http.MethodPost)
	s.router.HandleFunc("/projects/{id}/documents", s.handleListDocuments).Methods(http.MethodGet)
	s.router.HandleFunc("/documents/{docId}", s.handleUpdateDocument).Methods(http.MethodPut)

	s.router.HandleFunc("/projects/{id}/decisions", s.handleCreateDecision).Methods(http.MethodPost)
	s.router.HandleFunc("/projects/{id}/decisions", s.handleListDecisions).Methods(http.MethodGet)
	s.router.HandleFunc("/decisions/{decId}/revise", s.handleReviseDecision).Methods(http.MethodPost)

	s.router.HandleFunc("/projects/{id}/conversation", s.handleOpenConversation).Methods(http.MethodPost)
	s.router.HandleFunc("/conversations/{convId}/close", s.handleCloseConversation).Methods(http.MethodPost)
	s.router.HandleFunc("/conversations/{convId}/messages", s.handleAppendMessage).Methods(http.MethodPost)
	s.router.HandleFunc("/conversations/{convId}/messages", s.handleListMessages).Methods(http.MethodGet)

	s.router.HandleFunc("/projects/{id}/corrections", s.handleCreateCorrection).Methods(http.MethodPost)
	s.router.HandleFunc("/projects/{id}/corrections", s.handleListCorrections).Methods(http.MethodGet)
	s.router.HandleFunc("/corrections/{corrId}", s.handleDeactivateCorrection).Methods(http.MethodDelete)

	s.router.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	s.router.HandleFunc("/cards/{cid}/audit", s.handleCardAudit).Methods(http.MethodGet)
	s.router.HandleFunc("/projects/{id}/tokenusage", s.handleTokenUsage).Methods(http.MethodGet)

	s.router.HandleFunc("/agents/spawn", s.handleSpawnAgent).Methods(http.MethodPost)
	s.router.HandleFunc("/agents", s.handleListAgents).Methods(http.MethodGet)
	s.router.HandleFunc("/agents/{cid}", s.handleStopAgent).Methods(http.MethodDelete)
	s.router.HandleFunc("/agents/{cid}/logs", s.handleAgentLogs).Methods(http.MethodGet)

	s.router.HandleFunc("/heartbeat/submit", s.handleSubmitTaskBrief).Methods(http.MethodPost)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.hub.SubscriberCount(),
		"dropped":     s.hub.DroppedCount(),
	})
}

// handleAuthToken is a placeholder issuance endpoint: operators
// configure the shared token out of band (Config.AuthToken); this
// route only reports whether a token is required (authRequired), so
// front-ends can probe before prompting for credentials. It neither
// issues a token nor checks the caller's.
func (s *Server) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AuthToken == "" {
		respondJSON(w, http.StatusOK, map[string]any{"authRequired": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"authRequired": true})
}

// Start listens and serves on addr until the context is canceled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
