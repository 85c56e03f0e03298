// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/markb/chatlite/internal/auth"
	"github.com/markb/chatlite/internal/chat"
	"github.com/markb/chatlite/internal/hub"
	"github.com/markb/chatlite/internal/log"
	"github.com/markb/chatlite/internal/presence"
	"github.com/markb/chatlite/internal/session"
)

// maxPresenceBatch caps one presence query.
const maxPresenceBatch = 200

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins (CORS handled elsewhere)
	},
}

// FriendRecorder persists friendships. *store.Store satisfies it.
type FriendRecorder interface {
	Befriend(ctx context.Context, a, b uuid.UUID) (bool, error)
}

// Config holds everything the server routes to.
type Config struct {
	SessionDeps   session.Deps
	Presence      *presence.Store
	Verifier      *auth.Verifier
	Messages      *chat.MessageService
	Conversations *chat.ConversationService
	Friends       FriendRecorder
}

// Server is the HTTP front of chatlite: the WebSocket endpoint plus the
// JSON API for chat operations, health, stats, and presence queries.
type Server struct {
	router        *chi.Mux
	hub           *hub.Hub
	presence      *presence.Store
	verifier      *auth.Verifier
	messages      *chat.MessageService
	conversations *chat.ConversationService
	friends       FriendRecorder
	sessionDeps   session.Deps

	// HTTP server for graceful shutdown
	httpServer *http.Server
}

// New creates a server. cfg.SessionDeps.Hub must be set; it is also used
// for the stats endpoint.
func New(cfg Config) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		hub:           cfg.SessionDeps.Hub,
		presence:      cfg.Presence,
		verifier:      cfg.Verifier,
		messages:      cfg.Messages,
		conversations: cfg.Conversations,
		friends:       cfg.Friends,
		sessionDeps:   cfg.SessionDeps,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// CORS middleware for browser-based apps
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Use(log.RequestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ws", s.handleWebSocket)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))
		r.Get("/stats", s.handleStats)
		r.Post("/presence", s.handlePresence)

		// Chat routes require a valid access token
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/messages/direct", s.handleSendDirect)
			r.Get("/conversations/{conversationID}/messages", s.handleHistory)
			r.Post("/conversations/{conversationID}/messages", s.handleSendGroup)
			r.Post("/conversations/{conversationID}/seen", s.handleMarkSeen)
			r.Patch("/messages/{messageID}", s.handleEditMessage)
			r.Delete("/messages/{messageID}", s.handleDeleteMessage)
			r.Post("/groups", s.handleCreateGroup)
			r.Post("/friends", s.handleAddFriend)
		})
	})
}

// Router exposes the mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// handleWebSocket upgrades the request and starts a session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("server: websocket upgrade failed", "error", err.Error())
		return
	}

	sess := session.New(ws, s.sessionDeps)
	log.Debug("server: new session", "session_id", sess.ID(), "remote_addr", r.RemoteAddr)

	go sess.WritePump()
	go sess.ReadPump()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(s.hub.Stats())
}

type presenceRequest struct {
	UserIDs []uuid.UUID `json:"userIds"`
}

type presenceResponse struct {
	Users []presence.Info `json:"users"`
}

// handlePresence answers a batch presence query.
func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	var req presenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.UserIDs) > maxPresenceBatch {
		writeError(w, http.StatusBadRequest, "too many user ids")
		return
	}

	infos, err := s.presence.GetBatch(r.Context(), req.UserIDs)
	if err != nil {
		log.Error("server: presence batch failed", "error", err)
		writeError(w, http.StatusInternalServerError, "presence lookup failed")
		return
	}
	if infos == nil {
		infos = []presence.Info{}
	}

	json.NewEncoder(w).Encode(presenceResponse{Users: infos})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
