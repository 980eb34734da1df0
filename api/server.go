package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"chessrelay/game/registry"
	"chessrelay/game/session"
	"chessrelay/storage"
	"chessrelay/transport/websocket"
)

// Server exposes the read-only REST surface and the /ws upgrade
// endpoint. All game mutation flows through the WebSocket router; the
// REST routes exist for health checks and observability.
type Server struct {
	registry *registry.Registry
	store    *session.Store
	hub      *websocket.Hub
	archive  *storage.Archive // nil-safe, may be nil
	verifier *TokenVerifier
	router   *mux.Router
}

// NewServer creates the API server. The archive may be nil; the
// verifier may be nil to run without identity tokens.
func NewServer(reg *registry.Registry, store *session.Store, hub *websocket.Hub, archive *storage.Archive, verifier *TokenVerifier) *Server {
	s := &Server{
		registry: reg,
		store:    store,
		hub:      hub,
		archive:  archive,
		verifier: verifier,
		router:   mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"connections": s.registry.Count(),
		"sessions":    s.store.Count(),
	}

	if s.archive != nil {
		archived, err := s.archive.FetchStats(r.Context())
		if err == nil {
			stats["archive"] = archived
		}
	}

	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.store.List()

	// Most recently touched first.
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	gameID := vars["id"]

	sess, err := s.store.Get(gameID)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, sess)
}

// handleWebSocket assigns the connection id, resolves the optional
// identity token, and hands the request to the hub. The connection id
// is server-assigned; clients never supply one.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := s.verifier.UserID(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	connectionID := uuid.NewString()
	s.hub.ServeWS(w, r, connectionID, userID)
}
