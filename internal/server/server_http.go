package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// SessionResponse is returned by the /session endpoint.
type SessionResponse struct {
	SessionID int64  `json:"sessionId"`
	ServerID  string `json:"serverId"`
	URL       string `json:"url"`
}

// createMux builds the HTTP routes of the debug server:
//
//	/debug    WebSocket endpoint for the agent
//	/session  issues a fresh session id (used by an app after reload)
//	/health   liveness probe
func (s *Server) createMux() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(DebugPath, s.handleWebSocket)
	r.HandleFunc("/session", s.handleNewSession).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

// handleNewSession issues a new session id. Issuing an id fences every
// older session, so only the app that asked last can connect.
func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	id := s.GetNewSessionID()
	resp := SessionResponse{
		SessionID: id,
		ServerID:  s.serverID,
		URL:       s.ConnectURL(r.Host, id),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
