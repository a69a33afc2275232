// Package server provides the debug server of the host: the session registry
// that admits exactly one app connection at a time, routes commands to it
// and dispatches the messages it sends.
package server

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	apperrors "github.com/eclipsesource/tabris-js-cli-sub000/internal/errors"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/protocol"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/terminal"
)

// DebugPath is the WebSocket endpoint the agent connects to.
const DebugPath = "/debug"

// NewServer creates a new debug server that will listen on the given address.
// The server is not started until StartAsync is called.
func NewServer(addr string) *Server {
	return &Server{
		addr:     addr,
		serverID: uuid.New().String(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		heartbeatInterval: DefaultHeartbeatInterval,
		incomingRate:      defaultIncomingRate,
		incomingBurst:     defaultIncomingBurst,
		terminal:          terminal.Discard,
	}
}

// ServerID returns the identity of this server process.
func (s *Server) ServerID() string {
	return s.serverID
}

// GetNewSessionID issues the next session id. It must be called once for
// every fresh app connection that is expected; from then on only a
// connection presenting this id is admitted.
func (s *Server) GetNewSessionID() int64 {
	s.mu.Lock()
	s.sessionID++
	id := s.sessionID
	issued := s.sessionIssued
	s.mu.Unlock()

	if issued != nil {
		issued(id)
	}
	return id
}

// SessionID returns the most recently issued session id (0 if none).
func (s *Server) SessionID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// ConnectURL returns the WebSocket URL an app must use to connect with the
// given session id. host is the host:port the device can reach.
func (s *Server) ConnectURL(host string, sessionID int64) string {
	q := url.Values{}
	q.Set("session", strconv.FormatInt(sessionID, 10))
	q.Set("server", s.serverID)
	u := url.URL{Scheme: "ws", Host: host, Path: DebugPath, RawQuery: q.Encode()}
	return u.String()
}

// Connected reports whether a device is currently connected.
func (s *Server) Connected() bool {
	return s.currentConnection() != nil
}

// Device returns the metadata of the connected device, if any.
func (s *Server) Device() (protocol.ConnectParameter, bool) {
	c := s.currentConnection()
	if c == nil {
		return protocol.ConnectParameter{}, false
	}
	return c.Device(), true
}

func (s *Server) currentConnection() *Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Server) isCurrent(c *Connection) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current == c
}

// Send routes a message to the current connection.
// Returns false if no device is connected.
func (s *Server) Send(t protocol.MessageType, parameter interface{}) bool {
	return s.send(protocol.NewMessage(t, parameter))
}

func (s *Server) send(msg protocol.Message) bool {
	c := s.currentConnection()
	if c == nil {
		log.Printf("server: %v, dropping %s", apperrors.NoDevice(), msg.Type)
		return false
	}
	return c.Send(msg)
}

// Evaluate asks the device to run source text.
func (s *Server) Evaluate(source string) bool {
	return s.send(protocol.NewEvaluateMessage(source))
}

// ReloadApp asks the device to reload the app.
func (s *Server) ReloadApp() bool {
	return s.send(protocol.NewMessage(protocol.MessageTypeReloadApp, nil))
}

// ToggleDevToolbar shows or hides the developer toolbar on the device.
func (s *Server) ToggleDevToolbar() bool {
	return s.send(protocol.NewMessage(protocol.MessageTypeToggleDevToolbar, nil))
}

// PrintUITree asks the device to log its widget tree.
func (s *Server) PrintUITree() bool {
	return s.send(protocol.NewMessage(protocol.MessageTypePrintUITree, nil))
}

// ClearStorage asks the device to clear its storage.
func (s *Server) ClearStorage() bool {
	return s.send(protocol.NewMessage(protocol.MessageTypeClearStorage, nil))
}

// RequestStorage asks the device to send a storage snapshot. The snapshot
// arrives later through the StorageHandler.
func (s *Server) RequestStorage() bool {
	return s.send(protocol.NewMessage(protocol.MessageTypeRequestStorage, nil))
}

// LoadStorage asks the device to replace its storage with snapshot.
// path is reported back by the device in its confirmation message.
func (s *Server) LoadStorage(snapshot protocol.StorageSnapshot, path string) bool {
	return s.send(protocol.NewLoadStorageMessage(snapshot, path))
}

// handleWebSocket upgrades an HTTP connection and applies the admission rule:
// the session and server ids in the query must match the most recently
// issued session. An admitted connection supersedes the previous one and
// releases the prompt once without a disconnect notice.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID, _ := strconv.ParseInt(q.Get("session"), 10, 64)
	serverID := q.Get("server")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: %v", apperrors.Wrap(apperrors.CodeServerUpgradeFailed, "upgrade failed", err))
		return
	}

	c := newConnection(s, conn, sessionID)

	s.mu.Lock()
	admitted := !s.stopped && s.sessionID > 0 && sessionID == s.sessionID && serverID == s.serverID
	if !admitted {
		current := s.sessionID
		s.mu.Unlock()
		log.Printf("server: %v", apperrors.SessionRejected(sessionID, current))
		c.reject()
		return
	}
	previous := s.current
	s.current = c
	journal := s.journal
	promptHandler := s.promptHandler
	s.mu.Unlock()

	if previous != nil {
		log.Printf("server: session %d superseded by session %d", previous.sessionID, sessionID)
		previous.closeWith(protocol.CloseSuperseded, ReasonSuperseded)
	}

	if journal != nil {
		if err := journal.RecordOpen(s.serverID, sessionID, time.Now()); err != nil {
			log.Printf("server: journal open failed: %v", err)
		}
	}

	log.Printf("server: session %d admitted", sessionID)

	go c.writePump()
	go c.readPump()

	// A superseded connection cannot answer a pending evaluation and its
	// unregister stays quiet, so the prompt is released here.
	if previous != nil && promptHandler != nil {
		promptHandler()
	}
}

// unregister is called exactly once per admitted connection, when its read
// pump exits. Losing the current connection prints a disconnect notice and
// releases a prompt that may be waiting for an action-response.
func (s *Server) unregister(c *Connection) {
	defer close(c.unregistered)
	c.closeSend()

	s.mu.Lock()
	wasCurrent := s.current == c
	if wasCurrent {
		s.current = nil
	}
	out := s.terminal
	promptHandler := s.promptHandler
	journal := s.journal
	s.mu.Unlock()

	reason := c.Reason()
	log.Printf("server: session %d closed (%s)", c.sessionID, reason)

	if journal != nil {
		if err := journal.RecordClose(s.serverID, c.sessionID, reason, time.Now()); err != nil {
			log.Printf("server: journal close failed: %v", err)
		}
	}

	if !wasCurrent {
		return
	}
	out.Info(fmt.Sprintf("%s disconnected", c.describe()))
	if promptHandler != nil {
		promptHandler()
	}
}
