package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	// gorilla/websocket provides the WebSocket protocol implementation,
	// including ping/pong control frames and close codes.
	"github.com/gorilla/websocket"

	"github.com/eclipsesource/tabris-js-cli-sub000/internal/protocol"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/terminal"
)

// channelBufferSize is the buffer size of each connection's send channel.
// The write pump drains it into batched frames, so a burst of commands
// rarely fills it.
const channelBufferSize = 256

// DefaultHeartbeatInterval is the ping interval used when none is configured.
const DefaultHeartbeatInterval = 5 * time.Second

// stopWait bounds how long Stop waits for the current connection to close.
const stopWait = 2 * time.Second

// Default limits for incoming frames per connection. The agent batches its
// output into at most one frame per flush window, so these only bite on a
// misbehaving client.
const (
	defaultIncomingRate  = 200
	defaultIncomingBurst = 50
)

// Close reasons recorded in the session journal.
const (
	ReasonClosed           = "closed"
	ReasonSuperseded       = "superseded"
	ReasonHeartbeatTimeout = "heartbeat_timeout"
	ReasonWriteFailed      = "write_failed"
	ReasonServerStopped    = "server_stopped"
)

// PromptHandler is called when the console may accept input again: after
// the device answered an evaluation with an enabling action-response, or
// when the current connection was lost.
type PromptHandler func()

// SessionIssuedHandler is called with every newly issued session id.
type SessionIssuedHandler func(sessionID int64)

// StorageHandler receives the snapshot carried by a storage message.
type StorageHandler func(snapshot protocol.StorageSnapshot)

// SessionJournal records the lifetime of admitted sessions.
// Implementations must not block for long; they are called from
// connection goroutines.
type SessionJournal interface {
	RecordOpen(serverID string, sessionID int64, at time.Time) error
	RecordDevice(serverID string, sessionID int64, platform, model string) error
	RecordClose(serverID string, sessionID int64, reason string, at time.Time) error
}

// Server is the session registry of the debug host. It accepts WebSocket
// connections from the app, admits only the most recently issued session,
// routes commands to the current connection and dispatches incoming
// messages to the terminal and registered handlers.
type Server struct {
	// addr is the address to listen on (e.g., "0.0.0.0:8080")
	addr string

	// serverID identifies this host process. Connections from an app that was
	// served by a previous process carry a different id and are rejected.
	serverID string

	// upgrader converts HTTP connections to WebSocket connections.
	// Any origin is accepted; the app is not served from a browser origin.
	upgrader websocket.Upgrader

	// mu protects all fields below.
	mu sync.RWMutex

	// sessionID is the most recently issued session id. Only a connection
	// presenting this id is admitted.
	sessionID int64

	// current is the single authoritative connection, or nil.
	current *Connection

	// stopped indicates whether the server has been stopped.
	stopped bool

	// httpServer is the underlying HTTP server for graceful shutdown.
	httpServer *http.Server

	// listener is set by StartAsync; it carries the bound address when the
	// configured port is 0.
	listener net.Listener

	heartbeatInterval time.Duration
	incomingRate      float64
	incomingBurst     int

	// terminal receives everything the device prints.
	terminal terminal.Output

	// promptHandler is called to re-enable the console prompt.
	// If nil, action-responses are logged but not processed.
	promptHandler PromptHandler

	// storageHandler resolves pending storage requests.
	// If nil, storage messages are logged and dropped.
	storageHandler StorageHandler

	// journal records session lifetimes. May be nil.
	journal SessionJournal

	// sessionIssued is notified by GetNewSessionID. May be nil.
	sessionIssued SessionIssuedHandler
}
