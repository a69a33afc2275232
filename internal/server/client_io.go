package server

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	// Rate limiting for incoming frames to protect the terminal from floods.
	"golang.org/x/time/rate"

	apperrors "github.com/eclipsesource/tabris-js-cli-sub000/internal/errors"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/protocol"
)

const (
	// writeWait bounds every write so a stalled peer cannot block the pump.
	writeWait = 10 * time.Second

	// maxMessageSize bounds incoming frames. Storage snapshots are the
	// largest messages.
	maxMessageSize = 4 * 1024 * 1024
)

// Connection is one accepted app socket. It is OPEN from creation until its
// done channel is closed, and never reopens; a reconnecting app gets a new
// Connection.
type Connection struct {
	conn      *websocket.Conn
	server    *Server
	sessionID int64

	// send queues outgoing messages for writePump.
	send chan protocol.Message

	// done is closed exactly once when the connection shuts down.
	done     chan struct{}
	sendOnce sync.Once

	// unregistered is closed once the server forgot the connection.
	unregistered chan struct{}

	// mu guards the fields below.
	mu        sync.Mutex
	closeCode int
	reason    string
	device    protocol.ConnectParameter

	// alive is set by the pong handler and cleared by each heartbeat tick.
	alive      atomic.Bool
	lastPongAt atomic.Int64

	limiter *rate.Limiter
}

func newConnection(s *Server, conn *websocket.Conn, sessionID int64) *Connection {
	s.mu.RLock()
	limit := rate.NewLimiter(rate.Limit(s.incomingRate), s.incomingBurst)
	s.mu.RUnlock()

	c := &Connection{
		conn:         conn,
		server:       s,
		sessionID:    sessionID,
		send:         make(chan protocol.Message, channelBufferSize),
		done:         make(chan struct{}),
		unregistered: make(chan struct{}),
		closeCode:    protocol.CloseNormal,
		reason:       ReasonClosed,
		limiter:      limit,
	}
	c.alive.Store(true)
	c.lastPongAt.Store(time.Now().UnixNano())
	return c
}

// Device returns the metadata announced by the connect message.
func (c *Connection) Device() protocol.ConnectParameter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

func (c *Connection) setDevice(d protocol.ConnectParameter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.device = d
}

// Reason returns why the connection closed (ReasonClosed while open).
func (c *Connection) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Closed reports whether the connection has left the OPEN state.
func (c *Connection) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Send queues a message for delivery. It returns false if the connection is
// closed or its buffer is full; it never blocks.
func (c *Connection) Send(msg protocol.Message) bool {
	if c.Closed() {
		return false
	}
	select {
	case <-c.done:
		return false
	case c.send <- msg:
		return true
	default:
		log.Printf("server: %v", apperrors.New(apperrors.CodeServerSendFailed,
			fmt.Sprintf("session %d send buffer full, dropping %s", c.sessionID, msg.Type)))
		return false
	}
}

// closeSend signals the pumps to shut down exactly once.
// Safe to call multiple times from different goroutines.
func (c *Connection) closeSend() {
	c.sendOnce.Do(func() {
		close(c.done)
	})
}

// closeWith closes the connection with the given close code. The close frame
// is written by writePump.
func (c *Connection) closeWith(code int, reason string) {
	c.setClose(code, reason)
	c.closeSend()
}

func (c *Connection) setClose(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Closed() {
		return
	}
	c.closeCode = code
	c.reason = reason
}

// reject closes a connection that was never admitted. The superseded code
// makes a stale agent stop instead of retrying.
func (c *Connection) reject() {
	c.closeSend()
	msg := websocket.FormatCloseMessage(protocol.CloseSuperseded, "session superseded")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.conn.Close()
}

func (c *Connection) describe() string {
	d := c.Device()
	if d.Platform == "" && d.Model == "" {
		return fmt.Sprintf("Session %d", c.sessionID)
	}
	return fmt.Sprintf("%s device %q", d.Platform, d.Model)
}

// writePump sends queued messages and owns the heartbeat: a ping every
// interval, and a close when a ping is still unanswered at the next tick.
// All messages that are queued when a write starts go out together as one
// array frame.
func (c *Connection) writePump() {
	c.server.mu.RLock()
	interval := c.server.heartbeatInterval
	c.server.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		c.closeSend()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// Shutdown signaled; send close frame and exit.
			c.mu.Lock()
			code := c.closeCode
			c.mu.Unlock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
			return

		case msg := <-c.send:
			batch := []protocol.Message{msg}
		drain:
			for {
				select {
				case next := <-c.send:
					batch = append(batch, next)
				default:
					break drain
				}
			}

			data, err := protocol.EncodeFrame(batch)
			if err != nil {
				log.Printf("server: failed to encode frame: %v", err)
				continue
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("server: session %d write error: %v", c.sessionID, err)
				c.setClose(websocket.CloseAbnormalClosure, ReasonWriteFailed)
				return
			}

		case <-ticker.C:
			// An unanswered ping means no pong for up to two intervals.
			if !c.alive.Swap(false) {
				lastPong := time.Unix(0, c.lastPongAt.Load())
				log.Printf("server: %v", apperrors.New(apperrors.CodeServerHeartbeatTimeout,
					fmt.Sprintf("session %d: no pong since %v", c.sessionID, time.Since(lastPong).Round(time.Millisecond))))
				c.setClose(websocket.CloseAbnormalClosure, ReasonHeartbeatTimeout)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.setClose(websocket.CloseAbnormalClosure, ReasonWriteFailed)
				return
			}
		}
	}
}

// readPump reads frames until the socket fails and dispatches every message
// on this goroutine, so handlers for one connection never run concurrently.
func (c *Connection) readPump() {
	defer c.server.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		c.lastPongAt.Store(time.Now().UnixNano())
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				log.Printf("server: session %d read error: %v", c.sessionID, err)
			}
			return
		}

		if !c.limiter.Allow() {
			log.Printf("server: session %d rate limited, dropping frame", c.sessionID)
			continue
		}

		msgs, err := protocol.DecodeFrame(data)
		if err != nil {
			log.Printf("server: session %d: %v", c.sessionID, err)
			continue
		}
		for _, msg := range msgs {
			c.server.dispatch(c, msg)
		}
	}
}
