// Package agent implements the device side of the debug protocol.
//
// An Agent keeps a single WebSocket connection to the debug host. It
// reconnects a bounded number of times after abnormal closes, buffers and
// throttles outgoing log traffic, and executes commands pushed by the host.
//
// States:
//
//	CONNECTING -> OPEN                    dial succeeded
//	CONNECTING -> RECONNECT_SCHEDULED     dial failed
//	OPEN       -> RECONNECT_SCHEDULED     closed with a code other than 1000/4900
//	OPEN       -> DISPOSED                closed with 1000 or 4900
//	RECONNECT_SCHEDULED -> CONNECTING     retry delay elapsed
//	RECONNECT_SCHEDULED -> DISPOSED       retries exhausted
//	any        -> DISPOSED                Dispose
package agent

import (
	"fmt"
	"log"
	"sync"
	"time"

	// cenkalti/backoff drives the bounded constant-delay reconnect policy.
	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	apperrors "github.com/eclipsesource/tabris-js-cli-sub000/internal/errors"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/evaluate"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/protocol"
)

// Defaults for Options fields left zero.
const (
	DefaultFlushInterval        = 100 * time.Millisecond
	DefaultReconnectDelay       = 2000 * time.Millisecond
	DefaultMaxReconnectAttempts = 5
)

const writeWait = 10 * time.Second

// State is the connection state of an Agent.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateReconnectScheduled
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateReconnectScheduled:
		return "RECONNECT_SCHEDULED"
	case StateDisposed:
		return "DISPOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures an Agent.
type Options struct {
	// URL is the connect URL printed by the host, including the session and
	// server query parameters.
	URL string

	Device Device

	// App receives reload and toolbar commands. May be nil.
	App App

	// LocalStorage is required. SecureStorage is used only on iOS.
	LocalStorage  Store
	SecureStorage Store

	// Evaluator runs evaluate commands. May be nil.
	Evaluator evaluate.Evaluator

	FlushInterval        time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Notify shows a notice to the device user. It is called once when the
	// agent gives up reconnecting. May be nil.
	Notify func(text string)
}

// Agent is the device-side endpoint of the debug protocol.
type Agent struct {
	opts Options

	// mu guards the fields below.
	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	buffer         []protocol.Message
	flushTimer     *time.Timer
	reconnectTimer *time.Timer
	policy         backoff.BackOff
	attempts       int

	// flushMu serializes flushes so batches leave in order.
	flushMu sync.Mutex

	// writeMu serializes data frames on the current connection.
	writeMu sync.Mutex

	done chan struct{}
}

// New creates an agent and starts connecting immediately.
func New(opts Options) (*Agent, error) {
	if opts.URL == "" {
		return nil, apperrors.New(apperrors.CodeConfigInvalid, "agent URL is required")
	}
	if opts.LocalStorage == nil {
		opts.LocalStorage = NewMemoryStore()
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}

	a := &Agent{
		opts:   opts,
		state:  StateConnecting,
		policy: backoff.WithMaxRetries(backoff.NewConstantBackOff(opts.ReconnectDelay), uint64(opts.MaxReconnectAttempts)),
		done:   make(chan struct{}),
	}
	go a.connect()
	return a, nil
}

// State returns the current connection state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Attempts returns the number of reconnects scheduled since the last
// successful open.
func (a *Agent) Attempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts
}

// Done is closed when the agent is disposed.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// Dispose closes the connection normally and turns every further call into
// a no-op.
func (a *Agent) Dispose() {
	a.dispose("")
}

func (a *Agent) connect() {
	a.mu.Lock()
	if a.state == StateDisposed {
		a.mu.Unlock()
		return
	}
	a.state = StateConnecting
	a.reconnectTimer = nil
	a.mu.Unlock()

	conn, _, err := a.opts.Dialer.Dial(a.opts.URL, nil)
	if err != nil {
		log.Printf("agent: dial failed: %v", err)
		a.scheduleReconnect()
		return
	}

	// The connect message establishes the session context. It bypasses the
	// buffer and goes out before the connection is visible to flushes.
	connect := protocol.NewConnectMessage(a.opts.Device.Platform, a.opts.Device.Model)
	data, err := protocol.EncodeFrame([]protocol.Message{connect})
	if err == nil {
		err = a.write(conn, data)
	}
	if err != nil {
		log.Printf("agent: send connect failed: %v", err)
		conn.Close()
		a.scheduleReconnect()
		return
	}

	a.mu.Lock()
	if a.state == StateDisposed {
		a.mu.Unlock()
		conn.Close()
		return
	}
	a.conn = conn
	a.state = StateOpen
	a.attempts = 0
	a.policy.Reset()
	pending := len(a.buffer) > 0
	a.mu.Unlock()

	log.Printf("agent: connected to %s", a.opts.URL)

	if pending {
		a.scheduleFlush()
	}
	go a.readLoop(conn)
}

// scheduleReconnect moves to RECONNECT_SCHEDULED, or disposes the agent
// when the retry budget is spent.
func (a *Agent) scheduleReconnect() {
	a.mu.Lock()
	if a.state == StateDisposed {
		a.mu.Unlock()
		return
	}
	a.conn = nil
	delay := a.policy.NextBackOff()
	if delay == backoff.Stop {
		attempts := a.attempts
		a.mu.Unlock()
		err := apperrors.ReconnectExhausted(attempts)
		log.Printf("agent: %v", err)
		a.dispose(apperrors.GetMessage(err))
		return
	}
	a.attempts++
	a.state = StateReconnectScheduled
	a.reconnectTimer = time.AfterFunc(delay, a.connect)
	log.Printf("agent: reconnect %d/%d in %s", a.attempts, a.opts.MaxReconnectAttempts, delay)
	a.mu.Unlock()
}

// dispose stops all timers, drops the buffer and closes the connection.
// A non-empty notice is shown to the device user.
func (a *Agent) dispose(notice string) {
	a.mu.Lock()
	if a.state == StateDisposed {
		a.mu.Unlock()
		return
	}
	a.state = StateDisposed
	if a.flushTimer != nil {
		a.flushTimer.Stop()
		a.flushTimer = nil
	}
	if a.reconnectTimer != nil {
		a.reconnectTimer.Stop()
		a.reconnectTimer = nil
	}
	a.buffer = nil
	conn := a.conn
	a.conn = nil
	close(a.done)
	a.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(protocol.CloseNormal, "")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
	}
	if notice != "" && a.opts.Notify != nil {
		a.opts.Notify(notice)
	}
}

// readLoop executes pushed commands in order until the connection ends.
func (a *Agent) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			a.handleClose(conn, err)
			return
		}
		msgs, err := protocol.DecodeFrame(data)
		if err != nil {
			log.Printf("agent: %v", err)
			continue
		}
		for _, msg := range msgs {
			if a.State() == StateDisposed {
				return
			}
			a.handleCommand(msg)
		}
	}
}

func (a *Agent) handleClose(conn *websocket.Conn, err error) {
	a.mu.Lock()
	stale := a.conn != conn
	a.mu.Unlock()
	conn.Close()
	if stale {
		return
	}

	if websocket.IsCloseError(err, protocol.CloseNormal, protocol.CloseSuperseded) {
		log.Printf("agent: closed by host: %v", err)
		a.dispose("")
		return
	}
	log.Printf("agent: connection lost: %v", err)
	a.scheduleReconnect()
}

func (a *Agent) write(conn *websocket.Conn, data []byte) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
