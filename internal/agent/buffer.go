package agent

import (
	"fmt"
	"log"
	"time"

	apperrors "github.com/eclipsesource/tabris-js-cli-sub000/internal/errors"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/protocol"
)

// Log sends a log-level message to the host.
func (a *Agent) Log(text string) { a.Print(protocol.LevelLog, text) }

// Info sends an info-level message to the host.
func (a *Agent) Info(text string) { a.Print(protocol.LevelInfo, text) }

// Warn sends a warn-level message to the host.
func (a *Agent) Warn(text string) { a.Print(protocol.LevelWarn, text) }

// Error sends an error-level message to the host.
func (a *Agent) Error(text string) { a.Print(protocol.LevelError, text) }

// Debug sends a debug-level message to the host.
func (a *Agent) Debug(text string) { a.Print(protocol.LevelDebug, text) }

// Message sends a notice about the debug session itself.
func (a *Agent) Message(text string) { a.Print(protocol.LevelMessage, text) }

// ReturnValue sends the formatted result of an evaluation.
func (a *Agent) ReturnValue(text string) { a.Print(protocol.LevelReturnValue, text) }

// LogRequest reports an HTTP request made by the app. A zero status means
// the request has not completed.
func (a *Agent) LogRequest(method, url string, status int) {
	a.enqueue(protocol.NewLogRequestMessage(method, url, status))
}

// Print sends text at the given level. It has the shape of
// evaluate.ConsoleFunc, so a runtime's console can be bound to it.
func (a *Agent) Print(level protocol.LogLevel, text string) {
	a.enqueue(protocol.NewLogMessage(level, text))
}

// enqueue appends msg to the buffer and starts the flush window unless one
// is already pending. Messages queued within one window leave as one frame.
func (a *Agent) enqueue(msg protocol.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateDisposed {
		log.Printf("agent: %v", apperrors.New(apperrors.CodeAgentDisposed, fmt.Sprintf("dropping %s", msg.Type)))
		return
	}
	a.buffer = append(a.buffer, msg)
	if a.flushTimer == nil {
		a.flushTimer = time.AfterFunc(a.opts.FlushInterval, a.flush)
	}
}

func (a *Agent) scheduleFlush() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateDisposed || a.flushTimer != nil {
		return
	}
	a.flushTimer = time.AfterFunc(a.opts.FlushInterval, a.flush)
}

// flush sends the whole buffer as one frame. On success the sent prefix is
// removed; on failure the buffer is kept for the next open connection.
func (a *Agent) flush() {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.mu.Lock()
	a.flushTimer = nil
	if a.state != StateOpen || a.conn == nil || len(a.buffer) == 0 {
		a.mu.Unlock()
		return
	}
	batch := make([]protocol.Message, len(a.buffer))
	copy(batch, a.buffer)
	conn := a.conn
	a.mu.Unlock()

	data, err := protocol.EncodeFrame(batch)
	if err != nil {
		log.Printf("agent: %v", err)
		return
	}
	if err := a.write(conn, data); err != nil {
		log.Printf("agent: flush of %d messages failed: %v", len(batch), err)
		return
	}

	a.mu.Lock()
	if len(a.buffer) >= len(batch) {
		a.buffer = a.buffer[len(batch):]
	}
	a.mu.Unlock()
}
