package server

import (
	"time"

	"github.com/eclipsesource/tabris-js-cli-sub000/internal/terminal"
)

// SetTerminal sets the output that receives device logs and connection
// notices. A nil output discards everything.
func (s *Server) SetTerminal(out terminal.Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out == nil {
		out = terminal.Discard
	}
	s.terminal = out
}

// SetPromptHandler sets the callback that re-enables the console prompt.
func (s *Server) SetPromptHandler(handler PromptHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promptHandler = handler
}

// SetStorageHandler sets the callback that receives storage snapshots.
func (s *Server) SetStorageHandler(handler StorageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storageHandler = handler
}

// SetSessionIssuedHandler sets the callback for newly issued session ids.
func (s *Server) SetSessionIssuedHandler(handler SessionIssuedHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionIssued = handler
}

// SetSessionJournal sets the recorder for session lifetimes.
func (s *Server) SetSessionJournal(journal SessionJournal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = journal
}

// SetHeartbeatInterval changes the ping interval for connections admitted
// afterwards. Non-positive values restore the default.
func (s *Server) SetHeartbeatInterval(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	s.heartbeatInterval = interval
}

// SetIncomingRateLimit changes the per-connection frame limit for
// connections admitted afterwards.
func (s *Server) SetIncomingRateLimit(framesPerSecond float64, burst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incomingRate = framesPerSecond
	s.incomingBurst = burst
}
