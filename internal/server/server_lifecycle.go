package server

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/eclipsesource/tabris-js-cli-sub000/internal/protocol"
)

// StartAsync starts the server in a goroutine and returns any startup errors.
// The server runs until Stop is called.
//
// The returned channel receives nil if startup succeeded, or an error if
// the listener could not be created (e.g., port already in use).
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	// Create the listener first to detect port conflicts immediately.
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.createMux()}
	httpServer := s.httpServer
	s.mu.Unlock()

	go func() {
		log.Printf("server: listening on %s", ln.Addr())
		errCh <- nil
		close(errCh)

		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	return errCh
}

// Addr returns the bound address once StartAsync succeeded, otherwise the
// configured address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop closes the current connection normally (the agent does not
// reconnect) and shuts down the HTTP server.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	current := s.current
	httpServer := s.httpServer
	s.mu.Unlock()

	if current != nil {
		current.closeWith(protocol.CloseNormal, ReasonServerStopped)
		select {
		case <-current.unregistered:
		case <-time.After(stopWait):
			log.Printf("server: session %d did not close within %v", current.sessionID, stopWait)
		}
	}

	if httpServer != nil {
		return httpServer.Close()
	}
	return nil
}
