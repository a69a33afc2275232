package server

import (
	"fmt"
	"log"

	apperrors "github.com/eclipsesource/tabris-js-cli-sub000/internal/errors"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/protocol"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/terminal"
)

// dispatch handles one incoming message. Messages from a connection that is
// no longer current are dropped so a stale session cannot act on the
// terminal or on pending requests.
func (s *Server) dispatch(c *Connection, msg protocol.Message) {
	if !s.isCurrent(c) {
		log.Printf("server: dropping %s from stale session %d", msg.Type, c.sessionID)
		return
	}

	switch msg.Type {
	case protocol.MessageTypeConnect:
		s.handleConnect(c, msg)
	case protocol.MessageTypeLog:
		s.handleLog(msg)
	case protocol.MessageTypeLogRequest:
		s.handleLogRequest(msg)
	case protocol.MessageTypeActionResponse:
		s.handleActionResponse(msg)
	case protocol.MessageTypeStorage:
		s.handleStorage(msg)
	default:
		log.Printf("server: %v", apperrors.New(apperrors.CodeProtocolUnknownType,
			fmt.Sprintf("unknown message type %q from session %d", msg.Type, c.sessionID)))
	}
}

func (s *Server) output() terminal.Output {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terminal
}

func (s *Server) handleConnect(c *Connection, msg protocol.Message) {
	var p protocol.ConnectParameter
	if err := msg.Decode(&p); err != nil {
		log.Printf("server: %v", err)
		return
	}
	c.setDevice(p)

	s.mu.RLock()
	journal := s.journal
	s.mu.RUnlock()
	if journal != nil {
		if err := journal.RecordDevice(s.serverID, c.sessionID, p.Platform, p.Model); err != nil {
			log.Printf("server: journal device failed: %v", err)
		}
	}

	s.output().Info(fmt.Sprintf("%s connected", c.describe()))
}

func (s *Server) handleLog(msg protocol.Message) {
	var p protocol.LogParameter
	if err := msg.Decode(&p); err != nil {
		log.Printf("server: %v", err)
		return
	}

	out := s.output()
	switch p.Level {
	case protocol.LevelDebug:
		out.Debug(p.Message)
	case protocol.LevelInfo:
		out.Info(p.Message)
	case protocol.LevelWarn:
		out.Warn(p.Message)
	case protocol.LevelError:
		out.Error(p.Message)
	case protocol.LevelMessage:
		out.Message(p.Message)
	case protocol.LevelReturnValue:
		out.ReturnValue(p.Message)
	default:
		out.Log(p.Message)
	}
}

func (s *Server) handleLogRequest(msg protocol.Message) {
	var p protocol.LogRequestParameter
	if err := msg.Decode(&p); err != nil {
		log.Printf("server: %v", err)
		return
	}
	line := fmt.Sprintf("%s %s", p.Method, p.URL)
	if p.Status != 0 {
		line = fmt.Sprintf("%s %d", line, p.Status)
	}
	s.output().Debug(line)
}

func (s *Server) handleActionResponse(msg protocol.Message) {
	var p protocol.ActionResponseParameter
	if err := msg.Decode(&p); err != nil {
		log.Printf("server: %v", err)
		return
	}
	if !p.EnablePrompt {
		return
	}

	s.mu.RLock()
	handler := s.promptHandler
	s.mu.RUnlock()
	if handler == nil {
		log.Printf("server: action-response received but no prompt handler set")
		return
	}
	handler()
}

func (s *Server) handleStorage(msg protocol.Message) {
	var snapshot protocol.StorageSnapshot
	if err := msg.Decode(&snapshot); err != nil {
		log.Printf("server: %v", err)
		return
	}

	s.mu.RLock()
	handler := s.storageHandler
	s.mu.RUnlock()
	if handler == nil {
		log.Printf("server: storage received but no storage handler set")
		return
	}
	handler(snapshot)
}
