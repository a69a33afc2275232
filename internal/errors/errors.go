// Package errors provides standardized error codes for the debug host and agent.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (protocol, server, agent, eval, snapshot)
//   - error: The specific error type within that domain
//
// Codes are stable so that terminal output and tests can match on them
// without depending on the human-readable message.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
const (
	// Protocol domain - wire framing and payload decoding
	CodeProtocolInvalidFrame   = "protocol.invalid_frame"   // Frame is not a message or message array
	CodeProtocolInvalidPayload = "protocol.invalid_payload" // Parameter does not match the message type
	CodeProtocolUnknownType    = "protocol.unknown_type"    // Message type is not handled

	// Server domain - session registry and connections
	CodeServerNoDevice         = "server.no_device"         // No live connection to route to
	CodeServerSendFailed       = "server.send_failed"       // Failed to send message
	CodeServerSessionRejected  = "server.session_rejected"  // Session id or server id is stale
	CodeServerUpgradeFailed    = "server.upgrade_failed"    // WebSocket upgrade failed
	CodeServerHeartbeatTimeout = "server.heartbeat_timeout" // Peer missed consecutive pongs

	// Agent domain - device-side connection state machine
	CodeAgentDisposed         = "agent.disposed"            // Agent was disposed
	CodeAgentReconnectExhaust = "agent.reconnect_exhausted" // Reconnect attempts exceeded

	// Eval domain - remote code evaluation
	CodeEvalThrown      = "eval.thrown"      // User code threw
	CodeEvalUnavailable = "eval.unavailable" // No evaluator configured

	// Snapshot domain - storage save/load
	CodeSnapshotNotFound         = "snapshot.not_found"         // Snapshot file does not exist
	CodeSnapshotInvalid          = "snapshot.invalid"           // Snapshot file cannot be parsed
	CodeSnapshotPlatformMismatch = "snapshot.platform_mismatch" // Snapshot recorded on another platform
	CodeSnapshotWriteFailed      = "snapshot.write_failed"      // Snapshot file could not be written

	// Config domain
	CodeConfigNotFound = "config.not_found"
	CodeConfigInvalid  = "config.invalid"

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal error
)

// CodedError wraps an error with a stable error code.
type CodedError struct {
	Code    string // Stable error code (e.g., "snapshot.not_found")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{Code: code, Message: message, Cause: cause}
}

// GetCode extracts the error code from an error.
// Falls back to CodeUnknown for errors that carry no code.
func GetCode(err error) string {
	if err == nil {
		return ""
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}
	return err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// InvalidFrame creates a "protocol.invalid_frame" error.
func InvalidFrame(reason string, cause error) *CodedError {
	return Wrap(CodeProtocolInvalidFrame, reason, cause)
}

// InvalidPayload creates a "protocol.invalid_payload" error for the given message type.
func InvalidPayload(msgType string, cause error) *CodedError {
	return Wrap(CodeProtocolInvalidPayload, fmt.Sprintf("invalid parameter for %s", msgType), cause)
}

// NoDevice creates a "server.no_device" error.
func NoDevice() *CodedError {
	return New(CodeServerNoDevice, "no device connected")
}

// SessionRejected creates a "server.session_rejected" error.
func SessionRejected(sessionID, current int64) *CodedError {
	return New(CodeServerSessionRejected,
		fmt.Sprintf("session %d rejected (current session is %d)", sessionID, current))
}

// ReconnectExhausted creates an "agent.reconnect_exhausted" error.
func ReconnectExhausted(attempts int) *CodedError {
	return New(CodeAgentReconnectExhaust,
		fmt.Sprintf("connection could not be established after %d attempts", attempts))
}

// SnapshotNotFound creates a "snapshot.not_found" error.
func SnapshotNotFound(path string) *CodedError {
	return New(CodeSnapshotNotFound, fmt.Sprintf("file %s does not exist", path))
}

// SnapshotInvalid creates a "snapshot.invalid" error.
func SnapshotInvalid(path string, cause error) *CodedError {
	return Wrap(CodeSnapshotInvalid, fmt.Sprintf("file %s is not a valid storage snapshot", path), cause)
}

// PlatformMismatch creates a "snapshot.platform_mismatch" error.
func PlatformMismatch(snapshot, device string) *CodedError {
	return New(CodeSnapshotPlatformMismatch,
		fmt.Sprintf("storage was recorded on %s and cannot be loaded on %s", snapshot, device))
}
