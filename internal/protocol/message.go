// Package protocol defines the messages exchanged between the debug host and
// the agent running inside the mobile app. Every WebSocket frame carries either
// a single {type, parameter} envelope or an array of envelopes (a batch).
package protocol

import (
	"encoding/json"
	"log"

	apperrors "github.com/eclipsesource/tabris-js-cli-sub000/internal/errors"
)

// MessageType identifies the kind of message being sent over WebSocket.
// Each type has a specific parameter structure defined below.
type MessageType string

// Messages sent by the agent (device) to the host.
const (
	// MessageTypeConnect announces the device. It is the first message on
	// every newly opened socket and is never buffered.
	// Parameter: ConnectParameter
	MessageTypeConnect MessageType = "connect"

	// MessageTypeLog carries one console output line.
	// Parameter: LogParameter
	MessageTypeLog MessageType = "log"

	// MessageTypeLogRequest reports an HTTP request made by the app.
	// Parameter: LogRequestParameter
	MessageTypeLogRequest MessageType = "log-request"

	// MessageTypeStorage answers a request-storage command.
	// Parameter: StorageSnapshot
	MessageTypeStorage MessageType = "storage"

	// MessageTypeActionResponse terminates an evaluation exchange.
	// Parameter: ActionResponseParameter
	MessageTypeActionResponse MessageType = "action-response"
)

// Commands sent by the host to the agent.
const (
	// MessageTypeEvaluate asks the agent to run source text.
	// Parameter: EvaluateParameter
	MessageTypeEvaluate MessageType = "evaluate"

	// MessageTypeReloadApp asks the app to reload itself. No parameter.
	MessageTypeReloadApp MessageType = "reload-app"

	// MessageTypeToggleDevToolbar shows or hides the developer toolbar. No parameter.
	MessageTypeToggleDevToolbar MessageType = "toggle-dev-toolbar"

	// MessageTypePrintUITree asks the agent to log its widget tree. No parameter.
	MessageTypePrintUITree MessageType = "print-ui-tree"

	// MessageTypeClearStorage clears local storage (and secure storage on iOS). No parameter.
	MessageTypeClearStorage MessageType = "clear-storage"

	// MessageTypeRequestStorage asks the agent to send a storage message. No parameter.
	MessageTypeRequestStorage MessageType = "request-storage"

	// MessageTypeLoadStorage replaces the device storage with a snapshot.
	// Parameter: LoadStorageParameter
	MessageTypeLoadStorage MessageType = "load-storage"
)

// WebSocket close codes with protocol meaning.
const (
	// CloseNormal is an intentional close; the agent does not reconnect.
	CloseNormal = 1000

	// CloseSuperseded is sent to a connection whose session is no longer
	// current. The agent stops without reconnecting or reporting.
	CloseSuperseded = 4900
)

// PlatformIOS is the only platform that carries secure storage.
const PlatformIOS = "iOS"

// LogLevel classifies a log message. The host terminal styles output by level.
type LogLevel string

const (
	LevelDebug       LogLevel = "debug"
	LevelLog         LogLevel = "log"
	LevelInfo        LogLevel = "info"
	LevelWarn        LogLevel = "warn"
	LevelError       LogLevel = "error"
	LevelMessage     LogLevel = "message"
	LevelReturnValue LogLevel = "returnValue"
)

// Message is the wire envelope. Parameter is kept raw so each handler can
// decode exactly the structure it expects.
type Message struct {
	// Type identifies what kind of message this is.
	Type MessageType `json:"type"`

	// Parameter contains the message-specific data, if any.
	Parameter json.RawMessage `json:"parameter,omitempty"`
}

// ConnectParameter identifies the device behind a session.
type ConnectParameter struct {
	Platform string `json:"platform"`
	Model    string `json:"model"`
}

// LogParameter is one console output line.
type LogParameter struct {
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
}

// LogRequestParameter describes an HTTP request issued by the app.
// Status is omitted while the request is still pending.
type LogRequestParameter struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	Status int    `json:"status,omitempty"`
}

// StorageSnapshot is the serialized content of the device key-value stores.
type StorageSnapshot struct {
	Platform      string            `json:"platform"`
	LocalStorage  map[string]string `json:"localStorage"`
	SecureStorage map[string]string `json:"secureStorage,omitempty"`
}

// ActionResponseParameter ends an evaluation exchange.
type ActionResponseParameter struct {
	EnablePrompt bool `json:"enablePrompt"`
}

// EvaluateParameter carries the source text to run on the device.
type EvaluateParameter struct {
	Value string `json:"value"`
}

// LoadStorageParameter carries a snapshot and the file it was read from.
type LoadStorageParameter struct {
	Storage StorageSnapshot `json:"storage"`
	Path    string          `json:"path"`
}

// NewMessage builds a message with the given parameter. A nil parameter
// produces a message without a parameter field.
func NewMessage(t MessageType, parameter interface{}) Message {
	msg := Message{Type: t}
	if parameter == nil {
		return msg
	}
	data, err := json.Marshal(parameter)
	if err != nil {
		log.Printf("protocol: failed to marshal %s parameter: %v", t, err)
		return msg
	}
	msg.Parameter = data
	return msg
}

// Decode unmarshals the message parameter into v.
func (m Message) Decode(v interface{}) error {
	if len(m.Parameter) == 0 {
		return apperrors.InvalidPayload(string(m.Type), nil)
	}
	if err := json.Unmarshal(m.Parameter, v); err != nil {
		return apperrors.InvalidPayload(string(m.Type), err)
	}
	return nil
}

// NewConnectMessage creates a connect message.
func NewConnectMessage(platform, model string) Message {
	return NewMessage(MessageTypeConnect, ConnectParameter{Platform: platform, Model: model})
}

// NewLogMessage creates a log message with the given level.
func NewLogMessage(level LogLevel, text string) Message {
	return NewMessage(MessageTypeLog, LogParameter{Level: level, Message: text})
}

// NewLogRequestMessage creates a log-request message.
func NewLogRequestMessage(method, url string, status int) Message {
	return NewMessage(MessageTypeLogRequest, LogRequestParameter{Method: method, URL: url, Status: status})
}

// NewStorageMessage creates a storage message.
func NewStorageMessage(snapshot StorageSnapshot) Message {
	return NewMessage(MessageTypeStorage, snapshot)
}

// NewActionResponseMessage creates the message that ends an evaluation exchange.
func NewActionResponseMessage(enablePrompt bool) Message {
	return NewMessage(MessageTypeActionResponse, ActionResponseParameter{EnablePrompt: enablePrompt})
}

// NewEvaluateMessage creates an evaluate command.
func NewEvaluateMessage(source string) Message {
	return NewMessage(MessageTypeEvaluate, EvaluateParameter{Value: source})
}

// NewLoadStorageMessage creates a load-storage command.
func NewLoadStorageMessage(snapshot StorageSnapshot, path string) Message {
	return NewMessage(MessageTypeLoadStorage, LoadStorageParameter{Storage: snapshot, Path: path})
}
