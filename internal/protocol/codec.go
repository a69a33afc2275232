package protocol

import (
	"bytes"
	"encoding/json"

	apperrors "github.com/eclipsesource/tabris-js-cli-sub000/internal/errors"
)

// DecodeFrame parses one WebSocket text frame into its messages.
// A frame is either a single envelope or an array of envelopes; every
// envelope must name a type.
func DecodeFrame(data []byte) ([]Message, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, apperrors.InvalidFrame("empty frame", nil)
	}

	var msgs []Message
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, apperrors.InvalidFrame("malformed message batch", err)
		}
	} else {
		var msg Message
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return nil, apperrors.InvalidFrame("malformed message", err)
		}
		msgs = []Message{msg}
	}

	for _, msg := range msgs {
		if msg.Type == "" {
			return nil, apperrors.InvalidFrame("message without type", nil)
		}
	}
	return msgs, nil
}

// EncodeFrame serializes messages into one frame. A single message is sent
// as a plain envelope, several as an array.
func EncodeFrame(msgs []Message) ([]byte, error) {
	switch len(msgs) {
	case 0:
		return nil, apperrors.InvalidFrame("nothing to encode", nil)
	case 1:
		return json.Marshal(msgs[0])
	default:
		return json.Marshal(msgs)
	}
}
