package protocol

import (
	"strings"
	"testing"

	apperrors "github.com/eclipsesource/tabris-js-cli-sub000/internal/errors"
)

func TestDecodeFrame_SingleMessage(t *testing.T) {
	msgs, err := DecodeFrame([]byte(`{"type":"connect","parameter":{"platform":"Android","model":"Pixel 8"}}`))
	if err != nil {
		t.Fatalf("DecodeFrame() error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Type != MessageTypeConnect {
		t.Fatalf("expected connect, got %s", msgs[0].Type)
	}

	var p ConnectParameter
	if err := msgs[0].Decode(&p); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if p.Platform != "Android" || p.Model != "Pixel 8" {
		t.Errorf("unexpected parameter: %+v", p)
	}
}

func TestDecodeFrame_BatchPreservesOrder(t *testing.T) {
	frame := `[
		{"type":"log","parameter":{"level":"log","message":"one"}},
		{"type":"log","parameter":{"level":"warn","message":"two"}},
		{"type":"action-response","parameter":{"enablePrompt":true}}
	]`
	msgs, err := DecodeFrame([]byte(frame))
	if err != nil {
		t.Fatalf("DecodeFrame() error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}

	var first, second LogParameter
	msgs[0].Decode(&first)
	msgs[1].Decode(&second)
	if first.Message != "one" || second.Message != "two" || second.Level != LevelWarn {
		t.Errorf("unexpected order or content: %+v %+v", first, second)
	}
	if msgs[2].Type != MessageTypeActionResponse {
		t.Errorf("expected action-response last, got %s", msgs[2].Type)
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"empty", ""},
		{"not json", "hello"},
		{"truncated", `{"type":"log"`},
		{"missing type", `{"parameter":{}}`},
		{"batch with untyped entry", `[{"type":"log"},{}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(tt.frame))
			if err == nil {
				t.Fatal("expected error")
			}
			if !apperrors.IsCode(err, apperrors.CodeProtocolInvalidFrame) {
				t.Errorf("expected invalid_frame code, got %q", apperrors.GetCode(err))
			}
		})
	}
}

func TestEncodeFrame(t *testing.T) {
	single, err := EncodeFrame([]Message{NewMessage(MessageTypeReloadApp, nil)})
	if err != nil {
		t.Fatalf("EncodeFrame() error: %v", err)
	}
	if string(single) != `{"type":"reload-app"}` {
		t.Errorf("single frame = %s", single)
	}

	batch, err := EncodeFrame([]Message{
		NewLogMessage(LevelInfo, "a"),
		NewLogMessage(LevelInfo, "b"),
	})
	if err != nil {
		t.Fatalf("EncodeFrame() error: %v", err)
	}
	if !strings.HasPrefix(string(batch), "[") {
		t.Errorf("batch frame should be an array: %s", batch)
	}

	if _, err := EncodeFrame(nil); err == nil {
		t.Error("expected error for empty frame")
	}
}

func TestDecode_MissingParameter(t *testing.T) {
	msg := NewMessage(MessageTypeEvaluate, nil)
	var p EvaluateParameter
	err := msg.Decode(&p)
	if !apperrors.IsCode(err, apperrors.CodeProtocolInvalidPayload) {
		t.Fatalf("expected invalid_payload, got %v", err)
	}
}
