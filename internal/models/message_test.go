package models

import (
	"encoding/json"
	"testing"
)

func TestNewMessage(t *testing.T) {
	reading := NewReading("ESP32_001", 230, 10, 2.3, 1.5)

	msg, err := NewMessage(MessageTypeReading, reading)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	if msg.Type != MessageTypeReading {
		t.Errorf("Type = %v, want %v", msg.Type, MessageTypeReading)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if len(msg.Payload) == 0 {
		t.Error("Payload should not be empty")
	}
}

func TestMessage_UnmarshalPayload_Reading(t *testing.T) {
	original := NewReading("ESP32_001", 230, 10, 2.3, 1.5)

	msg, err := NewMessage(MessageTypeReading, original)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	var decoded Reading
	if err := msg.UnmarshalPayload(&decoded); err != nil {
		t.Fatalf("UnmarshalPayload failed: %v", err)
	}

	if decoded.DeviceID != original.DeviceID {
		t.Errorf("DeviceID = %q, want %q", decoded.DeviceID, original.DeviceID)
	}
	if decoded.Power != original.Power {
		t.Errorf("Power = %v, want %v", decoded.Power, original.Power)
	}
}

func TestMessage_UnmarshalPayload_Batch(t *testing.T) {
	batch := BatchMessage{
		Readings: []Reading{
			*NewReading("ESP32_001", 230, 10, 2.3, 1.0),
			*NewReading("ESP32_001", 230, 11, 2.5, 1.1),
		},
		Count: 2,
	}

	msg, err := NewMessage(MessageTypeBatch, batch)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	var decoded BatchMessage
	if err := msg.UnmarshalPayload(&decoded); err != nil {
		t.Fatalf("UnmarshalPayload failed: %v", err)
	}

	if decoded.Count != 2 || len(decoded.Readings) != 2 {
		t.Errorf("Batch = %d readings count %d, want 2/2", len(decoded.Readings), decoded.Count)
	}
}

// A batch payload decodes into pointer-field payloads too, since the
// fail-open ingest path reads it that way.
func TestMessage_BatchDecodesAsPayloads(t *testing.T) {
	batch := BatchMessage{
		Readings: []Reading{*NewReading("ESP32_001", 230, 10, 2.3, 1.0)},
		Count:    1,
	}

	msg, err := NewMessage(MessageTypeBatch, batch)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	var view struct {
		Readings []ReadingPayload `json:"readings"`
	}
	if err := msg.UnmarshalPayload(&view); err != nil {
		t.Fatalf("UnmarshalPayload failed: %v", err)
	}

	if len(view.Readings) != 1 {
		t.Fatalf("Got %d payloads, want 1", len(view.Readings))
	}
	if view.Readings[0].Power == nil || *view.Readings[0].Power != 2.3 {
		t.Errorf("Power pointer = %v, want 2.3", view.Readings[0].Power)
	}
}

func TestMessage_UnmarshalPayload_Heartbeat(t *testing.T) {
	hb := HeartbeatMessage{DeviceID: "ESP32_001", Uptime: 3600, BufferSize: 12}

	msg, err := NewMessage(MessageTypeHeartbeat, hb)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	var decoded HeartbeatMessage
	if err := msg.UnmarshalPayload(&decoded); err != nil {
		t.Fatalf("UnmarshalPayload failed: %v", err)
	}

	if decoded != hb {
		t.Errorf("Heartbeat = %+v, want %+v", decoded, hb)
	}
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	original, err := NewMessage(MessageTypeError, ErrorMessage{Code: "bad_payload", Message: "unreadable"})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Type != MessageTypeError {
		t.Errorf("Type = %v, want %v", decoded.Type, MessageTypeError)
	}

	var errMsg ErrorMessage
	if err := decoded.UnmarshalPayload(&errMsg); err != nil {
		t.Fatalf("UnmarshalPayload failed: %v", err)
	}
	if errMsg.Code != "bad_payload" {
		t.Errorf("Code = %q, want %q", errMsg.Code, "bad_payload")
	}
}
