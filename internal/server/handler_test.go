package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/housewatch/household-watch/internal/models"
)

const streamTestToken = "stream-test-token"

// syncWriter is a thread-safe ReadingWriter for stream tests, where the
// handler goroutine writes while the test polls.
type syncWriter struct {
	mu      sync.Mutex
	written []*models.Reading
}

func (s *syncWriter) Write(r *models.Reading) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, r)
	return true
}

func (s *syncWriter) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

func (s *syncWriter) Last() *models.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.written) == 0 {
		return nil
	}
	return s.written[len(s.written)-1]
}

func setupStreamHandler(t *testing.T) (*StreamHandler, *syncWriter, *LatestCache, string) {
	t.Helper()

	writer := &syncWriter{}
	latest := NewLatestCache()
	logger := zerolog.Nop()
	ingestor := NewIngestor(writer, latest, logger)
	h := NewStreamHandler(streamTestToken, ingestor, logger)

	server := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return h, writer, latest, wsURL
}

func dialStream(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+streamTestToken)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("Failed to dial stream: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendStreamMessage(t *testing.T, conn *websocket.Conn, msgType models.MessageType, payload interface{}) {
	t.Helper()

	msg, err := models.NewMessage(msgType, payload)
	if err != nil {
		t.Fatalf("Failed to create message: %v", err)
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestStreamHandler_RejectsMissingToken(t *testing.T) {
	_, _, _, wsURL := setupStreamHandler(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("Dial without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 response, got %+v", resp)
	}
}

func TestStreamHandler_RejectsWrongToken(t *testing.T) {
	_, _, _, wsURL := setupStreamHandler(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer wrong-token")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("Dial with wrong token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 response, got %+v", resp)
	}
}

func TestStreamHandler_ReadingIngested(t *testing.T) {
	_, writer, latest, wsURL := setupStreamHandler(t)
	conn := dialStream(t, wsURL)

	power := 2.5
	sendStreamMessage(t, conn, models.MessageTypeReading, models.ReadingPayload{Power: &power})

	if !waitFor(t, time.Second, func() bool { return writer.Count() == 1 }) {
		t.Fatal("Reading was not persisted")
	}

	persisted := writer.Last()
	if persisted.Power != 2.5 {
		t.Errorf("Power = %v, want 2.5", persisted.Power)
	}
	if persisted.Frequency != models.DefaultFrequency {
		t.Errorf("Frequency = %v, want default %v", persisted.Frequency, models.DefaultFrequency)
	}
	if cached := latest.Get(); cached == nil || cached.Power != 2.5 {
		t.Errorf("Latest cache = %+v, want the streamed reading", cached)
	}

	// The server acks every message
	conn.SetReadDeadline(time.Now().Add(time.Second))
	var ack models.Message
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("Failed to read ack: %v", err)
	}
	if ack.Type != models.MessageTypeAck {
		t.Errorf("Response type = %v, want ack", ack.Type)
	}
}

func TestStreamHandler_BatchIngestedAsPayloads(t *testing.T) {
	_, writer, _, wsURL := setupStreamHandler(t)
	conn := dialStream(t, wsURL)

	p1, p2 := 2.0, 3.0
	batch := struct {
		Readings []models.ReadingPayload `json:"readings"`
		Count    int                     `json:"count"`
	}{
		Readings: []models.ReadingPayload{{Power: &p1}, {Power: &p2}},
		Count:    2,
	}
	sendStreamMessage(t, conn, models.MessageTypeBatch, batch)

	if !waitFor(t, time.Second, func() bool { return writer.Count() == 2 }) {
		t.Fatalf("Persisted %d readings, want 2", writer.Count())
	}

	// Partial payloads pick up ingest defaults
	if writer.Last().DeviceID != models.DefaultDeviceID {
		t.Errorf("DeviceID = %q, want default", writer.Last().DeviceID)
	}
}

func TestStreamHandler_HeartbeatRegistersMeter(t *testing.T) {
	h, _, _, wsURL := setupStreamHandler(t)
	conn := dialStream(t, wsURL)

	sendStreamMessage(t, conn, models.MessageTypeHeartbeat, models.HeartbeatMessage{
		DeviceID: "METER_9",
		Uptime:   12,
	})

	registered := waitFor(t, time.Second, func() bool {
		for _, m := range h.ActiveMeters() {
			if m.DeviceID == "METER_9" {
				return true
			}
		}
		return false
	})
	if !registered {
		t.Fatalf("ActiveMeters = %+v, want METER_9 listed", h.ActiveMeters())
	}
}

func TestStreamHandler_MeterRemovedOnClose(t *testing.T) {
	h, _, _, wsURL := setupStreamHandler(t)
	conn := dialStream(t, wsURL)

	if !waitFor(t, time.Second, func() bool { return len(h.ActiveMeters()) == 1 }) {
		t.Fatal("Meter should be tracked after connect")
	}

	conn.Close()

	if !waitFor(t, time.Second, func() bool { return len(h.ActiveMeters()) == 0 }) {
		t.Fatal("Meter should be removed after close")
	}
}

func TestStreamHandler_DeadlineExtendedByTraffic(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping timing test in short mode")
	}

	writer := &syncWriter{}
	ingestor := NewIngestor(writer, NewLatestCache(), zerolog.Nop())
	h := NewStreamHandler(streamTestToken, ingestor, zerolog.Nop())
	h.readWait = 300 * time.Millisecond

	server := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	t.Cleanup(server.Close)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	conn := dialStream(t, wsURL)

	// Heartbeats spaced under the deadline but adding up well past it. Each
	// read must extend the deadline or the stream drops mid-sequence.
	for i := 0; i < 4; i++ {
		time.Sleep(150 * time.Millisecond)
		sendStreamMessage(t, conn, models.MessageTypeHeartbeat, models.HeartbeatMessage{
			DeviceID: "METER_9",
		})
	}

	power := 4.2
	sendStreamMessage(t, conn, models.MessageTypeReading, models.ReadingPayload{Power: &power})

	if !waitFor(t, time.Second, func() bool { return writer.Count() == 1 }) {
		t.Fatal("Stream dropped before the deadline was refreshed by reads")
	}
}
