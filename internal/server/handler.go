package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/housewatch/household-watch/internal/models"
)

// Constants for WebSocket timeouts
const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// StreamHandler manages WebSocket connections from meters pushing readings.
// Readings arriving on the stream go through the same fail-open Ingestor as
// the HTTP endpoint.
type StreamHandler struct {
	upgrader       websocket.Upgrader
	authToken      string
	ingestor       *Ingestor
	logger         zerolog.Logger
	activeMeters   map[string]*MeterConnection
	connToDeviceID map[string]string // maps conn.RemoteAddr().String() to the reported device ID
	allowedOrigins []string
	readWait       time.Duration
	mutex          sync.RWMutex
}

// MeterConnection represents an active meter connection
type MeterConnection struct {
	DeviceID    string
	Conn        *websocket.Conn
	LastSeen    time.Time
	ConnectedAt time.Time
}

// MeterInfo is the wire view of a connected meter.
type MeterInfo struct {
	DeviceID    string    `json:"deviceId"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastSeen    time.Time `json:"lastSeen"`
}

// NewStreamHandler creates a new WebSocket handler
func NewStreamHandler(authToken string, ingestor *Ingestor, logger zerolog.Logger, allowedOrigins ...string) *StreamHandler {
	h := &StreamHandler{
		authToken:      authToken,
		ingestor:       ingestor,
		logger:         logger,
		activeMeters:   make(map[string]*MeterConnection),
		connToDeviceID: make(map[string]string),
		allowedOrigins: allowedOrigins,
		readWait:       pongWait,
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// checkOrigin validates the incoming request's Origin against the configured allowlist
func (h *StreamHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// No Origin header means same-origin request
	if origin == "" {
		return true
	}

	if len(h.allowedOrigins) == 0 {
		h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: no allowed origins configured")
		return false
	}

	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}

	h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: origin not in allowlist")
	return false
}

// ServeHTTP handles WebSocket connection requests
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Check auth token from header, expected format: "Bearer <token>"
	token := r.Header.Get("Authorization")
	if !h.validateToken(token) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	h.handleConnection(conn)
}

// validateToken checks if the auth token is valid
func (h *StreamHandler) validateToken(authHeader string) bool {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	return strings.TrimPrefix(authHeader, "Bearer ") == h.authToken
}

// handleConnection manages a single WebSocket connection
func (h *StreamHandler) handleConnection(conn *websocket.Conn) {
	connKey := conn.RemoteAddr().String()
	meterConn := &MeterConnection{
		DeviceID:    connKey, // updated when the first heartbeat names the device
		Conn:        conn,
		LastSeen:    time.Now(),
		ConnectedAt: time.Now(),
	}

	h.mutex.Lock()
	h.activeMeters[connKey] = meterConn
	h.mutex.Unlock()

	defer conn.Close()
	defer h.removeMeter(connKey)

	conn.SetReadDeadline(time.Now().Add(h.readWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readWait))
		return nil
	})

	// Read loop. Meters keep the stream alive with app-level heartbeats, not
	// protocol pings, so the deadline is extended on every successful read.
	for {
		var msg models.Message
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(h.readWait))
		h.handleMessage(conn, connKey, &msg)
	}
}

// handleMessage processes a single message from the meter
func (h *StreamHandler) handleMessage(conn *websocket.Conn, connKey string, msg *models.Message) {
	h.logger.Debug().Str("type", string(msg.Type)).Msg("Received message")

	switch msg.Type {
	case models.MessageTypeReading:
		h.handleReading(msg)
	case models.MessageTypeBatch:
		h.handleBatch(msg)
	case models.MessageTypeHeartbeat:
		h.handleHeartbeat(connKey, msg)
	default:
		h.logger.Warn().Str("type", string(msg.Type)).Msg("Unknown message type")
	}

	h.sendAck(conn)
}

// handleReading ingests a single reading. Unmarshal failures degrade to an
// all-defaults reading: the stream is fail-open like the HTTP endpoint.
func (h *StreamHandler) handleReading(msg *models.Message) {
	var payload models.ReadingPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		h.logger.Warn().Err(err).Msg("Malformed reading payload, substituting defaults")
		payload = models.ReadingPayload{}
	}
	h.ingestor.Ingest(&payload, SourceWebsocket)
}

// handleBatch ingests a batch of readings. The batch is decoded as payloads
// so partially filled readings pick up defaults like every other path.
func (h *StreamHandler) handleBatch(msg *models.Message) {
	var batch struct {
		Readings []models.ReadingPayload `json:"readings"`
	}
	if err := msg.UnmarshalPayload(&batch); err != nil {
		h.logger.Error().Err(err).Msg("Failed to unmarshal batch")
		return
	}
	h.ingestor.IngestBatch(batch.Readings, SourceWebsocket)
	h.logger.Info().Int("count", len(batch.Readings)).Msg("Batch ingested")
}

// handleHeartbeat processes a heartbeat message
func (h *StreamHandler) handleHeartbeat(connKey string, msg *models.Message) {
	var heartbeat models.HeartbeatMessage
	if err := msg.UnmarshalPayload(&heartbeat); err != nil {
		h.logger.Error().Err(err).Msg("Failed to unmarshal heartbeat")
		return
	}

	h.mutex.Lock()
	if heartbeat.DeviceID != "" {
		if existingID, exists := h.connToDeviceID[connKey]; !exists || existingID != heartbeat.DeviceID {
			h.connToDeviceID[connKey] = heartbeat.DeviceID
			if meterConn, ok := h.activeMeters[connKey]; ok {
				meterConn.DeviceID = heartbeat.DeviceID
			}
		}
	}
	h.mutex.Unlock()

	h.updateMeterLastSeen(connKey)
	h.logger.Debug().Str("device_id", heartbeat.DeviceID).Int64("uptime", heartbeat.Uptime).Msg("Heartbeat received")
}

// sendAck sends an acknowledgment message
func (h *StreamHandler) sendAck(conn *websocket.Conn) {
	ack := models.AckMessage{Status: "ok", Timestamp: time.Now()}
	msg, err := models.NewMessage(models.MessageTypeAck, ack)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create ack message")
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send ack")
	}
}

// updateMeterLastSeen updates the last seen timestamp for a meter
func (h *StreamHandler) updateMeterLastSeen(connKey string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if meterConn, exists := h.activeMeters[connKey]; exists {
		meterConn.LastSeen = time.Now()
	}
}

// removeMeter removes a meter from the active meters map
func (h *StreamHandler) removeMeter(connKey string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	deviceID := connKey
	if realID, exists := h.connToDeviceID[connKey]; exists {
		deviceID = realID
	}
	delete(h.activeMeters, connKey)
	delete(h.connToDeviceID, connKey)
	h.logger.Info().Str("device_id", deviceID).Msg("Meter disconnected")
}

// ActiveMeters returns a list of currently connected meters
func (h *StreamHandler) ActiveMeters() []MeterInfo {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	meters := make([]MeterInfo, 0, len(h.activeMeters))
	for _, m := range h.activeMeters {
		meters = append(meters, MeterInfo{
			DeviceID:    m.DeviceID,
			ConnectedAt: m.ConnectedAt,
			LastSeen:    m.LastSeen,
		})
	}
	return meters
}
