package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/housewatch/household-watch/internal/cache"
	"github.com/housewatch/household-watch/internal/meter"
	"github.com/housewatch/household-watch/internal/models"
	"github.com/housewatch/household-watch/internal/stats"
)

// APIHandler handles HTTP API requests for the dashboard
type APIHandler struct {
	store      HistoricalStore
	ingestor   *Ingestor
	latest     *LatestCache
	session    *meter.Session
	meters     MeterRegistry
	statsCache *cache.RedisClient
	statsTTL   time.Duration
	version    string
	logger     zerolog.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(store HistoricalStore, ingestor *Ingestor, latest *LatestCache, session *meter.Session, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		store:    store,
		ingestor: ingestor,
		latest:   latest,
		session:  session,
		logger:   logger,
	}
}

// SetStatsCache enables serving /api/energy/stats from redis for ttl.
func (api *APIHandler) SetStatsCache(c *cache.RedisClient, ttl time.Duration) {
	api.statsCache = c
	api.statsTTL = ttl
}

// SetMeterRegistry enables listing connected meter streams.
func (api *APIHandler) SetMeterRegistry(m MeterRegistry) {
	api.meters = m
}

// SetVersion includes the build version in health responses.
func (api *APIHandler) SetVersion(v string) {
	api.version = v
}

// apiResponse is the JSON envelope shared by all endpoints.
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// sensorAck acknowledges an ingested reading with the server timestamp.
type sensorAck struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// latestData is a reading plus the connected flag the dashboard keys off.
type latestData struct {
	models.Reading
	Connected bool `json:"connected"`
}

// zeroReading is the empty-store response: all-zero fields apart from the
// nominal grid frequency, connected=false.
type zeroReading struct {
	Voltage     float64 `json:"voltage"`
	Current     float64 `json:"current"`
	Power       float64 `json:"power"`
	Energy      float64 `json:"energy"`
	Frequency   float64 `json:"frequency"`
	PowerFactor float64 `json:"powerFactor"`
	Connected   bool    `json:"connected"`
}

// meterStatus reports the demo session state for the dashboard.
type meterStatus struct {
	Streaming bool           `json:"streaming"`
	Session   meter.Snapshot `json:"session"`
}

// healthInfo reports liveness plus storage and latest-reading state.
type healthInfo struct {
	Status        string    `json:"status"`
	Version       string    `json:"version,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Database      string    `json:"database"`
	LatestReading string    `json:"latestReading"`
}

// activeMetersData lists connected meter streams.
type activeMetersData struct {
	Meters []MeterInfo `json:"meters"`
	Count  int         `json:"count"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HandleSensorData ingests one pushed reading. Ingestion is fail-open: a
// malformed body degrades to an all-defaults reading instead of an error, so
// a flaky meter never loses its slot in the history.
func (api *APIHandler) HandleSensorData(w http.ResponseWriter, r *http.Request) {
	var payload models.ReadingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.logger.Warn().Err(err).Msg("Malformed sensor payload, substituting defaults")
		payload = models.ReadingPayload{}
	}

	reading := api.ingestor.Ingest(&payload, SourceHTTP)

	writeJSON(w, http.StatusOK, sensorAck{
		Success:   true,
		Message:   "Data received successfully",
		Timestamp: reading.Timestamp,
	})
}

// HandleLatest returns the cached latest reading, falling back to the newest
// persisted one, falling back to a zero payload with connected=false.
func (api *APIHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	reading := api.latest.Get()
	if reading == nil {
		var err error
		reading, err = api.store.GetLatestReading()
		if err != nil {
			api.logger.Error().Err(err).Msg("Failed to query latest reading")
			writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Message: "Failed to load latest reading"})
			return
		}
	}

	if reading == nil {
		writeJSON(w, http.StatusOK, apiResponse{
			Success: true,
			Data:    zeroReading{Frequency: models.DefaultFrequency},
		})
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data:    latestData{Reading: *reading, Connected: true},
	})
}

// HandleEnergyStats rolls up today's and this month's readings on demand.
// Calling it twice with no new readings yields identical output.
func (api *APIHandler) HandleEnergyStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if api.statsCache != nil {
		cached, err := api.statsCache.GetEnergyStats(ctx)
		if err != nil {
			api.logger.Warn().Err(err).Msg("Stats cache read failed")
		} else if cached != nil {
			writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: cached})
			return
		}
	}

	now := time.Now()

	today, err := api.store.GetReadingsSince(stats.StartOfDay(now), 0)
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to query today's readings")
		writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Message: "Failed to compute stats"})
		return
	}

	month, err := api.store.GetReadingsSince(stats.StartOfMonth(now), 0)
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to query month's readings")
		writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Message: "Failed to compute stats"})
		return
	}

	es := stats.Compute(today, month).Stats()

	if api.statsCache != nil {
		if err := api.statsCache.SaveEnergyStats(ctx, es, api.statsTTL); err != nil {
			api.logger.Warn().Err(err).Msg("Stats cache write failed")
		}
	}

	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: es})
}

// HandleHistory returns up to 100 persisted readings from the last N hours
// (default 24), oldest first.
func (api *APIHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			hours = parsed
		}
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	readings, err := api.store.GetReadingsSince(since, 100)
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to query history")
		writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Message: "Failed to load history"})
		return
	}
	if readings == nil {
		readings = []*models.Reading{}
	}

	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: readings})
}

// HandleMeterConnect starts the in-process demo meter session. Idempotent:
// connecting an already connected session changes nothing.
func (api *APIHandler) HandleMeterConnect(w http.ResponseWriter, r *http.Request) {
	api.session.Connect()
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: meterStatus{
		Streaming: true,
		Session:   api.session.Snapshot(),
	}})
}

// HandleMeterDisconnect stops the demo session and resets its counters.
// A no-op if the session is not streaming.
func (api *APIHandler) HandleMeterDisconnect(w http.ResponseWriter, r *http.Request) {
	api.session.Disconnect()
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: meterStatus{
		Streaming: false,
		Session:   api.session.Snapshot(),
	}})
}

// HandleMeterStatus returns the demo session snapshot for the dashboard.
func (api *APIHandler) HandleMeterStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := api.session.Snapshot()
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: meterStatus{
		Streaming: snapshot.Connected,
		Session:   snapshot,
	}})
}

// HandleHealth reports liveness, probing the store and checking whether a
// latest reading has been ingested yet.
func (api *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	database := "connected"
	if _, err := api.store.GetStorageStats(); err != nil {
		api.logger.Warn().Err(err).Msg("Health check storage probe failed")
		database = "disconnected"
	}

	latestReading := "No data yet"
	if api.latest.Get() != nil {
		latestReading = "Available"
	}

	writeJSON(w, http.StatusOK, healthInfo{
		Status:        "OK",
		Version:       api.version,
		Timestamp:     time.Now(),
		Database:      database,
		LatestReading: latestReading,
	})
}

// HandleActiveMeters lists meters currently connected to the stream.
func (api *APIHandler) HandleActiveMeters(w http.ResponseWriter, r *http.Request) {
	meters := []MeterInfo{}
	if api.meters != nil {
		meters = api.meters.ActiveMeters()
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: activeMetersData{
		Meters: meters,
		Count:  len(meters),
	}})
}

// HandleStorageStats returns database statistics.
func (api *APIHandler) HandleStorageStats(w http.ResponseWriter, r *http.Request) {
	storageStats, err := api.store.GetStorageStats()
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to query storage stats")
		writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Message: "Failed to load storage stats"})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: storageStats})
}
