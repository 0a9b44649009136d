package server

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/housewatch/household-watch/internal/models"
)

// Ingest sources, used as metric labels.
const (
	SourceHTTP      = "http"
	SourceWebsocket = "websocket"
	SourceKafka     = "kafka"
)

// Ingestor is the single fail-open ingest path shared by the HTTP endpoint,
// the WebSocket stream and the Kafka bridge. Missing payload fields degrade
// to defaults, the server assigns the timestamp, the reading is queued for
// append-only persistence and unconditionally swapped into the latest cache.
type Ingestor struct {
	writer ReadingWriter
	latest *LatestCache
	logger zerolog.Logger
}

// NewIngestor creates an ingestor writing through the given writer and cache.
func NewIngestor(writer ReadingWriter, latest *LatestCache, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		writer: writer,
		latest: latest,
		logger: logger,
	}
}

// Ingest accepts one payload and returns the stored reading, stamped with
// the server time. It never rejects: a meter that sends garbage still gets
// its fields defaulted and stored.
func (i *Ingestor) Ingest(payload *models.ReadingPayload, source string) *models.Reading {
	reading := payload.Reading()
	reading.Timestamp = time.Now()

	if !i.writer.Write(reading) {
		readingsDroppedTotal.Inc()
	}
	i.latest.Set(reading)
	readingsIngestedTotal.WithLabelValues(source).Inc()

	i.logger.Info().
		Str("device_id", reading.DeviceID).
		Str("source", source).
		Float64("power", reading.Power).
		Float64("energy", reading.Energy).
		Str("status", string(reading.DeviceStatus)).
		Msg("Reading ingested")

	return reading
}

// IngestBatch runs a slice of payloads through the same path.
func (i *Ingestor) IngestBatch(payloads []models.ReadingPayload, source string) {
	for idx := range payloads {
		i.Ingest(&payloads[idx], source)
	}
}
