package server

import (
	"time"

	"github.com/housewatch/household-watch/internal/models"
	"github.com/housewatch/household-watch/internal/storage"
)

// HistoricalStore defines the persisted-reading queries the API needs.
// storage.SQLiteStore implements this interface.
type HistoricalStore interface {
	// GetReadingsSince returns readings with timestamp >= since, oldest first.
	GetReadingsSince(since time.Time, limit int) ([]*models.Reading, error)

	// GetLatestReading returns the most recent persisted reading, nil if none.
	GetLatestReading() (*models.Reading, error)

	// GetStorageStats returns database statistics.
	GetStorageStats() (*storage.StorageStats, error)
}

// ReadingWriter persists readings off the request path.
// storage.DBWriter implements this interface.
type ReadingWriter interface {
	// Write queues a reading; false means it was dropped.
	Write(reading *models.Reading) bool
}

// MeterRegistry reports meters currently connected to the stream.
// StreamHandler implements this interface.
type MeterRegistry interface {
	ActiveMeters() []MeterInfo
}
