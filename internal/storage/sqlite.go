package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/housewatch/household-watch/internal/models"
)

// timeLayout is how timestamps are stored in SQLite.
const timeLayout = "2006-01-02 15:04:05"

// Store defines the interface for persisted reading storage. Readings are
// append-only: nothing ever updates a row once written.
type Store interface {
	Close() error
	Migrate() error
	InsertReading(reading *models.Reading) error
	InsertBatch(readings []*models.Reading) error
	GetReadingsSince(since time.Time, limit int) ([]*models.Reading, error)
	GetLatestReading() (*models.Reading, error)
	GetDeviceIDs() ([]string, error)
	DeleteOlderThan(days int) (int64, error)
	GetStorageStats() (*StorageStats, error)
}

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore handles persistent storage of meter readings
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// StorageStats contains information about the database
type StorageStats struct {
	TotalReadings  int64     `json:"total_readings"`
	OldestReading  time.Time `json:"oldest_reading,omitempty"`
	NewestReading  time.Time `json:"newest_reading,omitempty"`
	UniqueDevices  int       `json:"unique_devices"`
	DatabaseSizeMB float64   `json:"database_size_mb"`
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Apply performance pragmas for SQLite
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("SQLite store initialized")

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL,
		voltage REAL NOT NULL,
		current REAL NOT NULL,
		power REAL NOT NULL,
		energy REAL NOT NULL,
		frequency REAL NOT NULL,
		power_factor REAL NOT NULL,
		device_status TEXT NOT NULL,
		sensor_state INTEGER NOT NULL DEFAULT 0,
		pulse_count INTEGER NOT NULL DEFAULT 0,
		recorded_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_readings_time ON readings(recorded_at);
	CREATE INDEX IF NOT EXISTS idx_readings_device_time ON readings(device_id, recorded_at);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

const insertColumns = `device_id, voltage, current, power, energy, frequency, power_factor, device_status, sensor_state, pulse_count, recorded_at`

const selectColumns = `id, device_id, voltage, current, power, energy, frequency, power_factor, device_status, sensor_state, pulse_count, recorded_at, created_at`

// InsertReading appends a single reading.
func (s *SQLiteStore) InsertReading(reading *models.Reading) error {
	query := `INSERT INTO readings (` + insertColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		reading.DeviceID,
		reading.Voltage,
		reading.Current,
		reading.Power,
		reading.Energy,
		reading.Frequency,
		reading.PowerFactor,
		string(reading.DeviceStatus),
		reading.SensorState,
		reading.PulseCount,
		reading.Timestamp.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}

	return nil
}

// InsertBatch appends multiple readings in a single transaction.
func (s *SQLiteStore) InsertBatch(readings []*models.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO readings (` + insertColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, reading := range readings {
		_, err := stmt.Exec(
			reading.DeviceID,
			reading.Voltage,
			reading.Current,
			reading.Power,
			reading.Energy,
			reading.Frequency,
			reading.PowerFactor,
			string(reading.DeviceStatus),
			reading.SensorState,
			reading.PulseCount,
			reading.Timestamp.Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("failed to insert reading in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Int("count", len(readings)).Msg("Batch insert completed")
	return nil
}

// GetReadingsSince returns readings with recorded_at >= since, oldest first.
// The rollup depends on ascending order: it subtracts the first energy value
// from the last. A limit <= 0 means no limit.
func (s *SQLiteStore) GetReadingsSince(since time.Time, limit int) ([]*models.Reading, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM readings
		WHERE recorded_at >= ?
		ORDER BY recorded_at ASC
	`
	args := []interface{}{since.Format(timeLayout)}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	return s.scanReadings(rows)
}

// GetLatestReading returns the most recent reading across all meters, or nil
// if the store is empty.
func (s *SQLiteStore) GetLatestReading() (*models.Reading, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM readings
		ORDER BY recorded_at DESC
		LIMIT 1
	`

	row := s.db.QueryRow(query)
	reading, err := s.scanReading(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reading: %w", err)
	}

	return reading, nil
}

// GetDeviceIDs returns a list of all unique meter ids in the database
func (s *SQLiteStore) GetDeviceIDs() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT device_id FROM readings ORDER BY device_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query device IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan device ID: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return ids, nil
}

// DeleteOlderThan removes readings older than the specified number of days.
// Deletes based on recorded_at (meter timestamp), not created_at (insert time).
func (s *SQLiteStore) DeleteOlderThan(days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)

	result, err := s.db.Exec(
		"DELETE FROM readings WHERE recorded_at < ?",
		cutoff.Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old readings: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info().
		Int("days", days).
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Deleted old readings")

	return deleted, nil
}

// GetStorageStats returns statistics about the database
func (s *SQLiteStore) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	err := s.db.QueryRow("SELECT COUNT(*) FROM readings").Scan(&stats.TotalReadings)
	if err != nil {
		return nil, fmt.Errorf("failed to count readings: %w", err)
	}

	if stats.TotalReadings == 0 {
		return stats, nil
	}

	var oldestStr, newestStr string
	err = s.db.QueryRow("SELECT MIN(recorded_at), MAX(recorded_at) FROM readings").
		Scan(&oldestStr, &newestStr)
	if err != nil {
		return nil, fmt.Errorf("failed to get timestamp range: %w", err)
	}

	stats.OldestReading, _ = s.parseTimestamp(oldestStr)
	stats.NewestReading, _ = s.parseTimestamp(newestStr)

	err = s.db.QueryRow("SELECT COUNT(DISTINCT device_id) FROM readings").Scan(&stats.UniqueDevices)
	if err != nil {
		return nil, fmt.Errorf("failed to count devices: %w", err)
	}

	var pageCount, pageSize int64
	s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

// scanReading is a helper to scan a row into a Reading struct
func (s *SQLiteStore) scanReading(row interface{ Scan(...interface{}) error }) (*models.Reading, error) {
	var r models.Reading
	var id int64
	var status string
	var recordedAt, createdAt string

	err := row.Scan(&id, &r.DeviceID, &r.Voltage, &r.Current, &r.Power, &r.Energy,
		&r.Frequency, &r.PowerFactor, &status, &r.SensorState, &r.PulseCount,
		&recordedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	r.DeviceStatus = models.DeviceStatus(status)
	r.Timestamp, err = s.parseTimestamp(recordedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
	}

	return &r, nil
}

// scanReadings scans multiple rows into a slice of readings
func (s *SQLiteStore) scanReadings(rows *sql.Rows) ([]*models.Reading, error) {
	var readings []*models.Reading

	for rows.Next() {
		reading, err := s.scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return readings, nil
}

// parseTimestamp tries multiple formats to parse a SQLite timestamp
func (s *SQLiteStore) parseTimestamp(ts string) (time.Time, error) {
	formats := []string{
		timeLayout,
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.ParseInLocation(format, ts, time.Local); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", ts)
}
