package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/housewatch/household-watch/internal/models"
)

// DBWriter batches meter readings and persists them off the request path.
// Ingestion stays fail-open even when the disk is slow: a full queue drops
// readings rather than blocking the caller.
type DBWriter struct {
	store       Store
	logger      zerolog.Logger
	queue       chan *models.Reading
	batchSize   int
	flushPeriod time.Duration
	done        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	mu            sync.RWMutex
	totalWritten  int64
	totalBatches  int64
	totalErrors   int64
	lastWriteTime time.Time
}

// DBWriterConfig holds configuration for the async writer
type DBWriterConfig struct {
	BatchSize   int           // readings per insert batch
	FlushPeriod time.Duration // max time a partial batch may sit unwritten
	ChannelSize int           // queue depth before readings are dropped
}

// DefaultDBWriterConfig returns sensible defaults
func DefaultDBWriterConfig() DBWriterConfig {
	return DBWriterConfig{
		BatchSize:   100,
		FlushPeriod: 5 * time.Second,
		ChannelSize: 1000,
	}
}

// DBWriterStats contains statistics about the writer
type DBWriterStats struct {
	TotalWritten  int64     `json:"total_written"`
	TotalBatches  int64     `json:"total_batches"`
	TotalErrors   int64     `json:"total_errors"`
	LastWriteTime time.Time `json:"last_write_time,omitempty"`
	QueueLength   int       `json:"queue_length"`
}

// NewDBWriter creates the writer and starts its background goroutine.
// Unset config fields fall back to DefaultDBWriterConfig; a zero FlushPeriod
// would panic time.NewTicker.
func NewDBWriter(store Store, config DBWriterConfig, logger zerolog.Logger) *DBWriter {
	defaults := DefaultDBWriterConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.FlushPeriod <= 0 {
		config.FlushPeriod = defaults.FlushPeriod
	}
	if config.ChannelSize <= 0 {
		config.ChannelSize = defaults.ChannelSize
	}

	w := &DBWriter{
		store:       store,
		logger:      logger,
		queue:       make(chan *models.Reading, config.ChannelSize),
		batchSize:   config.BatchSize,
		flushPeriod: config.FlushPeriod,
		done:        make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()

	logger.Info().
		Int("batch_size", config.BatchSize).
		Dur("flush_period", config.FlushPeriod).
		Int("channel_size", config.ChannelSize).
		Msg("DBWriter started")

	return w
}

// Write queues a reading for persistence. Returns false when the queue is
// full and the reading was dropped.
func (w *DBWriter) Write(reading *models.Reading) bool {
	select {
	case w.queue <- reading:
		return true
	default:
		w.logger.Warn().Msg("DBWriter channel full, dropping reading")
		return false
	}
}

func (w *DBWriter) run() {
	defer w.wg.Done()

	pending := make([]*models.Reading, 0, w.batchSize)
	ticker := time.NewTicker(w.flushPeriod)
	defer ticker.Stop()

	for {
		select {
		case r := <-w.queue:
			pending = append(pending, r)
			if len(pending) >= w.batchSize {
				pending = w.flush(pending)
			}

		case <-ticker.C:
			pending = w.flush(pending)

		case <-w.done:
			// Drain whatever arrived before Stop, then write it out.
			for {
				select {
				case r := <-w.queue:
					pending = append(pending, r)
					continue
				default:
				}
				break
			}
			w.flush(pending)
			w.logger.Info().Msg("DBWriter stopped")
			return
		}
	}
}

// flush writes the pending batch and returns an empty slice for reuse.
func (w *DBWriter) flush(pending []*models.Reading) []*models.Reading {
	if len(pending) == 0 {
		return pending
	}

	err := w.store.InsertBatch(pending)

	w.mu.Lock()
	if err != nil {
		w.totalErrors++
		w.logger.Error().Err(err).Int("batch_size", len(pending)).Msg("Failed to write batch")
	} else {
		w.totalWritten += int64(len(pending))
		w.totalBatches++
		w.lastWriteTime = time.Now()
		w.logger.Debug().Int("count", len(pending)).Msg("Flushed batch")
	}
	w.mu.Unlock()

	return pending[:0]
}

// Stop flushes remaining readings and shuts the writer down.
func (w *DBWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
	})
}

// Stats returns current writer statistics
func (w *DBWriter) Stats() DBWriterStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return DBWriterStats{
		TotalWritten:  w.totalWritten,
		TotalBatches:  w.totalBatches,
		TotalErrors:   w.totalErrors,
		LastWriteTime: w.lastWriteTime,
		QueueLength:   len(w.queue),
	}
}
