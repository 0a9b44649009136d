package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RetentionCleaner prunes meter readings older than the retention window so
// the readings table stays bounded on long-running installs.
type RetentionCleaner struct {
	store         Store
	logger        zerolog.Logger
	retentionDays int
	cleanupPeriod time.Duration
	done          chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup

	mu              sync.RWMutex
	totalDeleted    int64
	totalCleanups   int64
	lastCleanup     time.Time
	lastDeleteCount int64
}

// RetentionCleanerConfig holds configuration for the cleaner
type RetentionCleanerConfig struct {
	RetentionDays int           // days of readings to keep
	CleanupPeriod time.Duration // how often to prune
}

// DefaultRetentionCleanerConfig returns sensible defaults
func DefaultRetentionCleanerConfig() RetentionCleanerConfig {
	return RetentionCleanerConfig{
		RetentionDays: 90,
		CleanupPeriod: 1 * time.Hour,
	}
}

// RetentionCleanerStats contains statistics about the cleaner
type RetentionCleanerStats struct {
	TotalDeleted    int64     `json:"total_deleted"`
	TotalCleanups   int64     `json:"total_cleanups"`
	LastCleanup     time.Time `json:"last_cleanup,omitempty"`
	LastDeleteCount int64     `json:"last_delete_count"`
	RetentionDays   int       `json:"retention_days"`
}

// NewRetentionCleaner creates the cleaner and starts its background loop.
// A zero or negative period would panic time.NewTicker, so it falls back to
// the default.
func NewRetentionCleaner(store Store, config RetentionCleanerConfig, logger zerolog.Logger) *RetentionCleaner {
	period := config.CleanupPeriod
	if period <= 0 {
		period = DefaultRetentionCleanerConfig().CleanupPeriod
		logger.Warn().
			Dur("provided_period", config.CleanupPeriod).
			Dur("default_period", period).
			Msg("Invalid CleanupPeriod provided (zero or negative), using default")
	}

	c := &RetentionCleaner{
		store:         store,
		logger:        logger,
		retentionDays: config.RetentionDays,
		cleanupPeriod: period,
		done:          make(chan struct{}),
	}

	c.wg.Add(1)
	go c.run()

	logger.Info().
		Int("retention_days", config.RetentionDays).
		Dur("cleanup_period", period).
		Msg("RetentionCleaner started")

	return c
}

func (c *RetentionCleaner) run() {
	defer c.wg.Done()

	// Prune once at startup so a restart never waits a full period.
	c.cleanup()

	ticker := time.NewTicker(c.cleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.done:
			c.logger.Info().Msg("RetentionCleaner stopped")
			return
		}
	}
}

func (c *RetentionCleaner) cleanup() {
	deleted, err := c.store.DeleteOlderThan(c.retentionDays)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalCleanups++
	c.lastCleanup = time.Now()

	if err != nil {
		c.logger.Error().Err(err).Msg("Retention cleanup failed")
		return
	}

	c.totalDeleted += deleted
	c.lastDeleteCount = deleted
	if deleted > 0 {
		c.logger.Info().
			Int64("deleted", deleted).
			Int("retention_days", c.retentionDays).
			Msg("Retention cleanup completed")
	} else {
		c.logger.Debug().
			Int("retention_days", c.retentionDays).
			Msg("Retention cleanup completed, no old data to delete")
	}
}

// Stop gracefully stops the cleaner
func (c *RetentionCleaner) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
	})
}

// Stats returns current cleaner statistics
func (c *RetentionCleaner) Stats() RetentionCleanerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return RetentionCleanerStats{
		TotalDeleted:    c.totalDeleted,
		TotalCleanups:   c.totalCleanups,
		LastCleanup:     c.lastCleanup,
		LastDeleteCount: c.lastDeleteCount,
		RetentionDays:   c.retentionDays,
	}
}

// RunNow triggers an immediate cleanup outside the periodic schedule.
func (c *RetentionCleaner) RunNow() {
	c.cleanup()
}
