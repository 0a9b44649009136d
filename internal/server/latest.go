package server

import (
	"sync"

	"github.com/housewatch/household-watch/internal/models"
)

// LatestCache is the single-slot holder of the most recently ingested
// reading. Every ingest overwrites it unconditionally (last writer wins);
// callers needing strict ordering use the persisted history instead. The
// slot is process-local and empties on restart, which is fine: the persisted
// store remains queryable independently.
type LatestCache struct {
	mu      sync.RWMutex
	reading *models.Reading
}

// NewLatestCache creates an empty cache.
func NewLatestCache() *LatestCache {
	return &LatestCache{}
}

// Set replaces the cached reading.
func (c *LatestCache) Set(reading *models.Reading) {
	c.mu.Lock()
	c.reading = reading
	c.mu.Unlock()
}

// Get returns a copy of the cached reading, or nil if nothing has been
// ingested since the process started.
func (c *LatestCache) Get() *models.Reading {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reading.Copy()
}
