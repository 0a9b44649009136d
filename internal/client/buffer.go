package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/housewatch/household-watch/internal/models"
)

// ReadingBuffer is a thread-safe ring buffer for meter readings waiting to
// be shipped upstream. It absorbs short server outages; when full it either
// overwrites the oldest reading or rejects the new one, per dropOldest.
type ReadingBuffer struct {
	slots      []*models.Reading
	head       int // index of the oldest reading
	count      int
	dropOldest bool
	mutex      sync.RWMutex
	stats      BufferStats
}

// BufferStats tracks buffer usage statistics
type BufferStats struct {
	TotalPushed   int64
	TotalDropped  int64
	HighWaterMark int
	LastPushTime  time.Time
	LastDropTime  time.Time
}

// NewReadingBuffer creates a new reading buffer with given capacity
func NewReadingBuffer(capacity int, dropOldest bool) *ReadingBuffer {
	return &ReadingBuffer{
		slots:      make([]*models.Reading, capacity),
		dropOldest: dropOldest,
	}
}

// Push adds a reading to the buffer
// Returns true if successful, false if dropped (when full and dropOldest=false)
func (rb *ReadingBuffer) Push(reading *models.Reading) bool {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	if rb.count == len(rb.slots) {
		rb.stats.TotalDropped++
		rb.stats.LastDropTime = time.Now()
		if !rb.dropOldest {
			return false
		}
		// Overwrite the oldest slot and advance the head.
		rb.slots[rb.head] = nil
		rb.head = (rb.head + 1) % len(rb.slots)
		rb.count--
	}

	tail := (rb.head + rb.count) % len(rb.slots)
	rb.slots[tail] = reading
	rb.count++

	rb.stats.TotalPushed++
	rb.stats.LastPushTime = time.Now()
	if rb.count > rb.stats.HighWaterMark {
		rb.stats.HighWaterMark = rb.count
	}

	return true
}

// PopBatch removes and returns up to n readings from the buffer,
// oldest first. Returns nil when the buffer is empty.
func (rb *ReadingBuffer) PopBatch(n int) []*models.Reading {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	batch := rb.copyOldest(n)
	for range batch {
		rb.slots[rb.head] = nil
		rb.head = (rb.head + 1) % len(rb.slots)
		rb.count--
	}
	return batch
}

// Peek returns up to n readings without removing them
func (rb *ReadingBuffer) Peek(n int) []*models.Reading {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return rb.copyOldest(n)
}

// copyOldest copies up to n readings oldest-first. Caller holds the lock.
func (rb *ReadingBuffer) copyOldest(n int) []*models.Reading {
	if n > rb.count {
		n = rb.count
	}
	if n == 0 {
		return nil
	}
	out := make([]*models.Reading, n)
	for i := 0; i < n; i++ {
		out[i] = rb.slots[(rb.head+i)%len(rb.slots)]
	}
	return out
}

// Size returns the current number of readings in the buffer
func (rb *ReadingBuffer) Size() int {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return rb.count
}

// IsFull returns true if buffer is at capacity
func (rb *ReadingBuffer) IsFull() bool {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return rb.count == len(rb.slots)
}

// IsEmpty returns true if buffer has no readings
func (rb *ReadingBuffer) IsEmpty() bool {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return rb.count == 0
}

// Clear removes all readings and resets statistics
func (rb *ReadingBuffer) Clear() {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()
	for i := range rb.slots {
		rb.slots[i] = nil
	}
	rb.head = 0
	rb.count = 0
	rb.stats = BufferStats{}
}

// Capacity returns the maximum capacity of the buffer
func (rb *ReadingBuffer) Capacity() int {
	return len(rb.slots)
}

// Stats returns a copy of current buffer statistics
func (rb *ReadingBuffer) Stats() BufferStats {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return rb.stats
}

// String returns a human-readable representation of buffer state
func (rb *ReadingBuffer) String() string {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	mode := "drop-newest"
	if rb.dropOldest {
		mode = "drop-oldest"
	}

	return fmt.Sprintf("Buffer[%d/%d, dropped: %d, mode: %s]",
		rb.count,
		len(rb.slots),
		rb.stats.TotalDropped,
		mode,
	)
}
