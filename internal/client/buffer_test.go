package client

import (
	"sync"
	"testing"
	"time"

	"github.com/housewatch/household-watch/internal/models"
)

func testReading(power float64) *models.Reading {
	return models.NewReading("ESP32_001", 230.0, power*1000/230.0, power, 0)
}

func TestNewReadingBuffer(t *testing.T) {
	buf := NewReadingBuffer(100, true)

	if buf == nil {
		t.Fatal("NewReadingBuffer returned nil")
	}
	if buf.Capacity() != 100 {
		t.Errorf("Capacity = %d, want 100", buf.Capacity())
	}
	if buf.Size() != 0 {
		t.Errorf("Initial size = %d, want 0", buf.Size())
	}
	if !buf.IsEmpty() {
		t.Error("New buffer should be empty")
	}
}

func TestBuffer_PushAndSize(t *testing.T) {
	buf := NewReadingBuffer(10, true)

	ok := buf.Push(testReading(2.5))
	if !ok {
		t.Error("Push failed on empty buffer")
	}

	if buf.Size() != 1 {
		t.Errorf("Size = %d, want 1", buf.Size())
	}

	if buf.IsEmpty() {
		t.Error("Buffer should not be empty after push")
	}
}

func TestBuffer_PopBatch(t *testing.T) {
	buf := NewReadingBuffer(10, true)

	// Push 5 readings
	for i := 0; i < 5; i++ {
		buf.Push(testReading(float64(2 + i)))
	}

	// Pop 3
	readings := buf.PopBatch(3)

	if len(readings) != 3 {
		t.Errorf("PopBatch(3) returned %d readings, want 3", len(readings))
	}

	if buf.Size() != 2 {
		t.Errorf("Size after pop = %d, want 2", buf.Size())
	}

	// Verify FIFO order (oldest first)
	if readings[0].Power != 2.0 {
		t.Errorf("First popped power = %v, want 2.0", readings[0].Power)
	}
	if readings[2].Power != 4.0 {
		t.Errorf("Third popped power = %v, want 4.0", readings[2].Power)
	}
}

func TestBuffer_PopBatch_MoreThanAvailable(t *testing.T) {
	buf := NewReadingBuffer(10, true)

	// Push 3 readings
	for i := 0; i < 3; i++ {
		buf.Push(testReading(2.5))
	}

	// Try to pop 10 (more than available)
	readings := buf.PopBatch(10)

	if len(readings) != 3 {
		t.Errorf("PopBatch(10) with 3 available returned %d, want 3", len(readings))
	}

	if !buf.IsEmpty() {
		t.Error("Buffer should be empty after popping all")
	}
}

func TestBuffer_Peek(t *testing.T) {
	buf := NewReadingBuffer(10, true)

	// Push 5 readings
	for i := 0; i < 5; i++ {
		buf.Push(testReading(float64(2 + i)))
	}

	// Peek at 3
	readings := buf.Peek(3)

	if len(readings) != 3 {
		t.Errorf("Peek(3) returned %d readings, want 3", len(readings))
	}

	// Buffer size should NOT change
	if buf.Size() != 5 {
		t.Errorf("Size after peek = %d, want 5 (unchanged)", buf.Size())
	}

	// Should get oldest first
	if readings[0].Power != 2.0 {
		t.Errorf("First peeked power = %v, want 2.0", readings[0].Power)
	}
}

func TestBuffer_DropOldest(t *testing.T) {
	buf := NewReadingBuffer(3, true) // capacity 3, drop oldest

	// Fill buffer
	for i := 0; i < 3; i++ {
		buf.Push(testReading(float64(2 + i)))
	}

	if !buf.IsFull() {
		t.Error("Buffer should be full")
	}

	// Push one more (should drop oldest)
	buf.Push(testReading(9.9))

	// Should still be full
	if !buf.IsFull() {
		t.Error("Buffer should still be full")
	}

	// Check that oldest was dropped
	readings := buf.PopBatch(3)

	// First reading should now be 3.0 (original 2.0 was dropped)
	if readings[0].Power != 3.0 {
		t.Errorf("After drop-oldest, first power = %v, want 3.0", readings[0].Power)
	}

	// Last should be the new one
	if readings[2].Power != 9.9 {
		t.Errorf("After drop-oldest, last power = %v, want 9.9", readings[2].Power)
	}
}

func TestBuffer_DropNewest(t *testing.T) {
	buf := NewReadingBuffer(3, false) // capacity 3, drop newest

	// Fill buffer
	for i := 0; i < 3; i++ {
		buf.Push(testReading(float64(2 + i)))
	}

	// Push one more (should be dropped)
	ok := buf.Push(testReading(9.9))

	if ok {
		t.Error("Push should return false when buffer full and drop-newest")
	}

	// Buffer should still have original 3
	readings := buf.PopBatch(3)

	// Should still have original readings, newest was dropped
	if readings[2].Power != 4.0 {
		t.Errorf("Last power = %v, want 4.0 (9.9 should be dropped)", readings[2].Power)
	}
}

func TestBuffer_Clear(t *testing.T) {
	buf := NewReadingBuffer(10, true)

	// Add some readings
	for i := 0; i < 5; i++ {
		buf.Push(testReading(2.5))
	}

	buf.Clear()

	if !buf.IsEmpty() {
		t.Error("Buffer should be empty after Clear()")
	}
	if buf.Size() != 0 {
		t.Errorf("Size after clear = %d, want 0", buf.Size())
	}
}

func TestBuffer_Stats(t *testing.T) {
	buf := NewReadingBuffer(3, true)

	// Push 5 readings (will drop 2)
	for i := 0; i < 5; i++ {
		buf.Push(testReading(2.5))
	}

	stats := buf.Stats()

	if stats.TotalPushed != 5 {
		t.Errorf("TotalPushed = %d, want 5", stats.TotalPushed)
	}

	if stats.TotalDropped != 2 {
		t.Errorf("TotalDropped = %d, want 2", stats.TotalDropped)
	}

	if stats.HighWaterMark != 3 {
		t.Errorf("HighWaterMark = %d, want 3", stats.HighWaterMark)
	}

	if stats.LastPushTime.IsZero() {
		t.Error("LastPushTime should be set")
	}
}

func TestBuffer_ThreadSafety(t *testing.T) {
	buf := NewReadingBuffer(1000, true)

	var wg sync.WaitGroup

	// Concurrent pushers
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf.Push(testReading(float64(id*100 + j)))
			}
		}(i)
	}

	// Concurrent poppers
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				buf.PopBatch(10)
				time.Sleep(1 * time.Millisecond)
			}
		}()
	}

	// Concurrent readers
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf.Size()
				buf.IsEmpty()
				buf.IsFull()
				buf.Stats()
			}
		}()
	}

	wg.Wait()

	// No race conditions should occur
	// Run with: go test -race ./internal/client/...
	t.Logf("Final buffer state: %s", buf.String())
}

func TestBuffer_FIFO_Order(t *testing.T) {
	buf := NewReadingBuffer(100, true)

	// Push readings with sequential power values
	for i := 0; i < 10; i++ {
		buf.Push(testReading(float64(i)))
	}

	// Pop all and verify order
	readings := buf.PopBatch(10)

	for i, reading := range readings {
		if reading.Power != float64(i) {
			t.Errorf("Reading %d has power %v, want %v (FIFO order broken)",
				i, reading.Power, float64(i))
		}
	}
}

func BenchmarkBuffer_Push(b *testing.B) {
	buf := NewReadingBuffer(10000, true)
	reading := testReading(2.5)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Push(reading)
	}
}

func BenchmarkBuffer_PopBatch(b *testing.B) {
	buf := NewReadingBuffer(10000, true)

	// Pre-fill buffer
	for i := 0; i < 10000; i++ {
		buf.Push(testReading(2.5))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.PopBatch(100)
	}
}
