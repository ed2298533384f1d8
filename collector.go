package scopez

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector is an in-memory Reporter that buffers finished spans for
// batch export. It is the "completed set" a test or exporter reads from.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	records      []Record
	recordsCh    chan Record
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool
	syncMode     atomic.Bool // Bypass channel for synchronous collection.
}

// NewCollector creates a new collector with the specified name and buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:      name,
		records:   make([]Record, 0, 8),
		recordsCh: make(chan Record, bufferSize),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.start()
	return c
}

// Name returns the collector's name.
func (c *Collector) Name() string {
	return c.name
}

func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining records before shutdown.
			for {
				select {
				case r := <-c.recordsCh:
					c.buffer(r)
				default:
					return
				}
			}
		case r := <-c.recordsCh:
			c.buffer(r)
		}
	}
}

// Close stops the collector goroutine after draining queued records.
// Reports received afterwards are dropped.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		select {
		case <-c.done:
		case <-time.After(100 * time.Millisecond):
		}
	})
}

// Report implements Reporter. If the internal channel is full, the record
// is dropped and the drop counter is incremented. In sync mode, records are
// buffered directly.
func (c *Collector) Report(record Record) {
	if c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	if c.syncMode.Load() {
		c.buffer(record)
		return
	}

	select {
	case c.recordsCh <- record:
	default:
		// Channel full - drop to prevent blocking Finish.
		c.droppedCount.Add(1)
	}
}

func (c *Collector) buffer(record Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.records) >= cap(c.records) {
		currentCap := cap(c.records)
		var newCap int
		if currentCap < 1024 {
			newCap = currentCap * 2
		} else {
			// Grow by 50% for large buffers.
			newCap = currentCap + currentCap/2
		}
		if newCap < 32 {
			newCap = 32
		}
		grown := make([]Record, len(c.records), newCap)
		copy(grown, c.records)
		c.records = grown
	}
	c.records = append(c.records, record)
}

// Export returns all buffered records and clears the buffer.
// Records are snapshots; the returned slice is owned by the caller.
func (c *Collector) Export() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.records) == 0 {
		return nil
	}

	result := make([]Record, len(c.records))
	copy(result, c.records)

	// Shrink only when very oversized to avoid allocation churn.
	if cap(c.records) > 256 && len(c.records) < cap(c.records)/8 {
		newCap := cap(c.records) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.records = make([]Record, 0, newCap)
	} else {
		clear(c.records)
		c.records = c.records[:0]
	}

	return result
}

// Count returns the current number of buffered records.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// DroppedCount returns the total number of records dropped due to backpressure.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
// This makes tests deterministic by eliminating async behavior.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears all buffered records and resets the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.records)
	c.records = c.records[:0]
	c.droppedCount.Store(0)
}
