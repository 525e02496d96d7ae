package broadcast

import (
	"sync"

	"spyoptions/internal/contracts"
)

// RingBuffer is a fixed-size circular buffer of recent anomalies, replayed
// to a client on connect before it is registered for live broadcasts.
// Grounded on the teacher's state.RingBuffer, narrowed from generic engine
// snapshots to Anomaly payloads (spec.md §4.G broadcast path only carries
// anomalies as history; volume/flow are polled via the REST snapshot
// endpoints instead).
type RingBuffer struct {
	mu       sync.RWMutex
	data     []contracts.Anomaly
	capacity int
	head     int
	size     int
	full     bool
}

// NewRingBuffer builds a ring buffer of fixed capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{data: make([]contracts.Anomaly, capacity), capacity: capacity}
}

// Add inserts an anomaly, overwriting the oldest entry once full.
func (rb *RingBuffer) Add(a contracts.Anomaly) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.data[rb.head] = a
	rb.head = (rb.head + 1) % rb.capacity
	if !rb.full {
		rb.size++
		if rb.size == rb.capacity {
			rb.full = true
		}
	}
}

// GetAll returns a copy of all buffered anomalies in chronological order.
func (rb *RingBuffer) GetAll() []contracts.Anomaly {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.size == 0 {
		return nil
	}
	out := make([]contracts.Anomaly, 0, rb.size)
	if !rb.full {
		out = append(out, rb.data[:rb.head]...)
	} else {
		out = append(out, rb.data[rb.head:]...)
		out = append(out, rb.data[:rb.head]...)
	}
	return out
}
