package gateway

import (
	"sync"

	"spyoptions/internal/contracts"
)

// Quote is the gateway's live-tick payload: a contract identity plus the
// raw quote fields. Reuses contracts.Quote since the wire shape toward the
// rest of the system is identical.
type Quote = contracts.Quote

// Bus fans out live quote ticks to whoever subscribes. The quote cache read
// by the subscription manager is updated directly by the read loop, not
// through the bus. Grounded on
// internal/bus/bus.go's pub/sub shape: a slice of buffered channels guarded
// by an RWMutex, non-blocking publish that drops for slow subscribers
// rather than stalling the single gateway reader goroutine.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Quote
}

// NewBus creates an empty quote bus.
func NewBus() *Bus {
	return &Bus{subscribers: make([]chan Quote, 0)}
}

// Subscribe returns a read-only channel of quote ticks.
func (b *Bus) Subscribe(bufferSize int) <-chan Quote {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Quote, bufferSize)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish fans a quote tick out to every subscriber. Non-blocking: a
// subscriber with a full channel misses this tick rather than stalling the
// publisher.
func (b *Bus) Publish(q Quote) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- q:
		default:
		}
	}
}
