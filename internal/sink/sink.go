// Package sink implements the two independent fan-outs described in
// spec.md §4.G: persist to storage and broadcast to the real-time hub.
// The two never block each other — persistence is synchronous and
// returns its own error, while broadcast runs on a small bounded worker
// pool fed by a queue, dropping the oldest queued job on overflow (spec.md
// §9 "Background broadcast").
package sink

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"spyoptions/internal/broadcast"
	"spyoptions/internal/contracts"
	"spyoptions/internal/metrics"
	"spyoptions/internal/storage"
)

// job is one pending broadcast.
type job struct {
	target  string
	payload any
}

// Sink persists and broadcasts anomaly/volume/flow/market payloads.
type Sink struct {
	store *storage.Store
	hub   *broadcast.Hub
	log   *slog.Logger

	queue    chan job
	overflow atomic.Int64

	wg sync.WaitGroup
}

// workerCount is the size of the background broadcast worker pool.
const workerCount = 2

// queueCapacity bounds the broadcast backlog before drop-oldest kicks in.
const queueCapacity = 512

// New builds a Sink backed by store and hub, and starts its broadcast
// workers. Call Stop to drain and shut them down.
func New(store *storage.Store, hub *broadcast.Hub) *Sink {
	s := &Sink{
		store: store,
		hub:   hub,
		log:   slog.With("component", "sink"),
		queue: make(chan job, queueCapacity),
	}
	for i := 0; i < workerCount; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Stop closes the broadcast queue and waits for workers to drain it.
func (s *Sink) Stop() {
	close(s.queue)
	s.wg.Wait()
}

// OverflowCount returns how many queued broadcasts have been dropped due
// to a full queue since startup.
func (s *Sink) OverflowCount() int64 {
	return s.overflow.Load()
}

func (s *Sink) worker() {
	defer s.wg.Done()
	for j := range s.queue {
		if s.hub != nil {
			s.hub.Send(j.target, j.payload)
		}
	}
}

// enqueue pushes a broadcast job, dropping the oldest queued job and
// counting the overflow if the queue is full.
func (s *Sink) enqueue(target string, payload any) {
	j := job{target: target, payload: payload}
	select {
	case s.queue <- j:
		return
	default:
	}
	// Queue full: drop the oldest pending job to make room, per spec.md §9.
	select {
	case <-s.queue:
		s.overflow.Add(1)
		metrics.BroadcastOverflowTotal.Inc()
	default:
	}
	select {
	case s.queue <- j:
	default:
		s.overflow.Add(1)
		metrics.BroadcastOverflowTotal.Inc()
	}
}

// Broadcast target names, fixed by spec.md §6's event table.
const (
	targetAnomalyDetected = "anomalyDetected"
	targetVolumeUpdate    = "volumeUpdate"
	targetFlow            = "flow"
	targetPrice           = "price"
)

// priceEvent is the `price` broadcast's payload shape (spec.md §6):
// {timestamp, price}, distinct from the full SpyMarketSnapshot that gets
// persisted.
type priceEvent struct {
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
}

// Anomaly persists and broadcasts a detected anomaly.
func (s *Sink) Anomaly(a contracts.Anomaly) error {
	err := s.store.SaveAnomaly(a)
	if err != nil {
		s.log.Error("persist anomaly failed", "error", err)
	}
	s.enqueue(targetAnomalyDetected, a)
	return err
}

// VolumeSnapshot persists and broadcasts a volume snapshot.
func (s *Sink) VolumeSnapshot(v contracts.VolumeSnapshot) error {
	err := s.store.SaveVolumeSnapshot(v)
	if err != nil {
		s.log.Error("persist volume snapshot failed", "error", err)
	}
	s.enqueue(targetVolumeUpdate, v)
	return err
}

// FlowSnapshot persists and broadcasts a flow snapshot.
func (s *Sink) FlowSnapshot(f contracts.FlowSnapshot) error {
	err := s.store.SaveFlowSnapshot(f)
	if err != nil {
		s.log.Error("persist flow snapshot failed", "error", err)
	}
	s.enqueue(targetFlow, f)
	return err
}

// SpyMarketSnapshot persists the raw underlying tick and broadcasts the
// `price` event's {timestamp, price} shape (spec.md §6).
func (s *Sink) SpyMarketSnapshot(m contracts.SpyMarketSnapshot) error {
	err := s.store.SaveSpyMarketSnapshot(m)
	if err != nil {
		s.log.Error("persist spy market snapshot failed", "error", err)
	}
	s.enqueue(targetPrice, priceEvent{Timestamp: m.TsUnix, Price: m.Price})
	return err
}

// MarketState persists and broadcasts the latest market state.
func (s *Sink) MarketState(m contracts.MarketState) error {
	err := s.store.SaveMarketState(m)
	if err != nil {
		s.log.Error("persist market state failed", "error", err)
	}
	s.enqueue("market_state", m)
	return err
}
