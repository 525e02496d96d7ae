// Package subscription implements the Dynamic ATM Subscription Manager
// (spec.md §4.B): a sliding window of option-contract subscriptions
// centered on the underlying price, diffed and reconciled incrementally.
package subscription

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"spyoptions/internal/contracts"
	"spyoptions/internal/gateway"
)

const (
	// defaultHalfWidth is the default ATM half-width W (spec.md §4.B).
	defaultHalfWidth = 5
	// hardMaxHalfWidth caps W regardless of configuration.
	hardMaxHalfWidth = 10
	// maxSubscriptionsPerReconcile rate-limits new-subscription churn.
	maxSubscriptionsPerReconcile = 10
	// interSubscriptionPause is a small pause between subscribe calls.
	interSubscriptionPause = 50 * time.Millisecond
	// settleInterval bounds the wait for fresh ticks to populate.
	settleInterval = 500 * time.Millisecond
)

// Row is a single materialized snapshot row (spec.md §4.B step 6).
type Row struct {
	Strike       float64
	Side         contracts.Side
	Bid          float64
	Ask          float64
	Last         float64
	Volume       float64
	OpenInterest float64
	Mid          float64
}

// Snapshot is the result of a reconcile call: the materialized market-data
// rows for every currently active subscription.
type Snapshot struct {
	Rows []Row
}

// Manager tracks the set of currently-subscribed contracts and reconciles
// it against a moving ATM window.
type Manager struct {
	gw         gateway.Gateway
	halfWidth  int
	active     map[contracts.ContractKey]gateway.Handle
	log        *slog.Logger
	sleep      func(time.Duration)
}

// NewManager builds a subscription Manager. halfWidth is clamped to
// [1, hardMaxHalfWidth]; 0 or negative selects the spec default of 5.
func NewManager(gw gateway.Gateway, halfWidth int) *Manager {
	if halfWidth <= 0 {
		halfWidth = defaultHalfWidth
	}
	if halfWidth > hardMaxHalfWidth {
		halfWidth = hardMaxHalfWidth
	}
	return &Manager{
		gw:        gw,
		halfWidth: halfWidth,
		active:    make(map[contracts.ContractKey]gateway.Handle),
		log:       slog.With("component", "subscription"),
		sleep:     time.Sleep,
	}
}

// ActiveCount returns the number of currently active subscriptions.
func (m *Manager) ActiveCount() int {
	return len(m.active)
}

// ActiveKeys returns a copy of the currently active contract key set, for
// tests.
func (m *Manager) ActiveKeys() map[contracts.ContractKey]struct{} {
	out := make(map[contracts.ContractKey]struct{}, len(m.active))
	for k := range m.active {
		out[k] = struct{}{}
	}
	return out
}

// Reconcile diffs the desired ATM window for the given underlying price
// against the currently active set, cancels what left the window, adds
// what entered it (rate-limited), waits a bounded settle interval, and
// materializes a snapshot (spec.md §4.B).
func (m *Manager) Reconcile(ctx context.Context, price float64) Snapshot {
	desired := desiredWindow(price, m.halfWidth)

	toCancel := make([]contracts.ContractKey, 0)
	for k := range m.active {
		if _, want := desired[k]; !want {
			toCancel = append(toCancel, k)
		}
	}
	toAdd := make([]contracts.ContractKey, 0, len(desired))
	for k := range desired {
		if _, have := m.active[k]; !have {
			toAdd = append(toAdd, k)
		}
	}
	// Deterministic ordering makes reconcile's side effects reproducible
	// and tests stable.
	sort.Slice(toCancel, func(i, j int) bool { return lessKey(toCancel[i], toCancel[j]) })
	sort.Slice(toAdd, func(i, j int) bool { return lessKey(toAdd[i], toAdd[j]) })

	for _, k := range toCancel {
		handle := m.active[k]
		if err := m.gw.Unsubscribe(ctx, handle); err != nil {
			m.log.Warn("unsubscribe failed", "strike", k.Strike, "side", k.Side, "error", err)
			// Drop it anyway: a failed cancel still means we no longer
			// want to track it. The cancel is not retried.
		}
		delete(m.active, k)
	}

	added := 0
	for _, k := range toAdd {
		if added >= maxSubscriptionsPerReconcile {
			break // rate-limit: remaining adds retried on next reconcile
		}
		if err := m.gw.ResolveContract(ctx, k); err != nil {
			m.log.Debug("qualification failed, skipping", "strike", k.Strike, "side", k.Side, "error", err)
			continue
		}
		h, err := m.gw.Subscribe(ctx, k)
		if err != nil {
			m.log.Debug("subscribe failed, skipping", "strike", k.Strike, "side", k.Side, "error", err)
			continue
		}
		m.active[k] = h
		added++
		m.sleep(interSubscriptionPause)
	}

	m.sleep(settleInterval)

	return m.snapshot()
}

func (m *Manager) snapshot() Snapshot {
	rows := make([]Row, 0, len(m.active))
	for k := range m.active {
		q, ok := m.gw.LatestQuote(k)
		if !ok {
			continue
		}
		q.ComputeMid()
		rows = append(rows, Row{
			Strike:       k.Strike,
			Side:         k.Side,
			Bid:          q.Bid,
			Ask:          q.Ask,
			Last:         q.Last,
			Volume:       q.Volume,
			OpenInterest: q.OpenInterest,
			Mid:          q.Mid,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Strike != rows[j].Strike {
			return rows[i].Strike < rows[j].Strike
		}
		return rows[i].Side < rows[j].Side
	})
	return Snapshot{Rows: rows}
}

// desiredWindow computes {(k, s) : round(price)-W <= k <= round(price)+W,
// s in {CALL,PUT}} (spec.md §8 property 2).
func desiredWindow(price float64, halfWidth int) map[contracts.ContractKey]struct{} {
	center := int(math.Round(price))
	out := make(map[contracts.ContractKey]struct{}, (2*halfWidth+1)*2)
	for k := center - halfWidth; k <= center+halfWidth; k++ {
		out[contracts.ContractKey{Strike: float64(k), Side: contracts.Call}] = struct{}{}
		out[contracts.ContractKey{Strike: float64(k), Side: contracts.Put}] = struct{}{}
	}
	return out
}

func lessKey(a, b contracts.ContractKey) bool {
	if a.Strike != b.Strike {
		return a.Strike < b.Strike
	}
	return a.Side < b.Side
}

// ATMCenterAndWindow computes the ATM center and inclusive window bounds
// for a given price and half-width, exported for callers (the scan loop,
// the market-state writer) that need the same computation spec.md §3
// describes for MarketState.
func ATMCenterAndWindow(price float64, halfWidth int) (center, min, max int) {
	center = int(math.Round(price))
	return center, center - halfWidth, center + halfWidth
}
