// Package volumedelta implements the Volume Delta Tracker (spec.md §4.F):
// a pair of scalars tracking the previous scan's ATM-window aggregate call
// and put volumes, clamped to non-negative deltas across window churn.
package volumedelta

import "spyoptions/internal/contracts"

// Scan is one scan's ATM-window volume aggregate, fed into the tracker.
type Scan struct {
	TsMS       int64
	Underlying float64
	PrevClose  float64
	CallsATM   float64
	PutsATM    float64
	ATMRange   contracts.ATMRange
	Strikes    contracts.StrikeCounts
}

// Tracker holds the previous scan's totals and emits clamped deltas.
type Tracker struct {
	prevCallsTotal float64
	prevPutsTotal  float64
	firstScan      bool
}

// New builds a Tracker ready for its first scan.
func New() *Tracker {
	return &Tracker{firstScan: true}
}

// Update computes deltas against the previous scan and seeds the scalars
// for the next call (spec.md §4.F). On the first scan, deltas are zero.
func (t *Tracker) Update(s Scan) contracts.VolumeSnapshot {
	var callDelta, putDelta float64
	if !t.firstScan {
		callDelta = clampNonNegative(s.CallsATM - t.prevCallsTotal)
		putDelta = clampNonNegative(s.PutsATM - t.prevPutsTotal)
	}
	t.firstScan = false
	t.prevCallsTotal = s.CallsATM
	t.prevPutsTotal = s.PutsATM

	// ChangePct is intentionally left unset here: the ingress computes it
	// once, from the stored MarketState's previous close, rather than
	// re-deriving it at every producer of a VolumeSnapshot.
	return contracts.VolumeSnapshot{
		TsMS:         s.TsMS,
		Underlying:   s.Underlying,
		PrevClose:    s.PrevClose,
		CallsATM:     s.CallsATM,
		PutsATM:      s.PutsATM,
		CallDelta:    callDelta,
		PutDelta:     putDelta,
		ATMRange:     s.ATMRange,
		StrikeCounts: s.Strikes,
	}
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
