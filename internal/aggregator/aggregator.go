// Package aggregator implements the Signed Flow Aggregator (spec.md §4.E):
// per-contract cumulative-volume deltas classified by the Lee-Ready rule
// into signed premium flow, rolled up into session cumulatives and
// 1-second buckets. Grounded on the bucket-swap shape of the teacher's
// deleted multi-timeframe candle engine, narrowed to a single fixed
// 1-second bucket since the spec defines no other timeframe.
package aggregator

import (
	"spyoptions/internal/contracts"
)

// contractKey is a package-local alias for contracts.ContractKey.
type contractKey = contracts.ContractKey

// Tick is one per-contract observation fed into the aggregator during a
// scan (spec.md §4.E).
type Tick struct {
	Strike float64
	Side   contracts.Side
	Bid    float64
	Ask    float64
	Last   float64
	Volume float64
}

// Bucket is a closed 1-second accumulation of signed premium contributions.
type Bucket struct {
	TsUnix    int64
	CallFlow  float64
	PutFlow   float64
}

// Flow pairs a closed bucket with the session cumulatives at the moment it
// closed (spec.md §4.E "the scan loop pairs each emitted bucket with the
// current session cumulatives").
type Flow struct {
	TsUnix      int64
	CumCallFlow float64
	CumPutFlow  float64
	NetFlow     float64
}

// Aggregator owns per-contract cumulative-volume state, session-cumulative
// signed premium, and the currently-open 1-second bucket.
type Aggregator struct {
	lastVolume map[contractKey]float64

	cumCallFlow float64
	cumPutFlow  float64

	bucketOpen bool
	openSecond int64
	callBucket float64
	putBucket  float64
}

// New builds an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{lastVolume: make(map[contractKey]float64)}
}

// Tick processes one per-contract observation, returning its signed
// per-tick contribution (spec.md §4.E steps 1-5).
func (a *Aggregator) Tick(t Tick) (callContrib, putContrib float64) {
	key := contractKey{Strike: t.Strike, Side: t.Side}
	prev := a.lastVolume[key]
	delta := t.Volume - prev
	a.lastVolume[key] = t.Volume

	if delta <= 0 || t.Bid <= 0 || t.Ask <= 0 || t.Last <= 0 {
		return 0, 0
	}

	var sign float64
	switch {
	case t.Last >= t.Ask:
		sign = 1
	case t.Last <= t.Bid:
		sign = -1
	default:
		sign = 0
	}
	if sign == 0 {
		return 0, 0
	}

	signedPremium := delta * t.Last * 100 * sign
	if t.Side == contracts.Call {
		a.cumCallFlow += signedPremium
		callContrib = signedPremium
	} else {
		a.cumPutFlow += signedPremium
		putContrib = signedPremium
	}
	return callContrib, putContrib
}

// AddToBucket accumulates a tick's contribution into the currently-open
// 1-second bucket, swapping buckets (and emitting the closed one) when the
// wall-second advances (spec.md §4.E "Bucketing").
func (a *Aggregator) AddToBucket(nowSecond int64, callContrib, putContrib float64) (Bucket, bool) {
	if !a.bucketOpen {
		a.bucketOpen = true
		a.openSecond = nowSecond
		a.callBucket = callContrib
		a.putBucket = putContrib
		return Bucket{}, false
	}

	if nowSecond == a.openSecond {
		a.callBucket += callContrib
		a.putBucket += putContrib
		return Bucket{}, false
	}

	closed := Bucket{TsUnix: a.openSecond, CallFlow: a.callBucket, PutFlow: a.putBucket}
	a.openSecond = nowSecond
	a.callBucket = callContrib
	a.putBucket = putContrib
	return closed, true
}

// Snapshot returns the current session cumulatives paired with a closed
// bucket, forming the outbound FlowSnapshot (spec.md §4.E, §4.H).
func (a *Aggregator) Snapshot(closed Bucket) Flow {
	return Flow{
		TsUnix:      closed.TsUnix,
		CumCallFlow: a.cumCallFlow,
		CumPutFlow:  a.cumPutFlow,
		NetFlow:     a.cumCallFlow - a.cumPutFlow,
	}
}

// CumulativeFlow returns the current session cumulatives without requiring
// a closed bucket, for callers that need the running total independent of
// bucket emission (e.g. a status endpoint).
func (a *Aggregator) CumulativeFlow() (callFlow, putFlow float64) {
	return a.cumCallFlow, a.cumPutFlow
}
