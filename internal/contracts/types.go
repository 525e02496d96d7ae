// Package contracts defines the validated data shapes on the wire between
// the detector, the ingress, storage, and the broadcast hub (spec.md §4.H).
package contracts

import "fmt"

// Side is the option contract side.
type Side string

const (
	Call Side = "CALL"
	Put  Side = "PUT"
)

// MarketStatus is the underlying's market-hours status.
type MarketStatus string

const (
	StatusOpen      MarketStatus = "OPEN"
	StatusClosed    MarketStatus = "CLOSED"
	StatusPremarket MarketStatus = "PREMARKET"
)

// Severity is the ordinal anomaly-strength classification.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// ContractKey uniquely identifies an option contract for the current
// trading date: (strike, side). Expiry is implicitly "today" (0-DTE) and
// the underlying is fixed to SPY for this system.
type ContractKey struct {
	Strike float64
	Side   Side
}

// Quote is a live per-contract market-data observation (spec.md §3).
type Quote struct {
	Strike        float64 `json:"strike"`
	Side          Side    `json:"side"`
	Bid           float64 `json:"bid"`
	Ask           float64 `json:"ask"`
	Last          float64 `json:"last"`
	Volume        float64 `json:"volume"`
	OpenInterest  float64 `json:"open_interest"`
	Mid           float64 `json:"mid"`
}

// ComputeMid sets Mid = (Bid+Ask)/2 when both sides are known and positive,
// else zero. NaN inputs are normalized to zero first.
func (q *Quote) ComputeMid() {
	bid := normalizeNaN(q.Bid)
	ask := normalizeNaN(q.Ask)
	q.Bid = bid
	q.Ask = ask
	q.Last = normalizeNaN(q.Last)
	q.Volume = normalizeNaN(q.Volume)
	q.OpenInterest = normalizeNaN(q.OpenInterest)
	if bid > 0 && ask > 0 {
		q.Mid = (bid + ask) / 2
	} else {
		q.Mid = 0
	}
}

func normalizeNaN(v float64) float64 {
	if v != v { // NaN
		return 0
	}
	return v
}

// MarketState is the single mutable record describing the underlying
// (spec.md §3).
type MarketState struct {
	Price         float64      `json:"price"`
	PreviousClose float64      `json:"prev_close"`
	ATMCenter     int          `json:"atm_center"`
	ATMMin        int          `json:"atm_min"`
	ATMMax        int          `json:"atm_max"`
	Status        MarketStatus `json:"status"`
	DailyHigh     *float64     `json:"daily_high,omitempty"`
	DailyLow      *float64     `json:"daily_low,omitempty"`
	LastUpdated   string       `json:"last_updated_iso"`
}

// Anomaly is a single detected pricing anomaly (spec.md §3, §4.H).
type Anomaly struct {
	TsMS           int64    `json:"ts"`
	Symbol         string   `json:"symbol"`
	Strike         float64  `json:"strike"`
	Side           Side     `json:"side"`
	Bid            float64  `json:"bid"`
	Ask            float64  `json:"ask"`
	Mid            float64  `json:"mid"`
	Expected       float64  `json:"expected"`
	DeviationPct   float64  `json:"deviation_pct"`
	ZScore         float64  `json:"z_score"`
	Volume         float64  `json:"volume"`
	OpenInterest   float64  `json:"open_interest"`
	Severity       Severity `json:"severity"`
}

// Key returns the upsert key "{ts_ms}_{strike}_{side}" (spec.md §3 invariant:
// at most one entity per key).
func (a Anomaly) Key() string {
	return fmt.Sprintf("%d_%g_%s", a.TsMS, a.Strike, a.Side)
}

// Validate rejects an Anomaly missing required fields or with obviously
// out-of-range values (spec.md §4.H).
func (a Anomaly) Validate() error {
	if a.TsMS <= 0 {
		return fmt.Errorf("ts must be positive")
	}
	if a.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if a.Side != Call && a.Side != Put {
		return fmt.Errorf("side must be CALL or PUT, got %q", a.Side)
	}
	if a.Strike <= 0 {
		return fmt.Errorf("strike must be positive")
	}
	if a.Bid < 0 || a.Ask < 0 {
		return fmt.Errorf("bid/ask must be non-negative")
	}
	switch a.Severity {
	case SeverityLow, SeverityMedium, SeverityHigh:
	default:
		return fmt.Errorf("severity must be LOW, MEDIUM, or HIGH, got %q", a.Severity)
	}
	return nil
}

// AnomaliesBatch is POSTed by the detector process to the ingress
// (spec.md §4.H): count must equal len(anomalies).
type AnomaliesBatch struct {
	Count     int       `json:"count"`
	Anomalies []Anomaly `json:"anomalies"`
	LastScan  string    `json:"last_scan"`
}

// Validate enforces count == len(anomalies) and validates every anomaly.
func (b AnomaliesBatch) Validate() error {
	if b.Count != len(b.Anomalies) {
		return fmt.Errorf("count %d does not match %d anomalies", b.Count, len(b.Anomalies))
	}
	for i, a := range b.Anomalies {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("anomalies[%d]: %w", i, err)
		}
	}
	return nil
}

// StrikeCounts reports how many strikes contributed on each side.
type StrikeCounts struct {
	Calls int `json:"calls"`
	Puts  int `json:"puts"`
}

// ATMRange is the inclusive strike window around the ATM center.
type ATMRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// VolumeSnapshot is the per-scan volume record (spec.md §3, §4.H).
type VolumeSnapshot struct {
	TsMS         int64        `json:"ts"`
	Underlying   float64      `json:"underlying"`
	PrevClose    float64      `json:"prev_close"`
	CallsATM     float64      `json:"calls_atm"`
	PutsATM      float64      `json:"puts_atm"`
	CallDelta    float64      `json:"call_delta"`
	PutDelta     float64      `json:"put_delta"`
	ATMRange     ATMRange     `json:"atm_range"`
	StrikeCounts StrikeCounts `json:"strike_counts"`
	ChangePct    *float64     `json:"change_pct,omitempty"`
}

// Validate rejects a VolumeSnapshot with invalid deltas or ranges.
func (v VolumeSnapshot) Validate() error {
	if v.TsMS <= 0 {
		return fmt.Errorf("ts must be positive")
	}
	if v.CallDelta < 0 || v.PutDelta < 0 {
		return fmt.Errorf("call_delta/put_delta must be non-negative")
	}
	if v.ATMRange.Min > v.ATMRange.Max {
		return fmt.Errorf("atm_range.min must be <= atm_range.max")
	}
	return nil
}

// FlowSnapshot is the per-closed-bucket flow record (spec.md §3, §4.H).
type FlowSnapshot struct {
	TsUnix      int64   `json:"ts_unix"`
	CumCallFlow float64 `json:"cum_call_flow"`
	CumPutFlow  float64 `json:"cum_put_flow"`
	NetFlow     float64 `json:"net_flow"`
}

// Validate rejects a FlowSnapshot with a non-positive timestamp. NetFlow is
// not checked against CumCallFlow - CumPutFlow.
func (f FlowSnapshot) Validate() error {
	if f.TsUnix <= 0 {
		return fmt.Errorf("ts_unix must be positive")
	}
	return nil
}

// SpyMarketSnapshot is a raw underlying tick (spec.md §4.H).
type SpyMarketSnapshot struct {
	TsUnix int64    `json:"ts_unix"`
	Price  float64  `json:"price"`
	Bid    *float64 `json:"bid,omitempty"`
	Ask    *float64 `json:"ask,omitempty"`
	Last   *float64 `json:"last,omitempty"`
	Volume *float64 `json:"volume,omitempty"`
}

// Validate rejects a SpyMarketSnapshot with a non-positive price.
func (s SpyMarketSnapshot) Validate() error {
	if s.TsUnix <= 0 {
		return fmt.Errorf("ts_unix must be positive")
	}
	if s.Price <= 0 {
		return fmt.Errorf("price must be positive")
	}
	return nil
}
