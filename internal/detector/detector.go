// Package detector implements the Anomaly Detector (spec.md §4.D): two
// independent per-side passes that fit an exponential decay curve over
// mid price vs. distance-from-ATM, score deviations, and classify
// underpriced contracts by severity. Falls back to a simple-stats detector
// when the curve fit fails.
package detector

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"spyoptions/internal/contracts"
	"spyoptions/internal/subscription"
)

// Config holds the detector's tunable parameters.
type Config struct {
	// Threshold is the z-score magnitude an anomaly must clear (spec.md
	// §4.D step 5). Default 0.5.
	Threshold float64
}

// Detector runs the two-pass (calls/puts) anomaly scan over a snapshot.
type Detector struct {
	cfg Config
	log *slog.Logger
}

// New builds a Detector.
func New(cfg Config) *Detector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	return &Detector{cfg: cfg, log: slog.With("component", "detector")}
}

// Detect runs both passes over the snapshot and returns every anomaly
// found, timestamped at now.
func (d *Detector) Detect(rows []subscription.Row, underlyingPrice float64, now time.Time) []contracts.Anomaly {
	atm := int(math.Round(underlyingPrice))
	tsMS := now.UnixMilli()

	calls := rowsForSide(rows, contracts.Call, atm, true)
	puts := rowsForSide(rows, contracts.Put, atm, false)

	var out []contracts.Anomaly
	out = append(out, d.detectSide(calls, contracts.Call, tsMS)...)
	out = append(out, d.detectSide(puts, contracts.Put, tsMS)...)
	return out
}

// sideRow is a pre-filtered row annotated with its distance from ATM.
type sideRow struct {
	subscription.Row
	distance float64
}

// rowsForSide keeps strikes on the correct side of ATM (>= atm for calls,
// <= atm for puts), sorted so distance increases outward from the anchor
// (spec.md §4.D step 1).
func rowsForSide(rows []subscription.Row, side contracts.Side, atm int, ascending bool) []sideRow {
	var out []sideRow
	for _, r := range rows {
		if r.Side != side {
			continue
		}
		if side == contracts.Call && r.Strike < float64(atm) {
			continue
		}
		if side == contracts.Put && r.Strike > float64(atm) {
			continue
		}
		out = append(out, sideRow{Row: r, distance: math.Abs(r.Strike - float64(atm))})
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].Strike < out[j].Strike
		}
		return out[i].Strike > out[j].Strike
	})
	return out
}

// detectSide runs the pre-filter, curve fit, and classification for one
// side, falling back to simple-stats if the fit fails.
func (d *Detector) detectSide(rows []sideRow, side contracts.Side, tsMS int64) []contracts.Anomaly {
	filtered := preFilter(rows)
	if len(filtered) < 5 {
		return nil
	}

	xs := make([]float64, len(filtered))
	ys := make([]float64, len(filtered))
	for i, r := range filtered {
		xs[i] = r.distance
		ys[i] = r.Mid
	}

	a, b, ok := fitExponentialDecay(xs, ys)
	if !ok {
		d.log.Debug("curve fit failed, falling back to simple-stats", "side", side)
		return detectFallback(filtered, side, tsMS, d.cfg.Threshold)
	}

	type scored struct {
		row          sideRow
		expected     float64
		deviationPct float64
	}
	scoredRows := make([]scored, 0, len(filtered))
	for _, r := range filtered {
		expected := a * math.Exp(-b*r.distance)
		if expected <= 0 {
			// Guarded per spec.md §4.D: impossible given a>0 bound, but
			// division-by-zero must never happen.
			continue
		}
		deviationPct := (r.Mid - expected) / expected * 100
		scoredRows = append(scoredRows, scored{row: r, expected: expected, deviationPct: deviationPct})
	}
	if len(scoredRows) < 4 {
		return nil
	}

	devs := make([]float64, len(scoredRows))
	for i, s := range scoredRows {
		devs[i] = s.deviationPct
	}
	mean, std := meanStd(devs)

	var anomalies []contracts.Anomaly
	for _, s := range scoredRows {
		z := 0.0
		if std > 0 {
			z = (s.deviationPct - mean) / std
		}
		if std == 0 {
			continue // zero variance: no anomalies (spec.md §4.D numeric edge case)
		}
		if s.deviationPct < -10 && z < -d.cfg.Threshold {
			anomalies = append(anomalies, contracts.Anomaly{
				TsMS:         tsMS,
				Symbol:       "SPY",
				Strike:       s.row.Strike,
				Side:         side,
				Bid:          s.row.Bid,
				Ask:          s.row.Ask,
				Mid:          s.row.Mid,
				Expected:     s.expected,
				DeviationPct: s.deviationPct,
				ZScore:       z,
				Volume:       s.row.Volume,
				OpenInterest: s.row.OpenInterest,
				Severity:     severity(z, s.deviationPct),
			})
		}
	}
	return anomalies
}

// preFilter drops non-positive mids and rows with relative spread >= 0.5
// (spec.md §4.D step 2).
func preFilter(rows []sideRow) []sideRow {
	var out []sideRow
	for _, r := range rows {
		if r.Mid <= 0 {
			continue
		}
		spread := (r.Ask - r.Bid) / r.Mid
		if spread >= 0.5 {
			continue
		}
		out = append(out, r)
	}
	return out
}

// severity classifies HIGH if |z|>2.0 or |dev|>50; MEDIUM if |z|>1.0 or
// |dev|>30; LOW otherwise (spec.md §4.D step 6).
func severity(z, deviationPct float64) contracts.Severity {
	absZ := math.Abs(z)
	absDev := math.Abs(deviationPct)
	switch {
	case absZ > 2.0 || absDev > 50:
		return contracts.SeverityHigh
	case absZ > 1.0 || absDev > 30:
		return contracts.SeverityMedium
	default:
		return contracts.SeverityLow
	}
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(len(xs))

	sq := 0.0
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	std = math.Sqrt(sq / float64(len(xs)))
	return mean, std
}
