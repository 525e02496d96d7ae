package detector

import (
	"sort"

	"spyoptions/internal/contracts"
)

// detectFallback runs the simple-stats detector used when the curve fit
// fails to converge (spec.md §4.D fallback path), grounded on
// _examples/original_source/docker/detector/anomaly_algo.py's
// `_detect_in_series`: sort by strike, take the absolute percentage change
// in mid price between consecutive strikes, z-score those changes against
// the side's own mean/std, and flag a jump whose z-score magnitude clears
// the threshold. Unlike the curve-fit path, this statistic is direction-
// agnostic by construction: pct change is abs-valued before z-scoring, so
// both a spike and a sudden cheapening between neighboring strikes flag the
// same way. `changePct > 0` only excludes the no-change case, not a
// direction.
func detectFallback(rows []sideRow, side contracts.Side, tsMS int64, threshold float64) []contracts.Anomaly {
	if len(rows) < 4 {
		return nil
	}

	byStrike := make([]sideRow, len(rows))
	copy(byStrike, rows)
	sort.Slice(byStrike, func(i, j int) bool { return byStrike[i].Strike < byStrike[j].Strike })

	// changes[i] is the absolute percentage change from byStrike[i-1] to
	// byStrike[i]; there is no change defined for the first strike.
	changes := make([]float64, len(byStrike))
	hasChange := make([]bool, len(byStrike))
	for i := 1; i < len(byStrike); i++ {
		prev := byStrike[i-1].Mid
		if prev == 0 {
			continue
		}
		changes[i] = absFloat((byStrike[i].Mid - prev) / prev * 100)
		hasChange[i] = true
	}

	var present []float64
	for i, ok := range hasChange {
		if ok {
			present = append(present, changes[i])
		}
	}
	if len(present) < 3 {
		return nil
	}
	mean, std := meanStd(present)
	if std == 0 {
		return nil
	}

	var out []contracts.Anomaly
	for i, r := range byStrike {
		if !hasChange[i] {
			continue
		}
		changePct := changes[i]
		z := (changePct - mean) / std
		if absFloat(z) > threshold && changePct > 0 {
			out = append(out, contracts.Anomaly{
				TsMS:         tsMS,
				Symbol:       "SPY",
				Strike:       r.Strike,
				Side:         side,
				Bid:          r.Bid,
				Ask:          r.Ask,
				Mid:          r.Mid,
				Expected:     byStrike[i-1].Mid,
				DeviationPct: changePct,
				ZScore:       z,
				Volume:       r.Volume,
				OpenInterest: r.OpenInterest,
				Severity:     severity(z, changePct),
			})
		}
	}
	return out
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
