package detector

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spyoptions/internal/contracts"
	"spyoptions/internal/subscription"
)

func TestDetectCleanAnomaly(t *testing.T) {
	mids := []float64{6.00, 4.92, 4.04, 3.31, 2.72, 2.23, 1.83, 1.50, 1.23, 1.01}
	mids[5] = 1.40 // strike 505 replaced with an underpriced mid

	rows := make([]subscription.Row, 0, len(mids))
	for i, mid := range mids {
		strike := float64(500 + i)
		bid := mid - 0.02
		ask := mid + 0.02
		rows = append(rows, subscription.Row{
			Strike: strike,
			Side:   contracts.Call,
			Bid:    bid,
			Ask:    ask,
			Last:   mid,
			Mid:    mid,
		})
	}

	d := New(Config{Threshold: 0.5})
	now := time.Date(2026, 7, 30, 14, 30, 0, 0, time.UTC)
	anomalies := d.Detect(rows, 500.00, now)

	require.Len(t, anomalies, 1)
	a := anomalies[0]
	assert.Equal(t, 505.0, a.Strike)
	assert.Equal(t, contracts.Call, a.Side)
	assert.InDelta(t, 2.21, a.Expected, 0.15)
	assert.InDelta(t, -36.7, a.DeviationPct, 3.0)
	assert.Less(t, a.ZScore, -0.5)
	assert.Equal(t, contracts.SeverityMedium, a.Severity)
}

func TestDetectNoAnomalyOnCleanCurve(t *testing.T) {
	mids := []float64{6.00, 4.92, 4.04, 3.31, 2.72, 2.23, 1.83, 1.50, 1.23, 1.01}
	rows := make([]subscription.Row, 0, len(mids))
	for i, mid := range mids {
		strike := float64(500 + i)
		rows = append(rows, subscription.Row{
			Strike: strike,
			Side:   contracts.Call,
			Bid:    mid - 0.02,
			Ask:    mid + 0.02,
			Last:   mid,
			Mid:    mid,
		})
	}

	d := New(Config{})
	anomalies := d.Detect(rows, 500.00, time.Now())
	assert.Empty(t, anomalies)
}

func TestPreFilterDropsWideSpreadAndNonPositiveMid(t *testing.T) {
	rows := []sideRow{
		{Row: subscription.Row{Strike: 500, Bid: 1.0, Ask: 1.1, Mid: 1.05}, distance: 0},
		{Row: subscription.Row{Strike: 501, Bid: 0, Ask: 0, Mid: 0}, distance: 1},
		{Row: subscription.Row{Strike: 502, Bid: 0.1, Ask: 2.0, Mid: 1.05}, distance: 2}, // spread/mid >= 0.5
	}
	got := preFilter(rows)
	require.Len(t, got, 1)
	assert.Equal(t, 500.0, got[0].Strike)
}

func TestSeverityThresholds(t *testing.T) {
	assert.Equal(t, contracts.SeverityHigh, severity(-2.5, -20))
	assert.Equal(t, contracts.SeverityHigh, severity(-1.5, -55))
	assert.Equal(t, contracts.SeverityMedium, severity(-1.5, -20))
	assert.Equal(t, contracts.SeverityMedium, severity(-0.5, -35))
	assert.Equal(t, contracts.SeverityLow, severity(-0.5, -5))
}

func TestFitExponentialDecayRecoversParameters(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = 6.0 * math.Exp(-0.2*x)
	}
	a, b, ok := fitExponentialDecay(xs, ys)
	require.True(t, ok)
	assert.InDelta(t, 6.0, a, 0.05)
	assert.InDelta(t, 0.2, b, 0.02)
}

func TestDetectFallbackFlagsConsecutiveStrikeJump(t *testing.T) {
	// A flat curve with one sharp strike-to-strike jump: the jump's pct
	// change (60%) stands out against the mostly-zero neighbor-to-neighbor
	// changes, while the 37.5% drop back down at 503 stays under the
	// threshold.
	rows := []sideRow{
		{Row: subscription.Row{Strike: 500, Bid: 4.9, Ask: 5.1, Mid: 5.0}},
		{Row: subscription.Row{Strike: 501, Bid: 4.9, Ask: 5.1, Mid: 5.0}},
		{Row: subscription.Row{Strike: 502, Bid: 7.9, Ask: 8.1, Mid: 8.0}}, // sharp jump from its neighbor
		{Row: subscription.Row{Strike: 503, Bid: 4.9, Ask: 5.1, Mid: 5.0}},
		{Row: subscription.Row{Strike: 504, Bid: 4.9, Ask: 5.1, Mid: 5.0}},
	}
	out := detectFallback(rows, contracts.Call, 1000, 1.0)
	require.Len(t, out, 1)
	assert.Equal(t, 502.0, out[0].Strike)
	assert.InDelta(t, 5.0, out[0].Expected, 1e-9)
	assert.Greater(t, out[0].DeviationPct, 0.0)
}

func TestDetectFallbackNoJumpsOnFlatCurve(t *testing.T) {
	rows := []sideRow{
		{Row: subscription.Row{Strike: 500, Bid: 4.9, Ask: 5.1, Mid: 5.0}},
		{Row: subscription.Row{Strike: 501, Bid: 4.9, Ask: 5.1, Mid: 5.0}},
		{Row: subscription.Row{Strike: 502, Bid: 4.9, Ask: 5.1, Mid: 5.0}},
		{Row: subscription.Row{Strike: 503, Bid: 4.9, Ask: 5.1, Mid: 5.0}},
		{Row: subscription.Row{Strike: 504, Bid: 4.9, Ask: 5.1, Mid: 5.0}},
	}
	out := detectFallback(rows, contracts.Call, 1000, 0.5)
	assert.Empty(t, out, "identical consecutive mids produce a zero std and must not flag")
}
