package volumedelta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstScanEmitsZeroDeltas(t *testing.T) {
	tr := New()
	snap := tr.Update(Scan{TsMS: 1, CallsATM: 1_000_000, PutsATM: 900_000})
	assert.Zero(t, snap.CallDelta)
	assert.Zero(t, snap.PutDelta)
}

func TestWindowShrinkClampsDeltaToZero(t *testing.T) {
	tr := New()
	tr.Update(Scan{TsMS: 1, CallsATM: 1_000_000, PutsATM: 900_000})

	// Scan B: window shifted, fewer strikes contribute, aggregate calls
	// volume is lower even though no volume actually reversed.
	snap := tr.Update(Scan{TsMS: 2, CallsATM: 950_000, PutsATM: 900_000})
	assert.Zero(t, snap.CallDelta, "a shrinking window must never produce a negative delta")
	assert.Zero(t, snap.PutDelta)
}

func TestPositiveDeltaPassesThrough(t *testing.T) {
	tr := New()
	tr.Update(Scan{TsMS: 1, CallsATM: 1_000_000, PutsATM: 900_000})
	snap := tr.Update(Scan{TsMS: 2, CallsATM: 1_050_000, PutsATM: 910_000})
	assert.Equal(t, 50_000.0, snap.CallDelta)
	assert.Equal(t, 10_000.0, snap.PutDelta)
}

func TestChangePctLeftUnsetForIngressToCompute(t *testing.T) {
	tr := New()
	snap := tr.Update(Scan{TsMS: 1, Underlying: 505, PrevClose: 500, CallsATM: 100, PutsATM: 100})
	assert.Nil(t, snap.ChangePct)
}
