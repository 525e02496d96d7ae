package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spyoptions/internal/contracts"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAnomalyRoundTrip(t *testing.T) {
	s := openTestStore(t)
	a := contracts.Anomaly{
		TsMS: 1000, Symbol: "SPY", Strike: 505, Side: contracts.Call,
		Bid: 1.3, Ask: 1.5, Mid: 1.4, Expected: 2.2, DeviationPct: -36.7,
		ZScore: -1.1, Volume: 10, OpenInterest: 100, Severity: contracts.SeverityMedium,
	}
	require.NoError(t, s.SaveAnomaly(a))

	got, err := s.RecentAnomalies(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a, got[0])
}

func TestAnomalyUpsertOverwritesSameKey(t *testing.T) {
	s := openTestStore(t)
	a := contracts.Anomaly{TsMS: 1000, Symbol: "SPY", Strike: 505, Side: contracts.Call, Bid: 1, Ask: 1.2, Severity: contracts.SeverityLow}
	require.NoError(t, s.SaveAnomaly(a))
	a.Severity = contracts.SeverityHigh
	require.NoError(t, s.SaveAnomaly(a))

	got, err := s.RecentAnomalies(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, contracts.SeverityHigh, got[0].Severity)
}

func TestVolumeHistoryNewestFirst(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveVolumeSnapshot(contracts.VolumeSnapshot{TsMS: 1000, CallsATM: 1}))
	require.NoError(t, s.SaveVolumeSnapshot(contracts.VolumeSnapshot{TsMS: 3000, CallsATM: 3}))
	require.NoError(t, s.SaveVolumeSnapshot(contracts.VolumeSnapshot{TsMS: 2000, CallsATM: 2}))

	got, err := s.RecentVolumeSnapshots(10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(3000), got[0].TsMS)
	assert.Equal(t, int64(2000), got[1].TsMS)
	assert.Equal(t, int64(1000), got[2].TsMS)
}

func TestMarketStateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.LoadMarketState()
	require.NoError(t, err)
	assert.False(t, ok)

	m := contracts.MarketState{Price: 505.1, PreviousClose: 500, ATMCenter: 505, ATMMin: 500, ATMMax: 510, Status: contracts.StatusOpen}
	require.NoError(t, s.SaveMarketState(m))

	got, ok, err := s.LoadMarketState()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, m, got)
}
