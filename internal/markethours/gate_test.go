package markethours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGateInactiveBeforeWarmup(t *testing.T) {
	g := NewGate(2026)
	// Monday 2026-07-27 08:59 America/New_York.
	mon := time.Date(2026, 7, 27, 8, 59, 0, 0, nyse)
	assert.False(t, g.IsActive(mon))
	assert.Equal(t, 960, g.SecondsUntilActive(mon)) // 16 minutes
}

func TestGateActiveAtWarmupStart(t *testing.T) {
	g := NewGate(2026)
	mon := time.Date(2026, 7, 27, 9, 15, 0, 0, nyse)
	assert.True(t, g.IsActive(mon))
	assert.Equal(t, 0, g.SecondsUntilActive(mon))
}

func TestGateInactiveOnHoliday(t *testing.T) {
	g := NewGate(2026)
	christmas := time.Date(2026, 12, 25, 10, 0, 0, 0, nyse)
	assert.False(t, g.IsActive(christmas))
	assert.False(t, g.IsRegularSession(christmas))
}

func TestGateInactiveOnWeekend(t *testing.T) {
	g := NewGate(2026)
	sat := time.Date(2026, 8, 1, 10, 0, 0, 0, nyse)
	assert.False(t, g.IsActive(sat))
}

func TestGateRegularSessionWindow(t *testing.T) {
	g := NewGate(2026)
	open := time.Date(2026, 7, 27, 9, 30, 0, 0, nyse)
	closeT := time.Date(2026, 7, 27, 16, 0, 0, 0, nyse)
	beforeOpen := time.Date(2026, 7, 27, 9, 20, 0, 0, nyse)
	assert.True(t, g.IsRegularSession(open))
	assert.True(t, g.IsRegularSession(closeT))
	assert.False(t, g.IsRegularSession(beforeOpen))
}

func TestSecondsUntilActiveUncappedAcrossWeekend(t *testing.T) {
	g := NewGate(2026)
	// Friday evening, next active window is Monday morning: far beyond
	// any loop-level sleep cap. The gate itself returns the raw value;
	// bounding the sleep is the scan loop's job.
	fri := time.Date(2026, 7, 24, 20, 0, 0, 0, nyse)
	mon := time.Date(2026, 7, 27, 9, 15, 0, 0, nyse)
	want := int(mon.Sub(fri).Seconds())
	assert.Equal(t, want, g.SecondsUntilActive(fri))
	assert.Greater(t, g.SecondsUntilActive(fri), 300)
}

func TestGoodFridayIsObservedHoliday(t *testing.T) {
	g := NewGate(2026)
	gf := goodFriday(2026)
	assert.False(t, g.IsActive(time.Date(gf.Year(), gf.Month(), gf.Day(), 10, 0, 0, 0, nyse)))
}
