package scanlog

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesRotatedCSV(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	row := Row{
		TsMS:         time.Now().UnixMilli(),
		Underlying:   505.1,
		MarketStatus: "OPEN",
		ActiveSubs:   22,
		AnomalyCount: 1,
		CumCallFlow:  1500,
		CumPutFlow:   -800,
	}
	l.Log(row)
	l.Close()

	// Close drains the channel through run()'s select; give the writer
	// goroutine a moment to flush and close the file.
	time.Sleep(50 * time.Millisecond)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "scan-")

	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(content), "ts,underlying,market_status")
	assert.Contains(t, string(content), "OPEN")
}

func TestLogNonBlockingWhenChannelFull(t *testing.T) {
	l := &Logger{ch: make(chan Row, 1), log: slog.Default()}
	l.Log(Row{TsMS: 1})
	// Second Log must not block even though nothing drains the channel.
	done := make(chan struct{})
	go func() {
		l.Log(Row{TsMS: 2})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Log blocked on a full channel")
	}
}
