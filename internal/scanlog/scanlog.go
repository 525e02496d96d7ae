// Package scanlog implements an async per-scan audit logger, grounded on
// internal/logger/csv.go's architecture (bounded channel, non-blocking
// Log(), daily CSV rotation, periodic flush). The teacher's crypto-specific
// decision layer (HTFBias/MarketState/ActionHint) is dropped — there is no
// counterpart operation in this domain — and the row shape is replaced
// with a scan-loop audit record (spec.md §4.C).
package scanlog

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	chanSize    = 4096
	bufSize     = 1 << 16
	flushPeriod = 1 * time.Second
)

// Row is one scan loop iteration's audit record.
type Row struct {
	TsMS          int64
	Underlying    float64
	MarketStatus  string
	ActiveSubs    int
	AnomalyCount  int
	CumCallFlow   float64
	CumPutFlow    float64
	ScanDurationMS float64
	Error         string
}

// Logger is an async CSV writer for scan audit rows.
type Logger struct {
	ch  chan Row
	dir string
	log *slog.Logger
}

// New creates the logger and starts its background goroutine. dir is the
// directory scan-<day>.csv files are written into.
func New(dir string) *Logger {
	l := &Logger{ch: make(chan Row, chanSize), dir: dir, log: slog.With("component", "scanlog")}
	go l.run()
	return l
}

// Log is a non-blocking send; the row is dropped if the channel is full
// rather than stalling the scan loop.
func (l *Logger) Log(row Row) {
	select {
	case l.ch <- row:
	default:
		l.log.Warn("scan log backed up, dropping row")
	}
}

// Close closes the row channel; the writer goroutine then flushes and
// closes the file on its own. Close does not wait for that to finish.
// Callers should Close exactly once at shutdown.
func (l *Logger) Close() {
	close(l.ch)
}

func (l *Logger) run() {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		l.log.Error("failed to create log dir", "error", err)
		return
	}

	var (
		currentDay string
		file       *os.File
		writer     *bufio.Writer
	)

	ticker := time.NewTicker(flushPeriod)
	defer ticker.Stop()

	openFile := func(day string) {
		if file != nil {
			writer.Flush()
			file.Close()
		}
		path := filepath.Join(l.dir, "scan-"+day+".csv")
		var err error
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			l.log.Error("failed to open log file", "path", path, "error", err)
			return
		}
		writer = bufio.NewWriterSize(file, bufSize)
		info, _ := file.Stat()
		if info != nil && info.Size() == 0 {
			fmt.Fprintln(writer, "ts,underlying,market_status,active_subs,anomaly_count,cum_call_flow,cum_put_flow,scan_duration_ms,error")
		}
		currentDay = day
	}

	for {
		select {
		case row, ok := <-l.ch:
			if !ok {
				if writer != nil {
					writer.Flush()
				}
				if file != nil {
					file.Close()
				}
				return
			}
			day := time.UnixMilli(row.TsMS).UTC().Format("2006-01-02")
			if day != currentDay {
				openFile(day)
			}
			if writer == nil {
				continue
			}
			fmt.Fprintf(writer, "%d,%.2f,%s,%d,%d,%.2f,%.2f,%.2f,%s\n",
				row.TsMS, row.Underlying, row.MarketStatus, row.ActiveSubs,
				row.AnomalyCount, row.CumCallFlow, row.CumPutFlow, row.ScanDurationMS, row.Error)
		case <-ticker.C:
			if writer != nil {
				writer.Flush()
			}
		}
	}
}
