// Command detector runs the producer process: the single-threaded scan
// loop that polls the gateway, reconciles ATM subscriptions, runs anomaly
// detection, and posts results to the ingress API (spec.md §4.C).
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"spyoptions/internal/aggregator"
	"spyoptions/internal/config"
	"spyoptions/internal/contracts"
	"spyoptions/internal/detector"
	"spyoptions/internal/gateway"
	"spyoptions/internal/ingressclient"
	"spyoptions/internal/markethours"
	"spyoptions/internal/metrics"
	"spyoptions/internal/scanlog"
	"spyoptions/internal/subscription"
	"spyoptions/internal/volumedelta"
)

const (
	noPriceSleep       = 1 * time.Second
	emptySnapshotSleep = 1 * time.Second
	scanLogDir         = "logs"

	// maxGateSleepSeconds bounds the loop's sleep while the gate is
	// inactive (spec.md §4.C: "sleep for min(300s, seconds_until_active)").
	maxGateSleepSeconds = 300
)

// cycle bundles the scan loop's collaborators so run stays a
// single readable function instead of a long parameter list.
type cycle struct {
	cfg    *config.Config
	gate   *markethours.Gate
	gw     *gateway.WSClient
	subMgr *subscription.Manager
	det    *detector.Detector
	agg    *aggregator.Aggregator
	vol    *volumedelta.Tracker
	sLog   *scanlog.Logger
	client *ingressclient.Client
	log    *slog.Logger

	// prevCloseDate is the UTC date ("2006-01-02") for which
	// previous_close has already been captured into MarketState.
	// previous_close is written exactly once per trading day (spec.md §3,
	// §8), so a repeat capture on the same date is skipped.
	prevCloseDate string
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	log := slog.With("component", "detector-main")

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	// 1. Gateway connection.
	gw := gateway.NewWSClient("ws://" + cfg.GatewayHost + ":" + strconv.Itoa(cfg.GatewayPort) + "/ws")
	gw.Start(ctx)

	// 2. Market-hours gate, subscription manager, detector pipeline.
	c := &cycle{
		cfg:    cfg,
		gate:   markethours.NewGate(time.Now().Year(), time.Now().Year()+1),
		gw:     gw,
		subMgr: subscription.NewManager(gw, cfg.MaxStrikesLimit),
		det:    detector.New(detector.Config{Threshold: cfg.AnomalyThreshold}),
		agg:    aggregator.New(),
		vol:    volumedelta.New(),
		sLog:   scanlog.New(scanLogDir),
		client: ingressclient.New(cfg.BackendURL, cfg.DetectorPostTimeout),
		log:    log,
	}

	// 3. Shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	log.Info("detector starting", "backend", cfg.BackendURL, "scan_interval_s", cfg.ScanIntervalSeconds)

	scanInterval := time.Duration(cfg.ScanIntervalSeconds) * time.Second
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			c.sLog.Close()
			return
		default:
		}
		c.run(ctx)
		time.Sleep(scanInterval)
	}
}

// run executes one scan loop iteration (spec.md §4.C). It never panics the
// loop: per-cycle errors are logged and counted, and the loop continues on
// the next tick.
func (c *cycle) run(ctx context.Context) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("scan cycle panicked", "panic", r)
			metrics.ScanErrorsTotal.WithLabelValues("panic").Inc()
		}
		metrics.ScanDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	now := time.Now()
	if !c.gate.IsActive(now) {
		wait := c.gate.SecondsUntilActive(now)
		if wait > maxGateSleepSeconds {
			wait = maxGateSleepSeconds
		}
		time.Sleep(time.Duration(wait) * time.Second)
		return
	}

	metrics.GatewayConnected.Set(boolToFloat(c.gw.Connected()))

	price, ok := c.gw.UnderlyingPrice()
	if !ok {
		time.Sleep(noPriceSleep)
		return
	}
	metrics.UnderlyingPrice.Set(price)

	if err := c.client.PostSpyMarketSnapshot(ctx, contracts.SpyMarketSnapshot{
		TsUnix: now.Unix(),
		Price:  price,
	}); err != nil {
		c.log.Warn("post underlying tick failed", "error", err)
		metrics.ScanErrorsTotal.WithLabelValues("post_spy_market").Inc()
	}

	c.captureMarketState(ctx, now, price)

	snap := c.subMgr.Reconcile(ctx, price)
	metrics.ActiveSubscriptions.Set(float64(c.subMgr.ActiveCount()))

	validRows := filterValidRows(snap.Rows)
	if len(validRows) == 0 {
		time.Sleep(emptySnapshotSleep)
		return
	}

	tsMS := now.UnixMilli()

	anomalies := c.det.Detect(validRows, price, now)
	if len(anomalies) > 0 {
		batch := contracts.AnomaliesBatch{
			Count:     len(anomalies),
			Anomalies: anomalies,
			LastScan:  now.UTC().Format(time.RFC3339),
		}
		if err := c.client.PostAnomalies(ctx, batch); err != nil {
			c.log.Warn("post anomalies failed", "error", err)
			metrics.ScanErrorsTotal.WithLabelValues("post_anomalies").Inc()
		}
	}

	_, atmMin, atmMax := subscription.ATMCenterAndWindow(price, c.cfg.MaxStrikesLimit)
	calls, puts := countSides(validRows)
	volSnap := c.vol.Update(volumedelta.Scan{
		TsMS:       tsMS,
		Underlying: price,
		CallsATM:   sumVolume(validRows, contracts.Call),
		PutsATM:    sumVolume(validRows, contracts.Put),
		ATMRange:   contracts.ATMRange{Min: atmMin, Max: atmMax},
		Strikes:    contracts.StrikeCounts{Calls: calls, Puts: puts},
	})
	if err := c.client.PostVolumeSnapshot(ctx, volSnap); err != nil {
		c.log.Warn("post volume snapshot failed", "error", err)
		metrics.ScanErrorsTotal.WithLabelValues("post_volume").Inc()
	}

	nowSecond := now.Unix()
	for _, row := range validRows {
		callContrib, putContrib := c.agg.Tick(aggregator.Tick{
			Strike: row.Strike, Side: row.Side,
			Bid: row.Bid, Ask: row.Ask, Last: row.Last, Volume: row.Volume,
		})
		if closed, didClose := c.agg.AddToBucket(nowSecond, callContrib, putContrib); didClose {
			flow := c.agg.Snapshot(closed)
			if err := c.client.PostFlowSnapshot(ctx, flow); err != nil {
				c.log.Warn("post flow snapshot failed", "error", err)
				metrics.ScanErrorsTotal.WithLabelValues("post_flow").Inc()
			}
		}
	}

	cumCall, cumPut := c.agg.CumulativeFlow()
	c.sLog.Log(scanlog.Row{
		TsMS:           tsMS,
		Underlying:     price,
		ActiveSubs:     c.subMgr.ActiveCount(),
		AnomalyCount:   len(anomalies),
		CumCallFlow:    cumCall,
		CumPutFlow:     cumPut,
		ScanDurationMS: float64(time.Since(start).Microseconds()) / 1000,
	})
}

// captureMarketState patches the ingress's MarketState with the current
// ATM window and, the first time it is observed each trading day, the
// gateway's captured previous-session close (spec.md §3: "previous_close
// is written exactly once per trading day").
func (c *cycle) captureMarketState(ctx context.Context, now time.Time, price float64) {
	center, atmMin, atmMax := subscription.ATMCenterAndWindow(price, c.cfg.MaxStrikesLimit)

	patch := map[string]any{
		"price":      price,
		"atm_center": center,
		"atm_min":    atmMin,
		"atm_max":    atmMax,
		"status":     string(contracts.StatusOpen),
	}

	today := now.In(time.UTC).Format("2006-01-02")
	if prevClose, ok := c.gw.PreviousClose(); ok && c.prevCloseDate != today {
		patch["prev_close"] = prevClose
		c.prevCloseDate = today
	}

	if err := c.client.PatchMarketState(ctx, patch); err != nil {
		c.log.Warn("patch market state failed", "error", err)
		metrics.ScanErrorsTotal.WithLabelValues("patch_market_state").Inc()
	}
}

func filterValidRows(rows []subscription.Row) []subscription.Row {
	out := make([]subscription.Row, 0, len(rows))
	for _, r := range rows {
		if r.Bid > 0 || r.Ask > 0 || r.Mid > 0 {
			out = append(out, r)
		}
	}
	return out
}

func sumVolume(rows []subscription.Row, side contracts.Side) float64 {
	var total float64
	for _, r := range rows {
		if r.Side == side {
			total += r.Volume
		}
	}
	return total
}

func countSides(rows []subscription.Row) (calls, puts int) {
	for _, r := range rows {
		if r.Side == contracts.Call {
			calls++
		} else {
			puts++
		}
	}
	return calls, puts
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
