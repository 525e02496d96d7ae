// Package metrics exposes Prometheus instrumentation for the ingress HTTP
// API and the detector scan loop. Grounded on client_golang's standard
// promauto/promhttp idiom (github.com/prometheus/client_golang, present in
// the dependency graph of ChoSanghyuk-blackholedex and the broader pack);
// no example repo exercises this client directly from its own source, so
// the wiring follows the library's own documented convention rather than a
// pack-specific pattern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPRequestsTotal counts ingress requests by route and status class.
var HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spyoptions_http_requests_total",
	Help: "Total ingress HTTP requests by route and status.",
}, []string{"route", "status"})

// AnomaliesBySeverity counts ingested anomalies by severity, whether or not
// persisting them succeeded.
var AnomaliesBySeverity = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spyoptions_anomalies_total",
	Help: "Total anomalies ingested, by severity.",
}, []string{"severity"})

// ScanErrorsTotal counts scan-loop failures by class.
var ScanErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spyoptions_scan_errors_total",
	Help: "Total scan loop errors, by class.",
}, []string{"class"})

// GatewayConnected reports whether the broker gateway connection is live.
var GatewayConnected = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "spyoptions_gateway_connected",
	Help: "1 if the broker gateway websocket is connected, else 0.",
})

// UnderlyingPrice reports the last observed SPY price.
var UnderlyingPrice = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "spyoptions_underlying_price",
	Help: "Last observed SPY underlying price.",
})

// ActiveSubscriptions reports the current ATM subscription count.
var ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "spyoptions_active_subscriptions",
	Help: "Current number of active option-contract subscriptions.",
})

// BroadcastOverflowTotal counts dropped broadcast jobs due to a full queue.
var BroadcastOverflowTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "spyoptions_broadcast_overflow_total",
	Help: "Total broadcast jobs dropped because the sink's queue was full.",
})

// ScanDurationSeconds histograms one full scan loop iteration's duration.
var ScanDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "spyoptions_scan_duration_seconds",
	Help:    "Duration of one scan loop iteration.",
	Buckets: prometheus.DefBuckets,
})
