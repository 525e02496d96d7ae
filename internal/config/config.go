// Package config builds a single immutable configuration value at process
// start. There are no package-level settings singletons: Load returns a
// *Config that callers pass by reference into every subsystem constructor.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting for both the detector
// (producer) and ingress (consumer) processes. Not every field applies to
// both; each binary reads only the fields it needs.
type Config struct {
	// Broker gateway.
	GatewayHost     string
	GatewayPort     int
	GatewayClientID string

	// Trading / detection parameters.
	AnomalyThreshold    float64
	ScanIntervalSeconds int
	StrikesRangePercent float64
	MaxStrikesLimit     int

	// Ingress.
	BackendURL          string
	BroadcastHubSecret  string
	StorageDSN          string
	ListenAddr          string
	BroadcastTokenTTL   time.Duration
	HTTPRequestTimeout  time.Duration
	DetectorPostTimeout time.Duration
}

// Default returns a Config populated with the spec's documented defaults.
func Default() *Config {
	return &Config{
		GatewayHost:         "127.0.0.1",
		GatewayPort:         7496,
		GatewayClientID:     "spyoptions-detector",
		AnomalyThreshold:    0.5,
		ScanIntervalSeconds: 3,
		StrikesRangePercent: 1.0,
		MaxStrikesLimit:     5,
		BackendURL:          "http://127.0.0.1:8090",
		StorageDSN:          "file:spyoptions.db?cache=shared&_pragma=busy_timeout(5000)",
		ListenAddr:          ":8090",
		BroadcastTokenTTL:   time.Hour,
		HTTPRequestTimeout:  5 * time.Second,
		DetectorPostTimeout: 10 * time.Second,
	}
}

// Load reads environment variables (optionally from a .env file, if present
// in the working directory) on top of Default, validates the result, and
// returns it. Hostname-derived GatewayClientID requirements are honored: if
// GATEWAY_CLIENT_ID is unset, the client id is derived from the OS hostname
// so multiple producer instances never collide.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if v := os.Getenv("GATEWAY_HOST"); v != "" {
		cfg.GatewayHost = v
	}
	if v := os.Getenv("GATEWAY_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parsing GATEWAY_PORT: %w", err)
		}
		cfg.GatewayPort = n
	}
	if v := os.Getenv("GATEWAY_CLIENT_ID"); v != "" {
		cfg.GatewayClientID = v
	} else if host, err := os.Hostname(); err == nil && host != "" {
		cfg.GatewayClientID = "spyoptions-" + host
	}

	if v := os.Getenv("ANOMALY_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing ANOMALY_THRESHOLD: %w", err)
		}
		cfg.AnomalyThreshold = f
	}
	if v := os.Getenv("SCAN_INTERVAL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parsing SCAN_INTERVAL_SECONDS: %w", err)
		}
		cfg.ScanIntervalSeconds = n
	}
	if v := os.Getenv("STRIKES_RANGE_PERCENT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing STRIKES_RANGE_PERCENT: %w", err)
		}
		cfg.StrikesRangePercent = f
	}
	if v := os.Getenv("MAX_STRIKES_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parsing MAX_STRIKES_LIMIT: %w", err)
		}
		cfg.MaxStrikesLimit = n
	}

	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("BROADCAST_HUB_SECRET"); v != "" {
		cfg.BroadcastHubSecret = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.StorageDSN = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ScanIntervalSeconds <= 0 {
		return fmt.Errorf("SCAN_INTERVAL_SECONDS must be positive, got %d", c.ScanIntervalSeconds)
	}
	if c.MaxStrikesLimit <= 0 || c.MaxStrikesLimit > 20 {
		return fmt.Errorf("MAX_STRIKES_LIMIT must be in (0,20], got %d", c.MaxStrikesLimit)
	}
	if c.AnomalyThreshold <= 0 {
		return fmt.Errorf("ANOMALY_THRESHOLD must be positive, got %f", c.AnomalyThreshold)
	}
	if c.GatewayClientID == "" {
		return fmt.Errorf("gateway client id must not be empty")
	}
	return nil
}
