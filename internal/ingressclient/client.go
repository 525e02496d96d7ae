// Package ingressclient is the detector process's HTTP client for posting
// scan results to the ingress API (spec.md §4.H, §7). Grounded on the
// teacher's OIPoller (internal/ingest/oi.go): a plain *http.Client with a
// hard timeout, no retry middleware library. Transient upstream failures
// get a single retry before the caller moves on to the next scan cycle
// (spec.md §7's error-handling table).
package ingressclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"spyoptions/internal/contracts"
)

// Client posts detector payloads to the ingress API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// New builds a Client. timeout bounds every individual HTTP attempt.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     slog.With("component", "ingressclient"),
	}
}

// PostAnomalies sends a batch of detected anomalies.
func (c *Client) PostAnomalies(ctx context.Context, batch contracts.AnomaliesBatch) error {
	return c.postWithRetry(ctx, "/anomalies", batch)
}

// PostVolumeSnapshot sends one volume snapshot.
func (c *Client) PostVolumeSnapshot(ctx context.Context, v contracts.VolumeSnapshot) error {
	return c.postWithRetry(ctx, "/volumes", v)
}

// PostFlowSnapshot sends one closed-bucket flow snapshot.
func (c *Client) PostFlowSnapshot(ctx context.Context, f contracts.FlowSnapshot) error {
	return c.postWithRetry(ctx, "/flow", f)
}

// PostSpyMarketSnapshot sends one raw underlying tick.
func (c *Client) PostSpyMarketSnapshot(ctx context.Context, m contracts.SpyMarketSnapshot) error {
	return c.postWithRetry(ctx, "/spy-market", m)
}

// PatchMarketState sends a sparse market-state update.
func (c *Client) PatchMarketState(ctx context.Context, patch any) error {
	return c.postWithRetry(ctx, "/market/state", patch)
}

// postWithRetry POSTs payload as JSON to path, retrying once after a short
// pause if the first attempt fails. Every failure is retried (network
// error, 5xx, and also 4xx); the kind of failure is not inspected.
func (c *Client) postWithRetry(ctx context.Context, path string, payload any) error {
	err := c.post(ctx, path, payload)
	if err == nil {
		return nil
	}
	c.log.Warn("post failed, retrying once", "path", path, "error", err)
	time.Sleep(200 * time.Millisecond)
	if err := c.post(ctx, path, payload); err != nil {
		return fmt.Errorf("post %s after retry: %w", path, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}
	return nil
}
