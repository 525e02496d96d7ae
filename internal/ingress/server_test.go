package ingress

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spyoptions/internal/broadcast"
	"spyoptions/internal/contracts"
	"spyoptions/internal/sink"
	"spyoptions/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hub := broadcast.NewHub(broadcast.NewRingBuffer(16))
	stop := make(chan struct{})
	go hub.Run(stop)
	t.Cleanup(func() { close(stop) })

	sk := sink.New(store, hub)
	t.Cleanup(sk.Stop)

	return NewServer(Config{
		Store:       store,
		Sink:        sk,
		Hub:         hub,
		HubSecret:   "test-secret",
		HubTokenTTL: time.Hour,
		ServiceVer:  "test",
	})
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestPostThenGetAnomaliesRoundTrip(t *testing.T) {
	s := newTestServer(t)

	batch := contracts.AnomaliesBatch{
		Count: 1,
		Anomalies: []contracts.Anomaly{{
			TsMS: time.Now().UnixMilli(), Symbol: "SPY", Strike: 505, Side: contracts.Call,
			Bid: 1.3, Ask: 1.5, Severity: contracts.SeverityMedium,
		}},
		LastScan: time.Now().UTC().Format(time.RFC3339),
	}
	body, _ := json.Marshal(batch)
	postReq := httptest.NewRequest(http.MethodPost, "/anomalies", bytes.NewReader(body))
	postRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(postRec, postReq)
	require.Equal(t, http.StatusOK, postRec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/anomalies?limit=10", nil)
	getRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var got contracts.AnomaliesBatch
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &got))
	require.Len(t, got.Anomalies, 1)
	assert.Equal(t, 505.0, got.Anomalies[0].Strike)
}

func TestPostAnomaliesRejectsInvalidBatch(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"count": 5, "anomalies": []}`)
	req := httptest.NewRequest(http.MethodPost, "/anomalies", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarketStatePatchAppliesSparseFields(t *testing.T) {
	s := newTestServer(t)
	price := 505.25
	body, _ := json.Marshal(map[string]any{"price": price})
	req := httptest.NewRequest(http.MethodPost, "/market/state", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []any{"price"}, resp["updated_fields"])

	getReq := httptest.NewRequest(http.MethodGet, "/api/market/state", nil)
	getRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
	var state contracts.MarketState
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &state))
	assert.Equal(t, price, state.Price)
}

func TestNegotiateReturnsSignedToken(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/negotiate", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["accessToken"])
	assert.NoError(t, broadcast.VerifyToken(resp["accessToken"], "test-secret"))
}

func TestCORSPreflightReturnsNoContent(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/anomalies", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
