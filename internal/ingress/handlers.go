package ingress

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"spyoptions/internal/broadcast"
	"spyoptions/internal/contracts"
	"spyoptions/internal/metrics"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "spyoptions-ingress",
		"version": s.serviceVer,
		"ts":      time.Now().UTC().Format(time.RFC3339),
	})
}

func intQueryParam(r *http.Request, name string, def, min, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func (s *Server) handleGetAnomalies(w http.ResponseWriter, r *http.Request) {
	limit := intQueryParam(r, "limit", 50, 1, 100)
	anomalies, err := s.store.RecentAnomalies(limit)
	if err != nil {
		s.log.Error("recent anomalies query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if anomalies == nil {
		anomalies = []contracts.Anomaly{}
	}
	writeJSON(w, http.StatusOK, contracts.AnomaliesBatch{
		Count:     len(anomalies),
		Anomalies: anomalies,
		LastScan:  time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handlePostAnomalies(w http.ResponseWriter, r *http.Request) {
	var batch contracts.AnomaliesBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := batch.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, a := range batch.Anomalies {
		if err := s.sink.Anomaly(a); err != nil {
			s.log.Error("persist anomaly failed", "error", err)
		}
		metrics.AnomaliesBySeverity.WithLabelValues(string(a.Severity)).Inc()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "count": batch.Count})
}

func (s *Server) handleGetVolumeHistory(w http.ResponseWriter, r *http.Request) {
	hours := intQueryParam(r, "hours", 4, 1, 120)
	// Storage has no time-range filter; approximate with a generous limit
	// (at most one snapshot per second over the window, since the scan
	// interval is a whole number of seconds, at least 1).
	limit := hours * 3600
	if limit < 1 {
		limit = 1
	}
	history, err := s.store.RecentVolumeSnapshots(limit)
	if err != nil {
		s.log.Error("volume history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if history == nil {
		history = []contracts.VolumeSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hours": hours, "count": len(history), "history": history})
}

func (s *Server) handlePostVolume(w http.ResponseWriter, r *http.Request) {
	var v contracts.VolumeSnapshot
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if state, ok, err := s.store.LoadMarketState(); err == nil && ok && state.PreviousClose > 0 {
		pct := (v.Underlying - state.PreviousClose) / state.PreviousClose * 100
		v.ChangePct = &pct
	}
	if err := v.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.sink.VolumeSnapshot(v); err != nil {
		s.log.Error("persist volume snapshot failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ts": v.TsMS})
}

func (s *Server) handleGetFlowHistory(w http.ResponseWriter, r *http.Request) {
	hours := intQueryParam(r, "hours", 4, 1, 120)
	limit := hours * 3600
	if limit < 1 {
		limit = 1
	}
	history, err := s.store.RecentFlowSnapshots(limit)
	if err != nil {
		s.log.Error("flow history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if history == nil {
		history = []contracts.FlowSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hours": hours, "count": len(history), "history": history})
}

func (s *Server) handlePostFlow(w http.ResponseWriter, r *http.Request) {
	var f contracts.FlowSnapshot
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := f.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.sink.FlowSnapshot(f); err != nil {
		s.log.Error("persist flow snapshot failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ts": f.TsUnix})
}

func (s *Server) handleGetMarketState(w http.ResponseWriter, r *http.Request) {
	state, ok, err := s.store.LoadMarketState()
	if err != nil {
		s.log.Error("market state query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no market state recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// marketStatePatch is the sparse patch payload accepted by POST
// /market/state (spec.md §6).
type marketStatePatch struct {
	Price         *float64 `json:"price"`
	PreviousClose *float64 `json:"prev_close"`
	ATMCenter     *int     `json:"atm_center"`
	ATMMin        *int     `json:"atm_min"`
	ATMMax        *int     `json:"atm_max"`
	Status        *string  `json:"status"`
	DailyHigh     *float64 `json:"daily_high"`
	DailyLow      *float64 `json:"daily_low"`
}

func (s *Server) handlePatchMarketState(w http.ResponseWriter, r *http.Request) {
	var patch marketStatePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	state, _, err := s.store.LoadMarketState()
	if err != nil {
		s.log.Error("market state load failed", "error", err)
		writeError(w, http.StatusInternalServerError, "load failed")
		return
	}

	var updated []string
	if patch.Price != nil {
		state.Price = *patch.Price
		updated = append(updated, "price")
	}
	if patch.PreviousClose != nil {
		state.PreviousClose = *patch.PreviousClose
		updated = append(updated, "prev_close")
	}
	if patch.ATMCenter != nil {
		state.ATMCenter = *patch.ATMCenter
		updated = append(updated, "atm_center")
	}
	if patch.ATMMin != nil {
		state.ATMMin = *patch.ATMMin
		updated = append(updated, "atm_min")
	}
	if patch.ATMMax != nil {
		state.ATMMax = *patch.ATMMax
		updated = append(updated, "atm_max")
	}
	if patch.Status != nil {
		state.Status = contracts.MarketStatus(*patch.Status)
		updated = append(updated, "status")
	}
	if patch.DailyHigh != nil {
		state.DailyHigh = patch.DailyHigh
		updated = append(updated, "daily_high")
	}
	if patch.DailyLow != nil {
		state.DailyLow = patch.DailyLow
		updated = append(updated, "daily_low")
	}
	state.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	if err := s.sink.MarketState(state); err != nil {
		s.log.Error("persist market state failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "updated_fields": updated})
}

func (s *Server) handlePostSpyMarket(w http.ResponseWriter, r *http.Request) {
	var m contracts.SpyMarketSnapshot
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := m.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.sink.SpyMarketSnapshot(m); err != nil {
		s.log.Error("persist spy market snapshot failed", "error", err)
	}
	metrics.UnderlyingPrice.Set(m.Price)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ts": m.TsUnix})
}

func (s *Server) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	token, err := broadcast.MintToken(s.hubSecret, s.hubTokenTTL)
	if err != nil {
		s.log.Error("token mint failed", "error", err)
		writeError(w, http.StatusInternalServerError, "negotiate failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":         "/ws",
		"accessToken": token,
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "broadcast hub not configured")
		return
	}
	s.hub.ServeWS(w, r)
}
