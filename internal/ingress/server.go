// Package ingress implements the consumer process's HTTP API (spec.md
// §6): it persists and broadcasts every POSTed payload and serves read
// endpoints for the dashboard. Router grounded on gorilla/mux (the pack's
// HTTP-router-of-choice per sawpanic-cryptorun's interfaces/http layer);
// storage and broadcast are delegated to internal/sink.
package ingress

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spyoptions/internal/broadcast"
	"spyoptions/internal/metrics"
	"spyoptions/internal/sink"
	"spyoptions/internal/storage"
)

// Server is the ingress HTTP API.
type Server struct {
	store       *storage.Store
	sink        *sink.Sink
	hub         *broadcast.Hub
	hubSecret   string
	hubTokenTTL time.Duration
	serviceVer  string
	log         *slog.Logger
	router      *mux.Router
}

// Config bundles the server's external collaborators.
type Config struct {
	Store       *storage.Store
	Sink        *sink.Sink
	Hub         *broadcast.Hub
	HubSecret   string
	HubTokenTTL time.Duration
	ServiceVer  string
}

// NewServer builds the ingress HTTP API and its route table.
func NewServer(cfg Config) *Server {
	s := &Server{
		store:       cfg.Store,
		sink:        cfg.Sink,
		hub:         cfg.Hub,
		hubSecret:   cfg.HubSecret,
		hubTokenTTL: cfg.HubTokenTTL,
		serviceVer:  cfg.ServiceVer,
		log:         slog.With("component", "ingress"),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the server's http.Handler, CORS-wrapped.
func (s *Server) Handler() http.Handler {
	return withCORS(s.router)
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.metricsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/anomalies", s.handleGetAnomalies).Methods(http.MethodGet)
	r.HandleFunc("/anomalies", s.handlePostAnomalies).Methods(http.MethodPost)
	r.HandleFunc("/dashboard/snapshot", s.handleGetAnomalies).Methods(http.MethodGet)

	r.HandleFunc("/volumes/snapshot", s.handleGetVolumeHistory).Methods(http.MethodGet)
	r.HandleFunc("/volumes", s.handlePostVolume).Methods(http.MethodPost)

	r.HandleFunc("/flow/snapshot", s.handleGetFlowHistory).Methods(http.MethodGet)
	r.HandleFunc("/flow", s.handlePostFlow).Methods(http.MethodPost)

	r.HandleFunc("/api/market/state", s.handleGetMarketState).Methods(http.MethodGet)
	r.HandleFunc("/market/state", s.handlePatchMarketState).Methods(http.MethodPost)

	r.HandleFunc("/spy-market", s.handlePostSpyMarket).Methods(http.MethodPost)

	r.HandleFunc("/negotiate", s.handleNegotiate).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	return r
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				s.log.Error("handler panicked", "path", r.URL.Path, "panic", p)
				writeError(rec, http.StatusInternalServerError, "internal error")
			}
			route := r.URL.Path
			if m := mux.CurrentRoute(r); m != nil {
				if tmpl, err := m.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			metrics.HTTPRequestsTotal.WithLabelValues(route, statusClass(rec.status)).Inc()
		}()
		next.ServeHTTP(rec, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
