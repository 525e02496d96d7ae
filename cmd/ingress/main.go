// Command ingress runs the consumer process: an HTTP API that persists and
// broadcasts the data posted by the detector process (spec.md §4.G, §6).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spyoptions/internal/broadcast"
	"spyoptions/internal/config"
	"spyoptions/internal/ingress"
	"spyoptions/internal/sink"
	"spyoptions/internal/storage"
)

const broadcastHistorySize = 200

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	log := slog.With("component", "ingress-main")

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	// 1. Storage.
	store, err := storage.Open(cfg.StorageDSN)
	if err != nil {
		log.Error("storage open failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// 2. Broadcast hub.
	hub := broadcast.NewHub(broadcast.NewRingBuffer(broadcastHistorySize))
	hubStop := make(chan struct{})
	go hub.Run(hubStop)

	// 3. Sink (persist + broadcast fan-out).
	sk := sink.New(store, hub)

	// 4. HTTP API.
	server := ingress.NewServer(ingress.Config{
		Store:       store,
		Sink:        sk,
		Hub:         hub,
		HubSecret:   cfg.BroadcastHubSecret,
		HubTokenTTL: cfg.BroadcastTokenTTL,
		ServiceVer:  "1.0.0",
	})
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.HTTPRequestTimeout,
		WriteTimeout: cfg.HTTPRequestTimeout,
	}

	go func() {
		log.Info("ingress listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
		}
	}()

	// 5. Shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown error", "error", err)
	}
	sk.Stop()
	close(hubStop)
}
