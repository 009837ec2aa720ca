package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/adherence-portal/internal/config"
	"github.com/jwalitptl/adherence-portal/internal/worker"
	"github.com/jwalitptl/adherence-portal/pkg/logger"
	"github.com/jwalitptl/adherence-portal/pkg/messaging"
	"github.com/jwalitptl/adherence-portal/pkg/messaging/redis"
	"github.com/jwalitptl/adherence-portal/pkg/metrics"
)

const healthAddr = ":8081"

func setupHealthCheck(broker messaging.Pinger, registry *promclient.Registry, lg *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := broker.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: healthAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal(err, "Health check server failed")
		}
	}()
	return srv
}

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.NewLogger(nil).Fatal(err, "Failed to load config")
	}

	// Initialize logger
	lg := logger.NewLogger(&logger.Config{
		Level: logger.ParseLevel(cfg.Log.Level),
		JSON:  !cfg.Log.Pretty,
	})
	lg = lg.WithFields(map[string]interface{}{"service": "audit_worker", "channel": cfg.Audit.Channel})
	log.Logger = *lg.Zerolog()

	if cfg.Redis.URL == "" {
		lg.Fatal(nil, "audit worker requires redis.url; without Redis the API consumes audit events in process")
	}

	// Initialize Redis broker
	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		Buffer:       cfg.Audit.Buffer,
	}, lg.Zerolog())
	if err != nil {
		lg.Fatal(err, "Failed to create Redis broker")
	}
	defer broker.Close()

	registry := promclient.NewRegistry()
	m := metrics.NewMetrics("portal", "audit_worker", registry)
	health := setupHealthCheck(broker, registry, lg)
	defer health.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		lg.Info("Shutting down...")
		cancel()
	}()

	if err := worker.NewAuditWorker(broker, cfg.Audit.Channel, lg, m).Run(ctx); err != nil {
		lg.Error(err, "Audit worker stopped")
	}
}
