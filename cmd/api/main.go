package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/adherence-portal/internal/config"
	authhandler "github.com/jwalitptl/adherence-portal/internal/handler/auth"
	"github.com/jwalitptl/adherence-portal/internal/handler/health"
	medhandler "github.com/jwalitptl/adherence-portal/internal/handler/medication"
	patienthandler "github.com/jwalitptl/adherence-portal/internal/handler/patient"
	"github.com/jwalitptl/adherence-portal/internal/handler/prometheus"
	"github.com/jwalitptl/adherence-portal/internal/middleware"
	"github.com/jwalitptl/adherence-portal/internal/router"
	authservice "github.com/jwalitptl/adherence-portal/internal/service/auth"
	patientservice "github.com/jwalitptl/adherence-portal/internal/service/patient"
	"github.com/jwalitptl/adherence-portal/internal/session"
	"github.com/jwalitptl/adherence-portal/internal/upstream"
	"github.com/jwalitptl/adherence-portal/pkg/logger"
	"github.com/jwalitptl/adherence-portal/pkg/metrics"
	"github.com/jwalitptl/adherence-portal/pkg/security"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.NewLogger(nil).Fatal(err, "failed to load configuration")
	}

	lg := logger.NewLogger(&logger.Config{
		Level: logger.ParseLevel(cfg.Log.Level),
		JSON:  !cfg.Log.Pretty,
	})
	log.Logger = *lg.Zerolog()

	registry := promclient.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics("portal", "", registry)

	keys, err := security.DeriveKeys([]byte(cfg.Secrets.SessionSecret))
	if err != nil {
		lg.Fatal(err, "failed to derive session keys")
	}

	// Session store and audit broker: Redis when configured, in process otherwise
	auditCtx, stopAudit := context.WithCancel(context.Background())
	defer stopAudit()
	b, err := openBackends(auditCtx, cfg, keys, lg, m)
	if err != nil {
		lg.Fatal(err, "failed to open session store and audit broker")
	}
	defer b.Close()
	checks := b.checks

	codec := session.NewTokenCodec(keys.Signing, cfg.Session.Issuer)
	sessions := session.NewManager(b.store, codec, cfg.Session.TTL, session.WithMetrics(m))
	checks["sessions"] = sessions

	client, err := upstream.New(upstream.Config{
		BaseURL:            cfg.Upstream.BaseURL,
		APIKey:             cfg.Secrets.UpstreamAPIKey,
		APIKeyHeader:       cfg.Upstream.APIKeyHeader,
		Timeout:            cfg.Upstream.Timeout,
		BreakerMaxFailures: cfg.Upstream.BreakerMaxFailures,
		BreakerTimeout:     cfg.Upstream.BreakerTimeout,
	}, m, *lg.With("component", "upstream").Zerolog())
	if err != nil {
		lg.Fatal(err, "failed to create patient API client")
	}

	// Initialize services
	authSvc := authservice.NewService(client, sessions, m, *lg.With("component", "auth").Zerolog())
	patientSvc := patientservice.NewService(client, patientservice.Config{
		WindowDays: cfg.Adherence.WindowDays,
		CatalogTTL: cfg.Cache.CatalogTTL,
		Location:   cfg.Location(),
	}, m, *lg.With("component", "patient").Zerolog())

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(sessions)
	audit := middleware.NewAuditMiddleware(b.broker, m).WithChannel(cfg.Audit.Channel)

	rateLimit := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimit.Enabled {
		rateLimit.Rate = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		rateLimit.Burst = cfg.RateLimit.Burst
		rateLimit.IdleTTL = cfg.RateLimit.IdleTTL
	} else {
		rateLimit.Rate = rate.Inf
	}
	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.CORS.AllowedOrigins
	sizeLimit := middleware.DefaultSizeLimitConfig()
	sizeLimit.MaxBodySize = cfg.Server.MaxBodyBytes
	sizeLimit.MaxHeaderSize = cfg.Server.MaxHeaderBytes

	mode := gin.ReleaseMode
	if cfg.Server.Mode != "" {
		mode = cfg.Server.Mode
	}

	// Setup router
	r := router.NewRouter(
		router.RouterConfig{
			Mode:       mode,
			RateLimit:  rateLimit,
			CORSConfig: cors,
			Security:   middleware.DefaultSecurityConfig(),
			SizeLimit:  sizeLimit,
			Timeout:    cfg.Server.RequestTimeout,
		},
		prometheus.New(registry),
		health.NewHandler(checks, 2*time.Second),
		authhandler.NewHandler(authSvc, authMW, audit, authhandler.CookieConfig{
			Domain: cfg.Session.CookieDomain,
			Secure: cfg.Session.CookieSecure,
		}),
		patienthandler.NewHandler(patientSvc, authMW, audit),
		medhandler.NewHandler(patientSvc, authMW, audit),
	)
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// Start server
	go func() {
		lg.Info("starting server", "port", cfg.Server.Port, "upstream", cfg.Upstream.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal(err, "failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Error(err, "server forced to shutdown")
	}

	stopAudit()
	if b.auditDone != nil {
		select {
		case <-b.auditDone:
		case <-ctx.Done():
			lg.Warn(ctx.Err(), "audit worker did not stop in time")
		}
	}

	lg.Info("server exited properly")
}
