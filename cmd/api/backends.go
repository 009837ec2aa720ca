package main

import (
	"context"
	"fmt"

	"github.com/jwalitptl/adherence-portal/internal/config"
	"github.com/jwalitptl/adherence-portal/internal/handler/health"
	"github.com/jwalitptl/adherence-portal/internal/session"
	"github.com/jwalitptl/adherence-portal/internal/worker"
	"github.com/jwalitptl/adherence-portal/pkg/logger"
	"github.com/jwalitptl/adherence-portal/pkg/messaging"
	"github.com/jwalitptl/adherence-portal/pkg/messaging/redis"
	"github.com/jwalitptl/adherence-portal/pkg/metrics"
	"github.com/jwalitptl/adherence-portal/pkg/security"
)

// backends holds the session store and audit broker the API runs on.
type backends struct {
	store  session.Store
	broker messaging.Broker
	checks map[string]health.Checker
	// auditDone is closed when the in-process audit worker stops; nil when a
	// separate worker process consumes the Redis channel.
	auditDone <-chan struct{}
}

// openBackends uses Redis when configured. Without it sessions live in memory
// and an audit worker consumes the in-memory broker until ctx is done.
func openBackends(ctx context.Context, cfg *config.Config, keys *security.Keys, lg *logger.Logger, m *metrics.Metrics) (*backends, error) {
	b := &backends{checks: map[string]health.Checker{}}

	if cfg.Redis.URL != "" {
		rb, err := redis.NewRedisBroker(redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			Buffer:       cfg.Audit.Buffer,
		}, lg.Zerolog())
		if err != nil {
			return nil, err
		}
		enc, err := security.NewAESEncryptor(keys.Encryption)
		if err != nil {
			_ = rb.Close()
			return nil, fmt.Errorf("failed to create session encryptor: %w", err)
		}
		b.store = session.NewRedisStore(rb.Client(), enc, cfg.Session.KeyPrefix)
		b.broker = rb
	} else {
		lg.Warn(nil, "redis.url not set, keeping sessions and audit events in process")
		b.store = session.NewMemoryStore(cfg.Cache.CleanupInterval)
		b.broker = messaging.NewMemoryBroker(cfg.Audit.Buffer)

		done, err := worker.NewAuditWorker(b.broker, cfg.Audit.Channel, lg, m).Start(ctx)
		if err != nil {
			_ = b.broker.Close()
			return nil, err
		}
		b.auditDone = done
	}

	if p, ok := b.broker.(messaging.Pinger); ok {
		b.checks["broker"] = p
	}
	return b, nil
}

// Close releases the broker. The audit worker, if any, stops with the ctx
// given to openBackends.
func (b *backends) Close() error {
	return b.broker.Close()
}
