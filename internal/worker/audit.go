package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jwalitptl/adherence-portal/internal/model"
	"github.com/jwalitptl/adherence-portal/pkg/logger"
	"github.com/jwalitptl/adherence-portal/pkg/messaging"
	"github.com/jwalitptl/adherence-portal/pkg/metrics"
)

// AuditWorker turns PHI access events from the broker into audit log lines.
type AuditWorker struct {
	broker  messaging.Broker
	channel string
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewAuditWorker(broker messaging.Broker, channel string, lg *logger.Logger, m *metrics.Metrics) *AuditWorker {
	if channel == "" {
		channel = model.AuditChannel
	}
	if lg == nil {
		lg = logger.Nop()
	}
	if m == nil {
		m = metrics.New("audit_worker")
	}
	return &AuditWorker{
		broker:  broker,
		channel: channel,
		logger:  lg.With("component", "audit_worker"),
		metrics: m,
		now:     time.Now,
	}
}

// Run consumes events until ctx is done or the subscription closes.
func (w *AuditWorker) Run(ctx context.Context) error {
	events, err := w.subscribe(ctx)
	if err != nil {
		return err
	}
	w.consume(ctx, events)
	return nil
}

// Start subscribes before returning, so no event published afterwards is
// missed, and consumes in the background. The returned channel is closed
// once the worker stops.
func (w *AuditWorker) Start(ctx context.Context) (<-chan struct{}, error) {
	events, err := w.subscribe(ctx)
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.consume(ctx, events)
	}()
	return done, nil
}

func (w *AuditWorker) subscribe(ctx context.Context) (<-chan []byte, error) {
	events, err := w.broker.Subscribe(ctx, w.channel)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", w.channel, err)
	}
	w.logger.Info("Audit worker started", "channel", w.channel)
	return events, nil
}

func (w *AuditWorker) consume(ctx context.Context, events <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Audit worker shutting down")
			return
		case raw, ok := <-events:
			if !ok {
				w.logger.Info("Audit subscription closed")
				return
			}
			w.handle(raw)
		}
	}
}

func (w *AuditWorker) handle(raw []byte) {
	var ev model.AccessEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		w.metrics.AuditConsumed.WithLabelValues("invalid").Inc()
		w.logger.Error(err, "Dropping malformed audit event", "bytes", len(raw))
		return
	}

	if !ev.Time.IsZero() {
		w.metrics.AuditLag.Observe(w.now().Sub(ev.Time).Seconds())
	}
	w.metrics.AuditConsumed.WithLabelValues("recorded").Inc()

	w.logger.Info("PHI access",
		"event_id", ev.ID,
		"at", ev.Time,
		"request_id", ev.RequestID,
		"username", ev.Username,
		"is_doctor", ev.IsDoctor,
		"action", ev.Action,
		"resource", ev.Resource,
		"patient_id", ev.PatientID,
		"method", ev.Method,
		"path", ev.Path,
		"status", ev.Status,
		"client_ip", ev.ClientIP,
	)
}
