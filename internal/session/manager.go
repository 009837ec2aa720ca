package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/adherence-portal/pkg/metrics"
)

const DefaultTTL = 8 * time.Hour

// Manager ties the browser token to the store record.
type Manager struct {
	store   Store
	codec   *TokenCodec
	ttl     time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func NewManager(store Store, codec *TokenCodec, ttl time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{store: store, codec: codec, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create stores a new session and returns it with its signed token.
func (m *Manager) Create(ctx context.Context, username string, isDoctor bool, upstreamCookie string) (*Session, string, error) {
	now := m.now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		Username:       username,
		IsDoctor:       isDoctor,
		UpstreamCookie: upstreamCookie,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.ttl),
	}
	token, err := m.codec.Issue(s)
	if err != nil {
		return nil, "", err
	}
	if err := m.observe("save", func() error { return m.store.Save(ctx, s) }); err != nil {
		return nil, "", err
	}
	return s, token, nil
}

// Resolve verifies token and loads its session. A valid token whose record
// was deleted resolves to ErrNotFound.
func (m *Manager) Resolve(ctx context.Context, token string) (*Session, error) {
	claims, err := m.codec.Parse(token, m.now())
	if err != nil {
		return nil, err
	}
	var s *Session
	err = m.observe("get", func() error {
		var err error
		s, err = m.store.Get(ctx, claims.SessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.Username != claims.Subject {
		return nil, fmt.Errorf("%w: subject mismatch", ErrInvalidToken)
	}
	return s, nil
}

// Refresh rewrites the privilege flag after the patient API re-validated
// the login. The record keeps its expiry.
func (m *Manager) Refresh(ctx context.Context, s *Session, isDoctor bool) (*Session, error) {
	if s.IsDoctor == isDoctor {
		return s, nil
	}
	updated := *s
	updated.IsDoctor = isDoctor
	if err := m.observe("save", func() error { return m.store.Save(ctx, &updated) }); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (m *Manager) Destroy(ctx context.Context, id string) error {
	return m.observe("delete", func() error { return m.store.Delete(ctx, id) })
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

func (m *Manager) observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	if m.metrics != nil {
		status := "ok"
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrExpired):
			status = "miss"
		case err != nil:
			status = "error"
		}
		m.metrics.SessionOperations.WithLabelValues(op, status).Inc()
		m.metrics.SessionLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	return err
}
