package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/adherence-portal/internal/model"
	"github.com/jwalitptl/adherence-portal/internal/session"
	"github.com/jwalitptl/adherence-portal/internal/upstream"
	"github.com/jwalitptl/adherence-portal/pkg/metrics"
)

var (
	// ErrSessionEnded means the patient API no longer honours the login.
	ErrSessionEnded = errors.New("session ended")
)

// API is the part of the patient API client that handles logins.
type API interface {
	Login(ctx context.Context, username, password string) (*upstream.LoginResult, error)
	CheckLogin(ctx context.Context, cookie string) (*upstream.LoginStatus, error)
	Logout(ctx context.Context, cookie string) error
}

type Service struct {
	api      API
	sessions *session.Manager
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewService(api API, sessions *session.Manager, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		api:      api,
		sessions: sessions,
		metrics:  m,
		logger:   logger.With().Str("service", "auth").Logger(),
	}
}

// Login authenticates against the patient API and opens a portal session.
// It is the only place a session is created.
func (s *Service) Login(ctx context.Context, username, password string) (*session.Session, string, error) {
	res, err := s.api.Login(ctx, username, password)
	if err != nil {
		if isRejected(err) {
			return nil, "", model.ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("login: %w", err)
	}

	sess, token, err := s.sessions.Create(ctx, username, res.IsDoctor, res.Cookie)
	if err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}
	if s.metrics != nil {
		s.metrics.LoginsTotal.Inc()
	}
	s.logger.Info().
		Str("username", username).
		Bool("is_doctor", res.IsDoctor).
		Msg("User logged in")
	return sess, token, nil
}

// Check re-validates the login with the patient API and refreshes the
// privilege flag. When the API cannot be reached the stored session is
// returned unchanged.
func (s *Service) Check(ctx context.Context, sess *session.Session) (*session.Session, error) {
	st, err := s.api.CheckLogin(ctx, sess.UpstreamCookie)
	if err != nil && !errors.Is(err, upstream.ErrUnauthorized) {
		s.logger.Warn().Err(err).Str("username", sess.Username).Msg("Login check failed, keeping session")
		return sess, nil
	}
	if err != nil || !st.LoggedIn {
		if derr := s.sessions.Destroy(ctx, sess.ID); derr != nil {
			s.logger.Warn().Err(derr).Msg("Failed to delete ended session")
		}
		return nil, ErrSessionEnded
	}
	return s.sessions.Refresh(ctx, sess, st.IsDoctor)
}

// Logout ends the upstream login on a best effort basis and always deletes
// the portal session.
func (s *Service) Logout(ctx context.Context, sess *session.Session) error {
	if err := s.api.Logout(ctx, sess.UpstreamCookie); err != nil {
		s.logger.Warn().Err(err).Str("username", sess.Username).Msg("Upstream logout failed")
	}
	if err := s.sessions.Destroy(ctx, sess.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logger.Info().Str("username", sess.Username).Msg("User logged out")
	return nil
}

func isRejected(err error) bool {
	if errors.Is(err, upstream.ErrUnauthorized) {
		return true
	}
	var httpErr *upstream.HTTPError
	return errors.As(err, &httpErr) &&
		httpErr.StatusCode >= http.StatusBadRequest &&
		httpErr.StatusCode < http.StatusInternalServerError
}
