// Package upstream is the client for the remote patient API that owns
// authentication, patient records and adherence data.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/adherence-portal/pkg/circuitbreaker"
	"github.com/jwalitptl/adherence-portal/pkg/metrics"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultAPIKeyHeader = "X-Api-Key"
	maxBodyBytes        = 4 << 20
)

var (
	ErrNotConfigured = errors.New("patient api client not configured")
	ErrUnauthorized  = errors.New("patient api unauthorized")
	ErrUpstream      = errors.New("patient api upstream error")
)

// HTTPError is a non-2xx answer from the patient API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("patient api: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("patient api: status=%d body=%s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the patient API.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

type Config struct {
	// BaseURL includes the API prefix, e.g. http://api:5000/api/v1.
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	Timeout      time.Duration

	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

type Client struct {
	baseURL      string
	apiKey       string
	apiKeyHeader string
	httpClient   *http.Client
	cb           *circuitbreaker.CircuitBreaker
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

func New(cfg Config, m *metrics.Metrics, logger zerolog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid patient api url: %w", err)
	}

	header := strings.TrimSpace(cfg.APIKeyHeader)
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}
	if m == nil {
		m = metrics.New("portal")
	}

	c := &Client{
		baseURL:      base,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		apiKeyHeader: header,
		httpClient:   &http.Client{Timeout: timeout},
		metrics:      m,
		logger:       logger.With().Str("component", "upstream").Logger(),
	}
	c.cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:        "patient-api",
		MaxRequests: 1,
		MaxFailures: cfg.BreakerMaxFailures,
		Timeout:     breakerTimeout,
		IsFailure:   isBreakerFailure,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			m.BreakerState.WithLabelValues(name).Set(float64(to))
			c.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	m.BreakerState.WithLabelValues("patient-api").Set(float64(circuitbreaker.StateClosed))
	return c, nil
}

// isBreakerFailure counts transport errors and 5xx answers. Client errors
// and caller cancellation say nothing about the API's health.
func isBreakerFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	cookie      string
	body        io.Reader
	contentType string
	out         any
}

// do sends r and decodes a 2xx JSON body into r.out. It returns the cookies
// the API set on the response.
func (c *Client) do(ctx context.Context, r request) ([]*http.Cookie, error) {
	start := time.Now()
	var (
		cookies []*http.Cookie
		status  int
	)

	err := c.cb.Execute(func() error {
		var err error
		cookies, status, err = c.roundTrip(ctx, r)
		return err
	})

	outcome := outcomeOf(err)
	c.metrics.UpstreamRequests.WithLabelValues(r.op, outcome).Inc()
	c.metrics.UpstreamLatency.WithLabelValues(r.op).Observe(time.Since(start).Seconds())
	c.logger.Debug().
		Str("operation", r.op).
		Int("status", status).
		Str("outcome", outcome).
		Dur("duration", time.Since(start)).
		Msg("Patient API call")

	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return cookies, err
}

func (c *Client) roundTrip(ctx context.Context, r request) ([]*http.Cookie, int, error) {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, r.body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: new request: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.cookie != "" {
		req.Header.Set("Cookie", r.cookie)
	}
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrUpstream, ctxErr)
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, resp.StatusCode, fmt.Errorf("%w: %w", ErrUnauthorized, httpErr)
		}
		return nil, resp.StatusCode, httpErr
	}

	if r.out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, r.out); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("%w: invalid json: %v", ErrUpstream, err)
		}
	}
	return resp.Cookies(), resp.StatusCode, nil
}

func outcomeOf(err error) string {
	var httpErr *HTTPError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, circuitbreaker.ErrOpen):
		return "circuit_open"
	case errors.As(err, &httpErr) && httpErr.StatusCode < http.StatusInternalServerError:
		return "client_error"
	case errors.As(err, &httpErr):
		return "server_error"
	default:
		return "transport_error"
	}
}

// CookieHeader joins cookies into a Cookie request header value.
func CookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		if ck.Name == "" {
			continue
		}
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, "; ")
}

func pathID(prefix, id string) string {
	return prefix + "/" + url.PathEscape(id)
}
