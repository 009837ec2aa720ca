package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authhandler "github.com/jwalitptl/adherence-portal/internal/handler/auth"
	"github.com/jwalitptl/adherence-portal/internal/handler/health"
	medhandler "github.com/jwalitptl/adherence-portal/internal/handler/medication"
	patienthandler "github.com/jwalitptl/adherence-portal/internal/handler/patient"
	"github.com/jwalitptl/adherence-portal/internal/handler/prometheus"
	"github.com/jwalitptl/adherence-portal/internal/middleware"
	authservice "github.com/jwalitptl/adherence-portal/internal/service/auth"
	patientservice "github.com/jwalitptl/adherence-portal/internal/service/patient"
	"github.com/jwalitptl/adherence-portal/internal/session"
	"github.com/jwalitptl/adherence-portal/internal/upstream"
	"github.com/jwalitptl/adherence-portal/pkg/httputil"
	"github.com/jwalitptl/adherence-portal/pkg/messaging"
	"github.com/jwalitptl/adherence-portal/pkg/metrics"
)

var now = time.Date(2024, time.March, 14, 9, 0, 0, 0, time.UTC)

// patientAPI answers the few upstream routes the portal needs for a login
// followed by an adherence read.
func patientAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("password") != "vicodin" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "upstream-1"})
		_, _ = w.Write([]byte(`{"is_doctor":true}`))
	})
	mux.HandleFunc("/adherence/p1", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"patientid":1,"adherence":[
			{"date":"2024-03-13","content":[{"medication":"Metformin","taken":true},{"medication":"Lisinopril","taken":false}]},
			{"date":"2024-03-12T00:00:00.000Z","content":[{"medication":"Metformin","taken":true}]}
		]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	registry := promclient.NewRegistry()
	m := metrics.NewMetrics("portal", "", registry)
	logger := zerolog.Nop()

	client, err := upstream.New(upstream.Config{BaseURL: patientAPI(t).URL}, m, logger)
	require.NoError(t, err)

	codec := session.NewTokenCodec([]byte("signing-key-for-tests-0123456789"), "adherence-portal")
	mgr := session.NewManager(session.NewMemoryStore(time.Minute), codec, time.Hour, session.WithMetrics(m))
	broker := messaging.NewMemoryBroker(16)
	t.Cleanup(func() { _ = broker.Close() })

	authMW := middleware.NewAuthMiddleware(mgr)
	audit := middleware.NewAuditMiddleware(broker, m)
	patients := patientservice.NewService(client, patientservice.Config{WindowDays: 14}, m, logger)
	patients.SetClock(func() time.Time { return now })

	r := NewRouter(
		RouterConfig{
			Mode:       gin.TestMode,
			RateLimit:  middleware.DefaultRateLimiterConfig(),
			CORSConfig: middleware.DefaultCORSConfig(),
			Security:   middleware.DefaultSecurityConfig(),
			SizeLimit:  middleware.DefaultSizeLimitConfig(),
		},
		prometheus.New(registry),
		health.NewHandler(map[string]health.Checker{"sessions": mgr}, time.Second),
		authhandler.NewHandler(authservice.NewService(client, mgr, m, logger), authMW, audit, authhandler.CookieConfig{}),
		patienthandler.NewHandler(patients, authMW, audit),
		medhandler.NewHandler(patients, authMW, audit),
	)
	r.Setup()
	return r.Engine()
}

func TestRouter_LoginThenAdherence(t *testing.T) {
	engine := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username":"drhouse","password":"vicodin"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))

	var sessionCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/patients/p1/adherence", nil)
	req.AddCookie(sessionCookie)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "p1", data["patient_id"])
	grid := data["grid"].(map[string]interface{})
	assert.EqualValues(t, 14, grid["window_days"])
	view := data["view"].(map[string]interface{})
	assert.Len(t, view["rows"], 7)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	engine := newTestRouter(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `route="/api/v1/patients",status="401"`)
}

func TestRouter_LoginRejected(t *testing.T) {
	engine := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username":"drhouse","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

}
