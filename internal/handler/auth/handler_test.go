package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/adherence-portal/internal/middleware"
	"github.com/jwalitptl/adherence-portal/internal/model"
	"github.com/jwalitptl/adherence-portal/internal/service/auth"
	"github.com/jwalitptl/adherence-portal/internal/session"
	"github.com/jwalitptl/adherence-portal/internal/upstream"
	"github.com/jwalitptl/adherence-portal/pkg/httputil"
	"github.com/jwalitptl/adherence-portal/pkg/messaging"
	"github.com/jwalitptl/adherence-portal/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAPI struct {
	loginErr error
	loggedIn bool
	checkErr error
}

func (f *fakeAPI) Login(_ context.Context, _, _ string) (*upstream.LoginResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &upstream.LoginResult{IsDoctor: true, Cookie: "session=abc"}, nil
}

func (f *fakeAPI) CheckLogin(context.Context, string) (*upstream.LoginStatus, error) {
	return &upstream.LoginStatus{LoggedIn: f.loggedIn, IsDoctor: true}, f.checkErr
}

func (f *fakeAPI) Logout(context.Context, string) error {
	return nil
}

func newRouter(t *testing.T, api *fakeAPI) (*gin.Engine, *messaging.MemoryBroker) {
	t.Helper()
	codec := session.NewTokenCodec([]byte("signing-key-for-tests-0123456789"), "adherence-portal")
	mgr := session.NewManager(session.NewMemoryStore(time.Minute), codec, time.Hour)
	m := metrics.New("test")
	svc := auth.NewService(api, mgr, m, zerolog.Nop())
	broker := messaging.NewMemoryBroker(16)
	t.Cleanup(func() { _ = broker.Close() })

	r := gin.New()
	r.Use(middleware.ErrorHandler(), middleware.Validation(middleware.DefaultValidationConfig()))
	NewHandler(svc, middleware.NewAuthMiddleware(mgr), middleware.NewAuditMiddleware(broker, m), CookieConfig{}).
		RegisterRoutes(r.Group("/api/v1"))
	return r, broker
}

func serve(r *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, httputil.Response) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var resp httputil.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func login(t *testing.T, r *gin.Engine) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username":"drhouse","password":"vicodin"}`))
	req.Header.Set("Content-Type", "application/json")
	w, resp := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp.Data.(map[string]interface{})["is_logged_in"])

	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			assert.True(t, c.HttpOnly)
			assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestLogin_SetsCookieAndAudits(t *testing.T) {
	r, broker := newRouter(t, &fakeAPI{loggedIn: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := broker.Subscribe(ctx, model.AuditChannel)
	require.NoError(t, err)

	login(t, r)

	select {
	case raw := <-events:
		var ev model.AccessEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, model.AuditActionLogin, ev.Action)
		assert.Equal(t, "drhouse", ev.Username)
	case <-time.After(time.Second):
		t.Fatal("no audit event published")
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	r, _ := newRouter(t, &fakeAPI{loginErr: upstream.ErrUnauthorized})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader("username=drhouse&password=wrong"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w, resp := serve(r, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid username or password", resp.Message)
	assert.Empty(t, w.Result().Cookies())
}

func TestLogin_UpstreamDown(t *testing.T) {
	r, _ := newRouter(t, &fakeAPI{loginErr: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username":"drhouse","password":"vicodin"}`))
	req.Header.Set("Content-Type", "application/json")
	w, _ := serve(r, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestLogin_MissingFields(t *testing.T) {
	r, _ := newRouter(t, &fakeAPI{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"drhouse"}`))
	req.Header.Set("Content-Type", "application/json")
	w, resp := serve(r, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation failed", resp.Message)
}

func TestSession_EndedUpstream(t *testing.T) {
	api := &fakeAPI{loggedIn: true}
	r, _ := newRouter(t, api)
	cookie := login(t, r)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
	req.AddCookie(cookie)
	w, resp := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "drhouse", resp.Data.(map[string]interface{})["username"])

	api.loggedIn = false
	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
	req.AddCookie(cookie)
	w, _ = serve(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// the local session is gone as well
	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
	req.AddCookie(cookie)
	w, _ = serve(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout_ClearsCookie(t *testing.T) {
	r, _ := newRouter(t, &fakeAPI{loggedIn: true})
	cookie := login(t, r)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.AddCookie(cookie)
	w, _ := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)

	cleared := w.Result().Cookies()
	require.NotEmpty(t, cleared)
	assert.Equal(t, "", cleared[0].Value)
	assert.True(t, cleared[0].MaxAge < 0)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
	req.AddCookie(cookie)
	w, _ = serve(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
