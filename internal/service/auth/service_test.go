package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/adherence-portal/internal/model"
	"github.com/jwalitptl/adherence-portal/internal/session"
	"github.com/jwalitptl/adherence-portal/internal/upstream"
	"github.com/jwalitptl/adherence-portal/pkg/metrics"
)

type fakeAPI struct {
	loginRes  *upstream.LoginResult
	loginErr  error
	status    *upstream.LoginStatus
	checkErr  error
	logoutErr error
	loggedOut []string
}

func (f *fakeAPI) Login(_ context.Context, _, _ string) (*upstream.LoginResult, error) {
	return f.loginRes, f.loginErr
}

func (f *fakeAPI) CheckLogin(_ context.Context, _ string) (*upstream.LoginStatus, error) {
	return f.status, f.checkErr
}

func (f *fakeAPI) Logout(_ context.Context, cookie string) error {
	f.loggedOut = append(f.loggedOut, cookie)
	return f.logoutErr
}

func newService(api *fakeAPI) (*Service, *session.Manager) {
	codec := session.NewTokenCodec([]byte("signing-key-for-tests-0123456789"), "adherence-portal")
	mgr := session.NewManager(session.NewMemoryStore(time.Minute), codec, time.Hour)
	return NewService(api, mgr, metrics.New("test"), zerolog.Nop()), mgr
}

func TestLogin_CreatesSession(t *testing.T) {
	api := &fakeAPI{loginRes: &upstream.LoginResult{IsDoctor: true, Cookie: "session=abc"}}
	svc, mgr := newService(api)
	ctx := context.Background()

	sess, token, err := svc.Login(ctx, "drhouse", "vicodin")
	require.NoError(t, err)
	assert.True(t, sess.IsDoctor)
	assert.Equal(t, "session=abc", sess.UpstreamCookie)

	resolved, err := mgr.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, resolved.ID)
}

func TestLogin_Rejected(t *testing.T) {
	for name, err := range map[string]error{
		"unauthorized": upstream.ErrUnauthorized,
		"bad request":  &upstream.HTTPError{StatusCode: http.StatusBadRequest},
	} {
		t.Run(name, func(t *testing.T) {
			svc, _ := newService(&fakeAPI{loginErr: err})
			_, _, got := svc.Login(context.Background(), "drhouse", "wrong")
			assert.ErrorIs(t, got, model.ErrInvalidCredentials)
		})
	}
}

func TestLogin_UpstreamDown(t *testing.T) {
	svc, _ := newService(&fakeAPI{loginErr: upstream.ErrUpstream})
	_, _, err := svc.Login(context.Background(), "drhouse", "vicodin")
	assert.ErrorIs(t, err, upstream.ErrUpstream)
	assert.False(t, errors.Is(err, model.ErrInvalidCredentials))
}

func TestCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("refreshes privilege", func(t *testing.T) {
		api := &fakeAPI{
			loginRes: &upstream.LoginResult{IsDoctor: true},
			status:   &upstream.LoginStatus{LoggedIn: true, IsDoctor: false},
		}
		svc, _ := newService(api)
		sess, _, err := svc.Login(ctx, "drhouse", "vicodin")
		require.NoError(t, err)

		got, err := svc.Check(ctx, sess)
		require.NoError(t, err)
		assert.False(t, got.IsDoctor)
	})

	t.Run("logged out upstream", func(t *testing.T) {
		api := &fakeAPI{
			loginRes: &upstream.LoginResult{},
			status:   &upstream.LoginStatus{LoggedIn: false},
		}
		svc, mgr := newService(api)
		sess, token, err := svc.Login(ctx, "drhouse", "vicodin")
		require.NoError(t, err)

		_, err = svc.Check(ctx, sess)
		assert.ErrorIs(t, err, ErrSessionEnded)
		_, err = mgr.Resolve(ctx, token)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("upstream unreachable keeps session", func(t *testing.T) {
		api := &fakeAPI{loginRes: &upstream.LoginResult{IsDoctor: true}, checkErr: upstream.ErrUpstream}
		svc, _ := newService(api)
		sess, _, err := svc.Login(ctx, "drhouse", "vicodin")
		require.NoError(t, err)

		got, err := svc.Check(ctx, sess)
		require.NoError(t, err)
		assert.Same(t, sess, got)
	})
}

func TestLogout_AlwaysDeletesSession(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{loginRes: &upstream.LoginResult{Cookie: "session=abc"}, logoutErr: upstream.ErrUpstream}
	svc, mgr := newService(api)

	sess, token, err := svc.Login(ctx, "drhouse", "vicodin")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, sess))
	assert.Equal(t, []string{"session=abc"}, api.loggedOut)

	_, err = mgr.Resolve(ctx, token)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestLogin_CountsLogins(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{loginRes: &upstream.LoginResult{Cookie: "session=abc"}}
	codec := session.NewTokenCodec([]byte("signing-key-for-tests-0123456789"), "adherence-portal")
	mgr := session.NewManager(session.NewMemoryStore(time.Minute), codec, time.Hour)
	m := metrics.New("test")
	svc := NewService(api, mgr, m, zerolog.Nop())

	first, _, err := svc.Login(ctx, "drhouse", "vicodin")
	require.NoError(t, err)
	_, _, err = svc.Login(ctx, "jdoe", "secret")
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, first))

	// Logouts never decrement the counter.
	assert.Equal(t, float64(2), testutil.ToFloat64(m.LoginsTotal))

	api.loginErr = upstream.ErrUnauthorized
	_, _, err = svc.Login(ctx, "drhouse", "wrong")
	require.Error(t, err)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.LoginsTotal))
}
