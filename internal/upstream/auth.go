package upstream

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// LoginResult carries the privilege flag and the cookies that authenticate
// later calls on the user's behalf.
type LoginResult struct {
	IsDoctor bool
	Cookie   string
}

type LoginStatus struct {
	LoggedIn bool
	IsDoctor bool
}

func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var out loginResponse
	cookies, err := c.do(ctx, request{
		op:          "login",
		method:      http.MethodPost,
		path:        "/login",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
		out:         &out,
	})
	if err != nil {
		return nil, err
	}
	return &LoginResult{IsDoctor: out.IsDoctor, Cookie: CookieHeader(cookies)}, nil
}

func (c *Client) CheckLogin(ctx context.Context, cookie string) (*LoginStatus, error) {
	var out checkLoginResponse
	if _, err := c.do(ctx, request{
		op:     "check_login",
		method: http.MethodGet,
		path:   "/check_login",
		cookie: cookie,
		out:    &out,
	}); err != nil {
		return nil, err
	}
	return &LoginStatus{LoggedIn: out.IsLoggedIn, IsDoctor: out.IsDoctor}, nil
}

func (c *Client) Logout(ctx context.Context, cookie string) error {
	_, err := c.do(ctx, request{
		op:     "logout",
		method: http.MethodGet,
		path:   "/logout",
		cookie: cookie,
	})
	return err
}
