package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/iliyamo/campus-marketplace/internal/backend"
)

// tokenResponse is the session payload of the auth endpoints. Sign-up
// without auto-confirmation answers with the user only.
type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         backend.User `json:"user"`
}

func (t tokenResponse) session() *backend.Session {
	if t.AccessToken == "" {
		return nil
	}
	return &backend.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    time.Unix(t.ExpiresAt, 0).UTC(),
		User:         t.User,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*backend.Session, error) {
	var out tokenResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/signup", payload: credentials{email, password}}, &out); err != nil {
		return nil, err
	}
	sess := out.session()
	if sess != nil {
		c.setSession(backend.EventSignedIn, sess)
	}
	return sess, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	var out tokenResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/token?grant_type=password", payload: credentials{email, password}}, &out); err != nil {
		return nil, err
	}
	sess := out.session()
	if sess == nil {
		return nil, &backend.BackendError{Status: http.StatusBadGateway, Message: "sign-in returned no session"}
	}
	c.setSession(backend.EventSignedIn, sess)
	return sess, nil
}

// SignOut revokes the refresh tokens server-side and forgets the local
// session. The local session is dropped even when the server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	sess := c.current()
	if sess == nil {
		return nil
	}
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/logout", token: sess.AccessToken}, nil)
	c.setSession(backend.EventSignedOut, nil)
	if backend.StatusOf(err) == http.StatusUnauthorized {
		return nil
	}
	return err
}

// GetSession returns the current session, refreshing an expired access
// token first. A refresh rejected by the server signs the user out; a
// transport failure is returned and the session kept.
func (c *Client) GetSession(ctx context.Context) (*backend.Session, error) {
	sess := c.current()
	if sess == nil || !sess.Expired(c.now().Add(refreshSkew)) {
		return sess, nil
	}

	var out tokenResponse
	err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/auth/v1/token?grant_type=refresh_token",
		payload: map[string]string{"refresh_token": sess.RefreshToken},
	}, &out)
	if err != nil {
		if backend.StatusOf(err) == 0 {
			return nil, err
		}
		c.setSession(backend.EventSignedOut, nil)
		return nil, nil
	}
	next := out.session()
	if next == nil {
		c.setSession(backend.EventSignedOut, nil)
		return nil, nil
	}
	c.setSession(backend.EventTokenRefreshed, next)
	return next, nil
}

func (c *Client) GetUser(ctx context.Context) (*backend.User, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	var u backend.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/v1/user", token: token}, &u); err != nil {
		if backend.StatusOf(err) == http.StatusUnauthorized {
			c.setSession(backend.EventSignedOut, nil)
			return nil, backend.ErrNoSession
		}
		return nil, err
	}
	return &u, nil
}

// UpdatePassword changes the signed-in user's password.
func (c *Client) UpdatePassword(ctx context.Context, password string) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	var u backend.User
	if err := c.do(ctx, request{method: http.MethodPut, path: "/auth/v1/user", token: token, payload: map[string]string{"password": password}}, &u); err != nil {
		return err
	}
	if sess := c.current(); sess != nil {
		next := *sess
		next.User = u
		c.setSession(backend.EventUserUpdated, &next)
	}
	return nil
}

// ExchangeRecoveryToken trades the token of a recovery link for a session.
func (c *Client) ExchangeRecoveryToken(ctx context.Context, token string) (*backend.Session, error) {
	q := url.Values{"type": {"recovery"}, "token": {token}}
	var out tokenResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/v1/verify?" + q.Encode()}, &out); err != nil {
		return nil, err
	}
	sess := out.session()
	if sess == nil {
		return nil, &backend.BackendError{Status: http.StatusBadGateway, Message: "verify returned no session"}
	}
	c.setSession(backend.EventPasswordRecovery, sess)
	return sess, nil
}

func (c *Client) OnSessionChange(fn backend.SessionListener) func() {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	return c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/auth/v1/recover",
		payload: map[string]string{"email": email, "redirect_to": redirectTo},
	}, nil)
}
