// Package client implements the backend contracts over HTTP against the
// marketplace service. The session lives in memory and, when a SessionStore
// is configured, is persisted between runs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/campus-marketplace/internal/backend"
)

// refreshSkew renews access tokens slightly before they expire.
const refreshSkew = 10 * time.Second

// Client talks to one marketplace service. It satisfies backend.Auth,
// backend.ListingStore and backend.ObjectStore.
type Client struct {
	baseURL string
	http    *http.Client
	store   SessionStore
	now     func() time.Time

	mu        sync.Mutex
	sess      *backend.Session
	listeners map[int]backend.SessionListener
	nextSub   int
}

var (
	_ backend.Auth         = (*Client)(nil)
	_ backend.ListingStore = (*Client)(nil)
	_ backend.ObjectStore  = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default 15s-timeout HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSessionStore persists the session through s. A session found in the
// store is restored by New.
func WithSessionStore(s SessionStore) Option {
	return func(c *Client) { c.store = s }
}

// New returns a Client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 15 * time.Second},
		now:       time.Now,
		listeners: map[int]backend.SessionListener{},
	}
	for _, o := range opts {
		o(c)
	}
	if c.store != nil {
		sess, err := c.store.Load()
		if err != nil {
			slog.Warn("client: discarding unreadable session file", "err", err)
		}
		c.sess = sess
	}
	return c
}

// apiError is the JSON error body returned by the service.
type apiError struct {
	Error string `json:"error"`
}

type request struct {
	method      string
	path        string
	payload     any
	body        io.Reader
	contentType string
	token       string
}

// do sends req and decodes a 2xx JSON response into out when out is non-nil.
// Non-2xx responses become a BackendError carrying the service's message.
func (c *Client) do(ctx context.Context, req request, out any) error {
	body := req.body
	ct := req.contentType
	if req.payload != nil {
		buf, err := json.Marshal(req.payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
		ct = "application/json"
	}

	hr, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return err
	}
	if ct != "" {
		hr.Header.Set("Content-Type", ct)
	}
	hr.Header.Set("Accept", "application/json")
	if req.token != "" {
		hr.Header.Set("Authorization", "Bearer "+req.token)
	}

	resp, err := c.http.Do(hr)
	if err != nil {
		return &backend.BackendError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var ae apiError
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &ae) == nil && ae.Error != "" {
			msg = ae.Error
		}
		return &backend.BackendError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &backend.BackendError{Status: resp.StatusCode, Err: fmt.Errorf("decode %s %s: %w", req.method, req.path, err)}
	}
	return nil
}

// accessToken returns a valid access token for the current session,
// refreshing it when needed.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	sess, err := c.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", backend.ErrNoSession
	}
	return sess.AccessToken, nil
}

// setSession replaces the session, persists it and notifies listeners.
func (c *Client) setSession(ev backend.Event, sess *backend.Session) {
	c.mu.Lock()
	c.sess = sess
	fns := make([]backend.SessionListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	if c.store != nil {
		var err error
		if sess == nil {
			err = c.store.Clear()
		} else {
			err = c.store.Save(sess)
		}
		if err != nil {
			slog.Warn("client: persist session failed", "err", err)
		}
	}
	for _, fn := range fns {
		fn(ev, sess)
	}
}

func (c *Client) current() *backend.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}
