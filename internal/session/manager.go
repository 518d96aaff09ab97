// Package session owns the current user's identity on the client side. The
// Manager fetches the backend session at start-up, follows session-change
// notifications until it is closed, and gates the rest of the client on
// whether somebody is signed in.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/iliyamo/campus-marketplace/internal/backend"
	"github.com/iliyamo/campus-marketplace/internal/config"
)

// State is the sign-in state of the client.
type State int

const (
	// Unknown is the transient state before the start-up fetch completes.
	Unknown State = iota
	Unauthenticated
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Notices returned to the user on success.
const (
	NoticeConfirmEmail = "Check your college email for a confirmation link!"
	NoticeResetSent    = "Password reset link sent. Check your email."
)

// Listener is told about every state change.
type Listener func(state State, sess *backend.Session)

// Manager is safe for concurrent use. Listeners run outside its lock on the
// goroutine that caused the change.
type Manager struct {
	auth   backend.Auth
	market config.Market

	mu          sync.Mutex
	state       State
	sess        *backend.Session
	unsubscribe func()
	subs        map[int]Listener
	nextSub     int
}

// New returns a Manager in the Unknown state. Call Start before use.
func New(auth backend.Auth, market config.Market) *Manager {
	return &Manager{auth: auth, market: market, subs: map[int]Listener{}}
}

// Start registers the session-change listener and resolves the initial
// state from the backend's current session. Calling Start twice registers
// the listener once.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.unsubscribe == nil {
		m.unsubscribe = m.auth.OnSessionChange(m.onChange)
	}
	m.mu.Unlock()

	sess, err := m.auth.GetSession(ctx)
	if err != nil {
		m.apply(nil)
		return backend.AsBackendError(err)
	}
	m.apply(sess)
	return nil
}

// Close deregisters the session-change listener.
func (m *Manager) Close() {
	m.mu.Lock()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (m *Manager) onChange(ev backend.Event, sess *backend.Session) {
	if ev == backend.EventSignedOut {
		sess = nil
	}
	m.apply(sess)
}

func (m *Manager) apply(sess *backend.Session) {
	m.mu.Lock()
	m.sess = sess
	if sess != nil {
		m.state = Authenticated
	} else {
		m.state = Unauthenticated
	}
	state := m.state
	subs := make([]Listener, 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(state, sess)
	}
}

// SignUp creates an account. The address must carry the institutional domain;
// otherwise a ValidationError is returned and the backend is not contacted.
// On success the returned notice asks the user to confirm by email, unless
// the backend already issued a session, in which case the Manager becomes
// Authenticated.
func (m *Manager) SignUp(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if err := m.checkEmail(email); err != nil {
		return "", err
	}
	sess, err := m.auth.SignUp(ctx, email, password)
	if err != nil {
		return "", backend.AsBackendError(err)
	}
	if sess != nil {
		m.apply(sess)
		return "Signed up and logged in as " + sess.User.Email, nil
	}
	return NoticeConfirmEmail, nil
}

// Login signs in with the same domain check as SignUp.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if err := m.checkEmail(email); err != nil {
		return err
	}
	sess, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		return backend.AsBackendError(err)
	}
	m.apply(sess)
	return nil
}

// RequestPasswordReset asks the backend to mail a recovery link that lands on
// the configured reset page.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", backend.Invalid("email", "Please enter your email address.")
	}
	if err := m.auth.RequestPasswordReset(ctx, email, m.market.ResetRedirect); err != nil {
		return "", backend.AsBackendError(err)
	}
	return NoticeResetSent, nil
}

// SignOut ends the session. The Manager is Unauthenticated afterwards even
// when the backend call fails, so the user is never left half signed in.
func (m *Manager) SignOut(ctx context.Context) error {
	err := m.auth.SignOut(ctx)
	m.apply(nil)
	return backend.AsBackendError(err)
}

func (m *Manager) checkEmail(email string) error {
	if email == "" {
		return backend.Invalid("email", "Please enter your email address.")
	}
	if !m.market.AllowsEmail(email) {
		return backend.Invalid("email", "Only %s email addresses can join.", m.market.EmailDomain)
	}
	return nil
}

// State returns the current sign-in state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the active session or nil.
func (m *Manager) Session() *backend.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// Email returns the signed-in user's email, or "" when signed out.
func (m *Manager) Email() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return ""
	}
	return m.sess.User.Email
}

// Banner is the signed-in status line.
func (m *Manager) Banner() string {
	if e := m.Email(); e != "" {
		return "Logged in as: " + e
	}
	return "Not logged in"
}

// Subscribe registers fn for state changes and returns a function removing
// it. Dependents mount on Authenticated and unmount on Unauthenticated.
func (m *Manager) Subscribe(fn Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}
