// Package backend declares the capabilities the marketplace client consumes
// from its backend service: authentication, the listings table and the
// listing image bucket. The client core is written against these interfaces
// only; internal/client implements them over HTTP and backendtest in memory.
package backend

import (
	"context"
	"io"
	"time"

	"github.com/iliyamo/campus-marketplace/internal/model"
)

// User is the account identity carried by a session.
type User struct {
	ID          uint64     `json:"id" yaml:"id"`
	Email       string     `json:"email" yaml:"email"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty" yaml:"confirmed_at,omitempty"`
}

// Session is an issued access/refresh token pair and the user it belongs to.
type Session struct {
	AccessToken  string    `json:"access_token" yaml:"access_token"`
	RefreshToken string    `json:"refresh_token" yaml:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" yaml:"expires_at"`
	User         User      `json:"user" yaml:"user"`
}

// Expired reports whether the access token is past its expiry at now. A
// session with no expiry never expires.
func (s *Session) Expired(now time.Time) bool {
	return s != nil && !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Event names a session change delivered to OnSessionChange listeners.
type Event string

const (
	EventInitialSession   Event = "INITIAL_SESSION"
	EventSignedIn         Event = "SIGNED_IN"
	EventSignedOut        Event = "SIGNED_OUT"
	EventTokenRefreshed   Event = "TOKEN_REFRESHED"
	EventUserUpdated      Event = "USER_UPDATED"
	EventPasswordRecovery Event = "PASSWORD_RECOVERY"
)

// SessionListener receives session changes. sess is nil after sign-out.
type SessionListener func(ev Event, sess *Session)

// Auth is the authentication capability.
type Auth interface {
	// SignUp creates an account. The returned session is nil while the
	// account awaits email confirmation.
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
	// GetSession returns the current session, or nil when there is none.
	GetSession(ctx context.Context) (*Session, error)
	// GetUser asks the backend for the user behind the current session.
	// It returns ErrNoSession when nobody is signed in.
	GetUser(ctx context.Context) (*User, error)
	// OnSessionChange registers fn and returns a function that removes it.
	OnSessionChange(fn SessionListener) (unsubscribe func())
	RequestPasswordReset(ctx context.Context, email, redirectTo string) error
}

// ListingStore is the `listings` table.
type ListingStore interface {
	Select(ctx context.Context, f model.ListingFilter) ([]model.Listing, error)
	Insert(ctx context.Context, in model.NewListing) (*model.Listing, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

// ObjectStore is the binary object store holding listing images.
type ObjectStore interface {
	// Upload stores r under key. Keys are immutable; uploading an existing
	// key fails with a BackendError carrying status 409.
	Upload(ctx context.Context, bucket, key, contentType string, r io.Reader) error
	PublicURL(bucket, key string) string
}
