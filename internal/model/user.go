package model

import "time"

// User represents an account record as stored in the `users` table.
// These structs are used by the repository layer; handlers define separate
// response types with JSON tags.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Email        – unique, lower-cased email address.
//	PasswordHash – bcrypt hashed password.
//	ConfirmedAt  – when the sign-up link was followed (nil until then).
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64     // users.id
	Email        string     // users.email
	PasswordHash string     // users.password_hash
	ConfirmedAt  *time.Time // users.confirmed_at (nullable)
	CreatedAt    time.Time  // users.created_at
	UpdatedAt    time.Time  // users.updated_at
}

// Confirmed reports whether the account has completed email confirmation.
func (u User) Confirmed() bool { return u.ConfirmedAt != nil }

// RefreshToken models an entry in the `refresh_tokens` table. The plain
// token is never stored; only its SHA-256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}

// EmailTokenKind distinguishes the links sent by mail.
type EmailTokenKind string

const (
	EmailTokenSignup   EmailTokenKind = "signup"
	EmailTokenRecovery EmailTokenKind = "recovery"
)

// EmailToken models a one-time link token in the `email_tokens` table.
type EmailToken struct {
	ID         uint64         // email_tokens.id
	UserID     uint64         // email_tokens.user_id
	Kind       EmailTokenKind // email_tokens.kind
	TokenHash  string         // email_tokens.token_hash
	RedirectTo string         // email_tokens.redirect_to
	ExpiresAt  time.Time      // email_tokens.expires_at
	UsedAt     *time.Time     // email_tokens.used_at (nullable)
}
