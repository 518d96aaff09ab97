package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/campus-marketplace/internal/model"
)

// EmailTokenRepo stores the one-time tokens embedded in confirmation and
// password recovery links.
type EmailTokenRepo struct{ DB *sql.DB }

func NewEmailTokenRepo(db *sql.DB) *EmailTokenRepo { return &EmailTokenRepo{DB: db} }

// Store inserts a token hash for the user.
func (r *EmailTokenRepo) Store(ctx context.Context, t model.EmailToken) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO email_tokens (user_id, kind, token_hash, redirect_to, expires_at) VALUES (?,?,?,?,?)",
		t.UserID, string(t.Kind), t.TokenHash, t.RedirectTo, t.ExpiresAt)
	return err
}

// Consume marks the token as used and returns it. Unknown, expired and
// already used tokens yield ErrTokenInvalid.
func (r *EmailTokenRepo) Consume(ctx context.Context, kind model.EmailTokenKind, tokenHash string) (model.EmailToken, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.EmailToken{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		t    model.EmailToken
		used sql.NullTime
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, redirect_to, expires_at, used_at
		 FROM email_tokens WHERE token_hash=? AND kind=? LIMIT 1 FOR UPDATE`,
		tokenHash, string(kind)).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.RedirectTo, &t.ExpiresAt, &used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.EmailToken{}, ErrTokenInvalid
		}
		return model.EmailToken{}, err
	}
	if used.Valid || time.Now().UTC().After(t.ExpiresAt) {
		return model.EmailToken{}, ErrTokenInvalid
	}
	if _, err := tx.ExecContext(ctx, "UPDATE email_tokens SET used_at=UTC_TIMESTAMP() WHERE id=?", t.ID); err != nil {
		return model.EmailToken{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.EmailToken{}, err
	}
	t.Kind = kind
	now := time.Now().UTC()
	t.UsedAt = &now
	return t, nil
}
