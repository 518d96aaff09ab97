package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/campus-marketplace/internal/model"
	"github.com/iliyamo/campus-marketplace/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,password_hash,confirmed_at,created_at,updated_at"

// Create inserts a user and returns its ID. When confirmed is true the account
// skips email confirmation.
func (r *UserRepo) Create(ctx context.Context, email, password string, cost int, confirmed bool) (uint64, error) {
	email = normalizeEmail(email)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	q := "INSERT INTO users (email, password_hash) VALUES (?,?)"
	if confirmed {
		q = "INSERT INTO users (email, password_hash, confirmed_at) VALUES (?,?,UTC_TIMESTAMP())"
	}
	res, err := r.DB.ExecContext(ctx, q, email, hash)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// Confirm marks the account as confirmed. Confirming twice keeps the first
// timestamp.
func (r *UserRepo) Confirm(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET confirmed_at=COALESCE(confirmed_at, UTC_TIMESTAMP()) WHERE id=?", id)
	return err
}

// UpdatePassword replaces the password hash of the user.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, password string, cost int) error {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET password_hash=? WHERE id=?", hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var (
		u         model.User
		confirmed sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &confirmed, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return model.User{}, err
	}
	if confirmed.Valid {
		t := confirmed.Time
		u.ConfirmedAt = &t
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
