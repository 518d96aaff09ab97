package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/campus-marketplace/internal/model"
)

// ListingRepo encapsulates all queries against the `listings` table.
type ListingRepo struct {
	db *sqlx.DB
}

// NewListingRepo wraps the shared connection pool for named queries and
// struct scanning.
func NewListingRepo(db *sql.DB) *ListingRepo {
	return &ListingRepo{db: sqlx.NewDb(db, "mysql")}
}

const listingColumns = `id, title, price, description, category, seller_email, seller_phone, image_url, is_active, created_at`

// Select returns every listing matching the filter. The full result is
// returned; the feed has no pagination.
func (r *ListingRepo) Select(ctx context.Context, f model.ListingFilter) ([]model.Listing, error) {
	where := []string{}
	args := []any{}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.SellerEmail != "" {
		where = append(where, "seller_email = ?")
		args = append(args, normalizeEmail(f.SellerEmail))
	}

	q := "SELECT " + listingColumns + " FROM listings"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Ascending {
		q += " ORDER BY created_at ASC, id ASC"
	} else {
		q += " ORDER BY created_at DESC, id DESC"
	}

	out := []model.Listing{}
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID fetches one listing.
func (r *ListingRepo) GetByID(ctx context.Context, id string) (*model.Listing, error) {
	var l model.Listing
	err := r.db.GetContext(ctx, &l, "SELECT "+listingColumns+" FROM listings WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &l, nil
}

// Insert stores a new listing and returns it with the server-assigned id and
// creation time. IsActive defaults to true.
func (r *ListingRepo) Insert(ctx context.Context, in model.NewListing) (*model.Listing, error) {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	row := model.Listing{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Price:       in.Price,
		Description: in.Description,
		Category:    in.Category,
		SellerEmail: normalizeEmail(in.SellerEmail),
		SellerPhone: in.SellerPhone,
		ImageURL:    in.ImageURL,
		IsActive:    active,
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO listings
			(id, title, price, description, category, seller_email, seller_phone, image_url, is_active)
		VALUES
			(:id, :title, :price, :description, :category, :seller_email, :seller_phone, :image_url, :is_active)
	`, row)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, row.ID)
}

// SetActive updates the active flag of a listing owned by sellerEmail.
func (r *ListingRepo) SetActive(ctx context.Context, id, sellerEmail string, active bool) error {
	return r.mutateOwned(ctx, id, sellerEmail, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE listings SET is_active = ? WHERE id = ?", active, id)
		return err
	})
}

// Delete removes a listing owned by sellerEmail. Its image object, if any, is
// left in the object store.
func (r *ListingRepo) Delete(ctx context.Context, id, sellerEmail string) error {
	return r.mutateOwned(ctx, id, sellerEmail, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM listings WHERE id = ?", id)
		return err
	})
}

// mutateOwned locks the row, compares its seller email with the caller's and
// runs fn in the same transaction. Missing rows yield ErrListingNotFound,
// rows of another seller ErrForbidden.
func (r *ListingRepo) mutateOwned(ctx context.Context, id, sellerEmail string, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	var owner string
	if err = tx.GetContext(ctx, &owner, "SELECT seller_email FROM listings WHERE id = ? FOR UPDATE", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrListingNotFound
		}
		return err
	}
	if !strings.EqualFold(owner, strings.TrimSpace(sellerEmail)) {
		return ErrForbidden
	}
	return fn(tx)
}
