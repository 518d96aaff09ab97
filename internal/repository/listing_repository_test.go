package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/iliyamo/campus-marketplace/internal/model"
)

var listingCols = []string{"id", "title", "price", "description", "category", "seller_email", "seller_phone", "image_url", "is_active", "created_at"}

func newListingMock(t *testing.T) (*ListingRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewListingRepo(db), mock
}

func TestListingSelectBuildsFilters(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name    string
		filter  model.ListingFilter
		pattern string
		args    []driver.Value
	}{
		{
			name:    "all categories newest first",
			filter:  model.ListingFilter{},
			pattern: `FROM listings ORDER BY created_at DESC, id DESC$`,
		},
		{
			name:    "category filter",
			filter:  model.ListingFilter{Category: model.CategoryLostFound},
			pattern: `FROM listings WHERE category = \? ORDER BY created_at DESC`,
			args:    []driver.Value{"Lost & Found"},
		},
		{
			name:    "own posts in a category",
			filter:  model.ListingFilter{Category: model.CategoryBuySell, SellerEmail: " A@NITC.ac.in "},
			pattern: `WHERE category = \? AND seller_email = \? ORDER BY created_at DESC`,
			args:    []driver.Value{"Buy/Sell", "a@nitc.ac.in"},
		},
		{
			name:    "oldest first",
			filter:  model.ListingFilter{Ascending: true},
			pattern: `ORDER BY created_at ASC, id ASC$`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newListingMock(t)
			rows := sqlmock.NewRows(listingCols).
				AddRow("L1", "Bike", int64(500), "red", "Buy/Sell", "a@nitc.ac.in", "999", "", true, now)
			exp := mock.ExpectQuery(tt.pattern)
			if len(tt.args) > 0 {
				exp = exp.WithArgs(tt.args...)
			}
			exp.WillReturnRows(rows)

			got, err := repo.Select(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			if len(got) != 1 || got[0].Title != "Bike" || got[0].Price != 500 || !got[0].IsActive {
				t.Errorf("unexpected rows: %+v", got)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestListingSelectEmptyIsNotNil(t *testing.T) {
	repo, mock := newListingMock(t)
	mock.ExpectQuery(`FROM listings`).WillReturnRows(sqlmock.NewRows(listingCols))

	got, err := repo.Select(context.Background(), model.ListingFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestListingInsertDefaultsActive(t *testing.T) {
	repo, mock := newListingMock(t)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO listings")).
		WithArgs(sqlmock.AnyArg(), "Bike", int64(500), "red bike", "Buy/Sell", "a@nitc.ac.in", "999", "", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM listings WHERE id = \?`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(listingCols).
			AddRow("L1", "Bike", int64(500), "red bike", "Buy/Sell", "a@nitc.ac.in", "999", "", true, now))

	got, err := repo.Insert(context.Background(), model.NewListing{
		Title:       "Bike",
		Price:       500,
		Description: "red bike",
		Category:    model.CategoryBuySell,
		SellerEmail: "A@nitc.ac.in",
		SellerPhone: "999",
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !got.IsActive || got.HasImage() {
		t.Errorf("expected active listing without image, got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListingSetActiveOwnership(t *testing.T) {
	t.Run("owner", func(t *testing.T) {
		repo, mock := newListingMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT seller_email FROM listings WHERE id = \? FOR UPDATE`).
			WithArgs("L1").
			WillReturnRows(sqlmock.NewRows([]string{"seller_email"}).AddRow("a@nitc.ac.in"))
		mock.ExpectExec(`UPDATE listings SET is_active = \? WHERE id = \?`).
			WithArgs(false, "L1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		if err := repo.SetActive(context.Background(), "L1", "A@nitc.ac.in", false); err != nil {
			t.Fatalf("SetActive: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("other seller", func(t *testing.T) {
		repo, mock := newListingMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT seller_email FROM listings`).
			WithArgs("L1").
			WillReturnRows(sqlmock.NewRows([]string{"seller_email"}).AddRow("b@nitc.ac.in"))
		mock.ExpectRollback()

		err := repo.SetActive(context.Background(), "L1", "a@nitc.ac.in", false)
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})
}

func TestListingDeleteMissing(t *testing.T) {
	repo, mock := newListingMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT seller_email FROM listings`).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"seller_email"}))
	mock.ExpectRollback()

	if err := repo.Delete(context.Background(), "gone", "a@nitc.ac.in"); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
