package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-marketplace/internal/config"
	"github.com/iliyamo/campus-marketplace/internal/middleware"
	"github.com/iliyamo/campus-marketplace/internal/model"
	"github.com/iliyamo/campus-marketplace/internal/repository"
)

// ListingHandler serves the listings table. Mutations are allowed only when
// the caller's token email equals the row's seller_email.
type ListingHandler struct {
	Repo   *repository.ListingRepo
	Market config.Market
}

func NewListingHandler(repo *repository.ListingRepo, market config.Market) *ListingHandler {
	if repo == nil {
		panic("nil repository passed to NewListingHandler")
	}
	return &ListingHandler{Repo: repo, Market: market}
}

// List returns every listing matching ?category= and ?seller_email=, ordered
// by ?order=created_at.desc (default) or created_at.asc.
func (h *ListingHandler) List(c echo.Context) error {
	f := model.ListingFilter{
		Category:    model.Category(strings.TrimSpace(c.QueryParam("category"))),
		SellerEmail: strings.TrimSpace(c.QueryParam("seller_email")),
	}
	switch c.QueryParam("order") {
	case "", "created_at.desc":
	case "created_at.asc":
		f.Ascending = true
	default:
		return fail(c, http.StatusBadRequest, "order must be created_at.desc or created_at.asc")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	rows, err := h.Repo.Select(ctx, f)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "query failed")
	}
	return c.JSON(http.StatusOK, rows)
}

// Create inserts a listing. seller_email defaults to the caller's email and
// may not name anybody else.
func (h *ListingHandler) Create(c echo.Context) error {
	email := middleware.Email(c)
	if email == "" {
		return unauthorized(c)
	}
	var in model.NewListing
	if err := c.Bind(&in); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fail(c, http.StatusBadRequest, "title required")
	}
	if in.Price < 0 {
		return fail(c, http.StatusBadRequest, "price must be non-negative")
	}
	if !h.Market.HasCategory(in.Category) {
		return fail(c, http.StatusBadRequest, "unknown category")
	}
	if strings.TrimSpace(in.SellerEmail) == "" {
		in.SellerEmail = email
	}
	if !strings.EqualFold(strings.TrimSpace(in.SellerEmail), email) {
		return fail(c, http.StatusForbidden, "seller_email must match the signed-in user")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	l, err := h.Repo.Insert(ctx, in)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "insert failed")
	}
	return c.JSON(http.StatusCreated, l)
}

type patchListingReq struct {
	IsActive *bool `json:"is_active"`
}

// Patch updates is_active, the only mutable column.
func (h *ListingHandler) Patch(c echo.Context) error {
	var req patchListingReq
	if err := c.Bind(&req); err != nil || req.IsActive == nil {
		return fail(c, http.StatusBadRequest, "is_active required")
	}
	return h.mutate(c, func(id, email string) error {
		ctx, cancel := reqCtx(c)
		defer cancel()
		return h.Repo.SetActive(ctx, id, email, *req.IsActive)
	})
}

// Delete hard-deletes a listing. The image object is kept.
func (h *ListingHandler) Delete(c echo.Context) error {
	return h.mutate(c, func(id, email string) error {
		ctx, cancel := reqCtx(c)
		defer cancel()
		return h.Repo.Delete(ctx, id, email)
	})
}

func (h *ListingHandler) mutate(c echo.Context, fn func(id, email string) error) error {
	email := middleware.Email(c)
	if email == "" {
		return unauthorized(c)
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	if err := fn(id, email); err != nil {
		switch {
		case errors.Is(err, repository.ErrListingNotFound):
			return fail(c, http.StatusNotFound, "listing not found")
		case errors.Is(err, repository.ErrForbidden):
			return fail(c, http.StatusForbidden, "only the seller can change this listing")
		}
		return fail(c, http.StatusInternalServerError, "update failed")
	}
	return c.NoContent(http.StatusNoContent)
}
