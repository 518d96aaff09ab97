package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/iliyamo/campus-marketplace/internal/model"
)

const listingsPath = "/rest/v1/listings"

func (c *Client) Select(ctx context.Context, f model.ListingFilter) ([]model.Listing, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", string(f.Category))
	}
	if f.SellerEmail != "" {
		q.Set("seller_email", f.SellerEmail)
	}
	if f.Ascending {
		q.Set("order", "created_at.asc")
	} else {
		q.Set("order", "created_at.desc")
	}
	out := []model.Listing{}
	if err := c.do(ctx, request{method: http.MethodGet, path: listingsPath + "?" + q.Encode(), token: token}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Insert(ctx context.Context, in model.NewListing) (*model.Listing, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	var out model.Listing
	if err := c.do(ctx, request{method: http.MethodPost, path: listingsPath, token: token, payload: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetActive(ctx context.Context, id string, active bool) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, request{
		method:  http.MethodPatch,
		path:    listingsPath + "/" + url.PathEscape(id),
		token:   token,
		payload: map[string]bool{"is_active": active},
	}, nil)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, request{method: http.MethodDelete, path: listingsPath + "/" + url.PathEscape(id), token: token}, nil)
}
