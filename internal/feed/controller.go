// Package feed keeps the listing feed shown to a signed-in user: the query
// parameters, the last result set and the title search applied over it.
package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/iliyamo/campus-marketplace/internal/backend"
	"github.com/iliyamo/campus-marketplace/internal/model"
)

// AllCategories is the category filter that matches every listing.
const AllCategories model.Category = "All"

// Scope selects whose listings are shown.
type Scope int

const (
	ScopeAll Scope = iota
	ScopeOwn
)

func (s Scope) String() string {
	if s == ScopeOwn {
		return "my_posts"
	}
	return "all"
}

// EmailSource yields the signed-in user's email. *session.Manager satisfies it.
type EmailSource interface {
	Email() string
}

// Controller issues feed queries and holds their result. A query failure
// leaves an empty result; the failure itself is kept in LastError.
type Controller struct {
	store backend.ListingStore
	who   EmailSource

	mu       sync.Mutex
	category model.Category
	scope    Scope
	search   string
	items    []model.Listing
	lastErr  error
}

// New returns a Controller showing all categories and all sellers. Nothing
// is fetched until Refresh or a parameter change.
func New(store backend.ListingStore, who EmailSource) *Controller {
	return &Controller{store: store, who: who, category: AllCategories, scope: ScopeAll, items: []model.Listing{}}
}

// SetCategory changes the category filter and re-runs the query. An empty
// category means All.
func (c *Controller) SetCategory(ctx context.Context, cat model.Category) {
	if cat == "" {
		cat = AllCategories
	}
	c.mu.Lock()
	c.category = cat
	c.mu.Unlock()
	c.Refresh(ctx)
}

// SetScope changes the view scope and re-runs the query.
func (c *Controller) SetScope(ctx context.Context, s Scope) {
	c.mu.Lock()
	c.scope = s
	c.mu.Unlock()
	c.Refresh(ctx)
}

// SetParams changes category and scope together and queries once. An empty
// category means All.
func (c *Controller) SetParams(ctx context.Context, cat model.Category, s Scope) {
	if cat == "" {
		cat = AllCategories
	}
	c.mu.Lock()
	c.category = cat
	c.scope = s
	c.mu.Unlock()
	c.Refresh(ctx)
}

// Params returns the current category filter and scope.
func (c *Controller) Params() (model.Category, Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.category, c.scope
}

// Refresh re-issues the query for the current parameters, newest first, and
// replaces the result set.
func (c *Controller) Refresh(ctx context.Context) {
	c.mu.Lock()
	f := model.ListingFilter{}
	if c.category != AllCategories {
		f.Category = c.category
	}
	own := c.scope == ScopeOwn
	c.mu.Unlock()

	var (
		rows []model.Listing
		err  error
	)
	if own {
		f.SellerEmail = c.who.Email()
		if f.SellerEmail == "" {
			err = backend.ErrNoSession
		}
	}
	if err == nil {
		rows, err = c.store.Select(ctx, f)
	}
	if err != nil || rows == nil {
		rows = []model.Listing{}
	}

	c.mu.Lock()
	c.items = rows
	c.lastErr = err
	c.mu.Unlock()
}

// Items returns the unfiltered result of the last query.
func (c *Controller) Items() []model.Listing {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Listing, len(c.items))
	copy(out, c.items)
	return out
}

// LastError returns the error that emptied the last result, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// SetSearch sets the title search term used by Visible.
func (c *Controller) SetSearch(term string) {
	c.mu.Lock()
	c.search = term
	c.mu.Unlock()
}

// Visible returns the result set narrowed by the current search term.
func (c *Controller) Visible() []model.Listing {
	c.mu.Lock()
	items, term := c.items, c.search
	c.mu.Unlock()
	return Filter(items, term)
}

// Filter keeps listings whose title contains term, ignoring case. Only the
// title is searched.
func Filter(items []model.Listing, term string) []model.Listing {
	needle := strings.ToLower(term)
	out := make([]model.Listing, 0, len(items))
	for _, l := range items {
		if strings.Contains(strings.ToLower(l.Title), needle) {
			out = append(out, l)
		}
	}
	return out
}

// EmptyText is shown when nothing is visible.
func (c *Controller) EmptyText() string {
	cat, _ := c.Params()
	return fmt.Sprintf("No items found in %s.", cat)
}

// SearchPlaceholder is the prompt for the search box.
func (c *Controller) SearchPlaceholder() string {
	cat, _ := c.Params()
	return fmt.Sprintf("Search in %s...", cat)
}
