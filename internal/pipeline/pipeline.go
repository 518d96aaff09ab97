// Package pipeline implements the listing write path: posting a new listing
// with an optional image, toggling a listing's active flag and deleting it.
//
// Upload and insert are two independent backend calls. When the insert fails
// after a successful upload the object stays in the bucket; nothing cleans it
// up.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/campus-marketplace/internal/backend"
	"github.com/iliyamo/campus-marketplace/internal/config"
	"github.com/iliyamo/campus-marketplace/internal/model"
)

// ImageFile is an image attached to the post form.
type ImageFile struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Form holds the raw post form input. Price is kept as typed and parsed on
// submit.
type Form struct {
	Title       string
	Price       string
	Description string
	Category    model.Category
	Phone       string
	Image       *ImageFile
}

// Reset clears every field.
func (f *Form) Reset() { *f = Form{} }

// Refresher re-runs the feed query. *feed.Controller satisfies it.
type Refresher interface {
	Refresh(ctx context.Context)
}

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// UploadError reports that the attached image could not be stored. No
// listing was created.
type UploadError struct{ Err error }

func (e *UploadError) Error() string { return "image upload failed: " + e.Err.Error() }

func (e *UploadError) Unwrap() error { return e.Err }

// NoticePosted is returned after a successful submit.
const NoticePosted = "Success! Your post is live."

// Pipeline is the write side of the marketplace.
type Pipeline struct {
	auth     backend.Auth
	listings backend.ListingStore
	objects  backend.ObjectStore
	feed     Refresher
	market   config.Market

	now func() time.Time
}

// New wires the pipeline. feed may be nil when no feed is mounted.
func New(auth backend.Auth, listings backend.ListingStore, objects backend.ObjectStore, feed Refresher, market config.Market) *Pipeline {
	return &Pipeline{auth: auth, listings: listings, objects: objects, feed: feed, market: market, now: time.Now}
}

// ObjectKey derives the storage key for an upload: the upload time in unix
// milliseconds, a dash and the original file name. Two uploads of the same
// name in the same millisecond collide; the store rejects the second one.
func ObjectKey(at time.Time, filename string) string {
	name := strings.TrimSpace(filename)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return fmt.Sprintf("%d-%s", at.UnixMilli(), name)
}

// Submit posts the form. It uploads the image first, if any, then inserts
// the listing stamped with the email of the current user as the backend
// reports it now. On success the form is cleared and the feed refreshed; on
// any failure the form is left as it was.
func (p *Pipeline) Submit(ctx context.Context, f *Form) (*model.Listing, error) {
	in, err := p.validate(f)
	if err != nil {
		return nil, err
	}

	if f.Image != nil {
		key := ObjectKey(p.now(), f.Image.Name)
		ct := f.Image.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		if err := p.objects.Upload(ctx, p.market.ImageBucket, key, ct, f.Image.Body); err != nil {
			return nil, &UploadError{Err: backend.AsBackendError(err)}
		}
		in.ImageURL = p.objects.PublicURL(p.market.ImageBucket, key)
	}

	user, err := p.auth.GetUser(ctx)
	if err != nil {
		return nil, backend.AsBackendError(err)
	}
	in.SellerEmail = user.Email

	created, err := p.listings.Insert(ctx, in)
	if err != nil {
		return nil, backend.AsBackendError(err)
	}

	f.Reset()
	p.refresh(ctx)
	return created, nil
}

func (p *Pipeline) validate(f *Form) (model.NewListing, error) {
	if f == nil {
		return model.NewListing{}, backend.Invalid("form", "Nothing to submit.")
	}
	title := strings.TrimSpace(f.Title)
	if title == "" {
		return model.NewListing{}, backend.Invalid("title", "Title is required.")
	}
	price, err := strconv.ParseInt(strings.TrimSpace(f.Price), 10, 64)
	if err != nil {
		return model.NewListing{}, backend.Invalid("price", "Price must be a whole number.")
	}
	if price < 0 {
		return model.NewListing{}, backend.Invalid("price", "Price cannot be negative.")
	}
	if !p.market.HasCategory(f.Category) {
		return model.NewListing{}, backend.Invalid("category", "Unknown category %q.", f.Category)
	}
	active := true
	return model.NewListing{
		Title:       title,
		Price:       price,
		Description: f.Description,
		Category:    f.Category,
		SellerPhone: f.Phone,
		IsActive:    &active,
	}, nil
}

// ToggleActive sets the active flag of a listing to the negation of
// current. The feed is refreshed only on success; a failure is returned and
// the displayed feed keeps its stale value.
func (p *Pipeline) ToggleActive(ctx context.Context, id string, current bool) error {
	if err := p.listings.SetActive(ctx, id, !current); err != nil {
		return backend.AsBackendError(err)
	}
	p.refresh(ctx)
	return nil
}

// Delete removes a listing after the user confirms. A declined confirmation
// returns (false, nil) without calling the backend.
func (p *Pipeline) Delete(ctx context.Context, id string, confirm Confirmer) (bool, error) {
	if confirm == nil || !confirm.Confirm("Are you sure you want to delete this post?") {
		return false, nil
	}
	if err := p.listings.Delete(ctx, id); err != nil {
		return false, backend.AsBackendError(err)
	}
	p.refresh(ctx)
	return true, nil
}

// CanManage reports whether the toggle and delete controls are offered for
// l. This is a display rule only; the backend enforces ownership itself.
func CanManage(l model.Listing, sessionEmail string) bool {
	return sessionEmail != "" && strings.EqualFold(l.SellerEmail, sessionEmail)
}

func (p *Pipeline) refresh(ctx context.Context) {
	if p.feed != nil {
		p.feed.Refresh(ctx)
	}
}
