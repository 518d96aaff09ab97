package model

import "time"

// Category is one of the fixed sections a listing is posted into.
type Category string

const (
	CategoryBuySell      Category = "Buy/Sell"
	CategoryLostFound    Category = "Lost & Found"
	CategoryCabSharing   Category = "Cab Sharing"
	CategoryTrainTickets Category = "Train Tickets"
	CategoryMovieTickets Category = "Movie Tickets"
)

// DefaultCategories returns the postable categories in display order.
func DefaultCategories() []Category {
	return []Category{
		CategoryBuySell,
		CategoryLostFound,
		CategoryCabSharing,
		CategoryTrainTickets,
		CategoryMovieTickets,
	}
}

// Listing represents a marketplace post as stored in the `listings` table.
//
// SellerEmail is a denormalized copy of the creator's account email. It is
// written once at insert time and is the only ownership proof a listing has.
// ImageURL is empty when the post was created without an image.
type Listing struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Price       int64     `db:"price" json:"price"`
	Description string    `db:"description" json:"description"`
	Category    Category  `db:"category" json:"category"`
	SellerEmail string    `db:"seller_email" json:"seller_email"`
	SellerPhone string    `db:"seller_phone" json:"seller_phone"`
	ImageURL    string    `db:"image_url" json:"image_url"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// HasImage reports whether the listing references an uploaded image.
func (l Listing) HasImage() bool { return l.ImageURL != "" }

// NewListing is the insert payload. The store assigns ID and CreatedAt and
// defaults IsActive to true when it is nil.
type NewListing struct {
	Title       string   `json:"title"`
	Price       int64    `json:"price"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	SellerEmail string   `json:"seller_email"`
	SellerPhone string   `json:"seller_phone"`
	ImageURL    string   `json:"image_url"`
	IsActive    *bool    `json:"is_active,omitempty"`
}

// ListingFilter narrows a feed query. Zero values mean "no filter"; results
// are ordered by creation time, newest first unless Ascending is set.
type ListingFilter struct {
	Category    Category
	SellerEmail string
	Ascending   bool
}
