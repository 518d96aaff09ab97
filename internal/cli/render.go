package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/iliyamo/campus-marketplace/internal/model"
	"github.com/iliyamo/campus-marketplace/internal/pipeline"
)

// printListings writes one block per listing. Listings owned by email are
// marked with their id so they can be toggled or deleted.
func printListings(w io.Writer, items []model.Listing, email string) {
	for _, l := range items {
		status := ""
		if !l.IsActive {
			status = " [SOLD/CLOSED]"
		}
		fmt.Fprintf(w, "%s  Rs. %d  (%s)%s\n", l.Title, l.Price, l.Category, status)
		if l.Description != "" {
			fmt.Fprintf(w, "    %s\n", l.Description)
		}
		contact := l.SellerEmail
		if l.SellerPhone != "" {
			contact += " / " + l.SellerPhone
		}
		fmt.Fprintf(w, "    Contact: %s\n", contact)
		if l.HasImage() {
			fmt.Fprintf(w, "    Image: %s\n", l.ImageURL)
		}
		if pipeline.CanManage(l, email) {
			fmt.Fprintf(w, "    Manage: id=%s active=%t\n", l.ID, l.IsActive)
		}
		fmt.Fprintf(w, "    Posted %s\n", l.CreatedAt.Local().Format("02 Jan 2006 15:04"))
	}
}

// categoryList renders the category choices for flag help.
func categoryList(cats []model.Category) string {
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = fmt.Sprintf("%q", string(c))
	}
	return strings.Join(names, ", ")
}
