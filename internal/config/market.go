package config

import (
	"strings"

	"github.com/iliyamo/campus-marketplace/internal/model"
)

// Market holds the fixed enumerations the marketplace behavior depends on.
// They are shared by the backend service and the interactive client.
type Market struct {
	EmailDomain   string           // required suffix of every account email, including "@"
	Categories    []model.Category // postable categories, in display order
	ImageBucket   string           // object bucket for listing images
	ResetRedirect string           // where password recovery links land
	RedirectAllow []string         // further redirect targets links may carry
}

// DefaultMarket is the campus configuration the marketplace was built for.
func DefaultMarket() Market {
	return Market{
		EmailDomain:   "@nitc.ac.in",
		Categories:    model.DefaultCategories(),
		ImageBucket:   "listing-images",
		ResetRedirect: "http://localhost:5173/reset-password",
	}
}

// LoadMarket applies MARKET_* overrides on top of DefaultMarket.
func LoadMarket() Market {
	m := DefaultMarket()
	m.EmailDomain = normalizeDomain(envStr("MARKET_EMAIL_DOMAIN", m.EmailDomain))
	if names := envList("MARKET_CATEGORIES", nil); len(names) > 0 {
		cats := make([]model.Category, 0, len(names))
		for _, n := range names {
			cats = append(cats, model.Category(n))
		}
		m.Categories = cats
	}
	m.ImageBucket = envStr("MARKET_IMAGE_BUCKET", m.ImageBucket)
	m.ResetRedirect = envStr("MARKET_RESET_REDIRECT", m.ResetRedirect)
	m.RedirectAllow = envList("MARKET_REDIRECT_ALLOW", nil)
	return m
}

// HasCategory reports whether c is one of the postable categories.
func (m Market) HasCategory(c model.Category) bool {
	for _, k := range m.Categories {
		if k == c {
			return true
		}
	}
	return false
}

// AllowsRedirect reports whether a link may send the browser to target.
// Only ResetRedirect and the RedirectAllow entries qualify, compared
// exactly.
func (m Market) AllowsRedirect(target string) bool {
	if target == "" {
		return false
	}
	if target == m.ResetRedirect {
		return true
	}
	for _, a := range m.RedirectAllow {
		if target == a {
			return true
		}
	}
	return false
}

// AllowsEmail reports whether the address ends with the institutional suffix.
// The comparison ignores case and surrounding whitespace.
func (m Market) AllowsEmail(email string) bool {
	e := strings.ToLower(strings.TrimSpace(email))
	return m.EmailDomain != "" && strings.HasSuffix(e, strings.ToLower(m.EmailDomain)) && len(e) > len(m.EmailDomain)
}

func normalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	if d != "" && !strings.HasPrefix(d, "@") {
		d = "@" + d
	}
	return d
}
