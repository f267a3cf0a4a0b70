package repositories

import (
	"slices"
	"strings"

	domain "github.com/atelier-gallery/api/internal/domain"
	"github.com/atelier-gallery/api/internal/platform/textutil"
)

// Matches reports whether a satisfies every predicate of the filter. Backends that push some
// predicates into their query engine still call it for the rest.
func (f ArtworkListFilter) Matches(a domain.Artwork) bool {
	if f.Category != nil && a.Category != *f.Category {
		return false
	}
	if f.ArtistID != "" && a.ArtistID != f.ArtistID {
		return false
	}
	if f.Available != nil && a.IsAvailable != *f.Available {
		return false
	}
	if f.Featured != nil && a.IsFeatured != *f.Featured {
		return false
	}
	if f.MinPrice != nil && a.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && a.Price > *f.MaxPrice {
		return false
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		if textutil.ContainsFold(a.Title, q) || textutil.ContainsFold(a.Description, q) {
			return true
		}
		return slices.ContainsFunc(a.Tags, func(tag string) bool { return textutil.ContainsFold(tag, q) })
	}
	return true
}

// Matches reports whether a satisfies the filter. Search looks at the name and specialties.
func (f ArtistListFilter) Matches(a domain.Artist) bool {
	if f.ActiveOnly && !a.IsActive {
		return false
	}
	if f.Specialty != nil && !slices.Contains(a.Specialties, *f.Specialty) {
		return false
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		if textutil.ContainsFold(a.Name, q) {
			return true
		}
		return slices.ContainsFunc(a.Specialties, func(c domain.ArtworkCategory) bool {
			return textutil.ContainsFold(string(c), q)
		})
	}
	return true
}

// Matches reports whether o satisfies the filter.
func (f OrderListFilter) Matches(o domain.Order) bool {
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	if len(f.Status) > 0 && !slices.Contains(f.Status, o.Status) {
		return false
	}
	if len(f.PaymentStatus) > 0 && !slices.Contains(f.PaymentStatus, o.PaymentStatus) {
		return false
	}
	return true
}
