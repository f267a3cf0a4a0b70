// Package memory provides an in-process implementation of the repository registry. It backs
// local development and tests; every write is serialised behind one lock so the same
// atomicity guarantees as the Firestore adapters hold.
package memory

import (
	"context"
	"sync"
	"time"

	domain "github.com/atelier-gallery/api/internal/domain"
	"github.com/atelier-gallery/api/internal/platform/pagination"
	"github.com/atelier-gallery/api/internal/repositories"
)

// Store holds every collection in maps guarded by a single mutex.
type Store struct {
	mu sync.RWMutex

	artworks     map[string]domain.Artwork
	artists      map[string]domain.Artist
	orders       map[string]domain.Order
	orderNumbers map[string]string
	counters     map[string]int64

	clock func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp counter and stats updates.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

var _ repositories.Registry = (*Store)(nil)

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		artworks:     make(map[string]domain.Artwork),
		artists:      make(map[string]domain.Artist),
		orders:       make(map[string]domain.Order),
		orderNumbers: make(map[string]string),
		counters:     make(map[string]int64),
		clock:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Artworks() repositories.ArtworkRepository { return artworkRepository{s} }
func (s *Store) Artists() repositories.ArtistRepository   { return artistRepository{s} }
func (s *Store) Orders() repositories.OrderRepository     { return orderRepository{s} }
func (s *Store) Counters() repositories.CounterRepository { return counterRepository{s} }

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

// paginate slices an already filtered and ordered result set using offset tokens.
func paginate[T any](op string, items []T, page domain.Pagination) (domain.CursorPage[T], error) {
	offset, err := pagination.DecodeOffset(page.PageToken)
	if err != nil {
		return domain.CursorPage[T]{}, repositories.InvalidInput(op, "%v", err)
	}
	size := page.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}
	if offset >= len(items) {
		return domain.CursorPage[T]{Items: []T{}}, nil
	}
	end := offset + size
	next := ""
	if end < len(items) {
		next = pagination.EncodeOffset(end)
	} else {
		end = len(items)
	}
	out := make([]T, end-offset)
	copy(out, items[offset:end])
	return domain.CursorPage[T]{Items: out, NextPageToken: next}, nil
}

func cloneArtwork(a domain.Artwork) domain.Artwork {
	a.Images = append([]domain.ArtworkImage(nil), a.Images...)
	a.Tags = append([]string(nil), a.Tags...)
	return a
}

func cloneArtist(a domain.Artist) domain.Artist {
	a.Specialties = append([]domain.ArtworkCategory(nil), a.Specialties...)
	return a
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderLineItem(nil), o.Items...)
	if o.SalesAttributedAt != nil {
		at := *o.SalesAttributedAt
		o.SalesAttributedAt = &at
	}
	return o
}
