// Package firestore implements the repository registry on Cloud Firestore.
package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/atelier-gallery/api/internal/platform/firestore"
	"github.com/atelier-gallery/api/internal/repositories"
)

// Registry bundles the Firestore repositories over one shared provider.
type Registry struct {
	provider *pfirestore.Provider
	artworks *ArtworkRepository
	artists  *ArtistRepository
	orders   *OrderRepository
	counters *CounterRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every repository. No network call is made until first use.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires a provider")
	}
	artworks, err := NewArtworkRepository(provider)
	if err != nil {
		return nil, err
	}
	artists, err := NewArtistRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider: provider,
		artworks: artworks,
		artists:  artists,
		orders:   orders,
		counters: counters,
	}, nil
}

func (r *Registry) Artworks() repositories.ArtworkRepository { return r.artworks }
func (r *Registry) Artists() repositories.ArtistRepository   { return r.artists }
func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

// Close releases the shared client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
