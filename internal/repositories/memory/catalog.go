package memory

import (
	"context"
	"sort"

	domain "github.com/atelier-gallery/api/internal/domain"
	"github.com/atelier-gallery/api/internal/platform/textutil"
	"github.com/atelier-gallery/api/internal/repositories"
)

type artworkRepository struct{ s *Store }

func (r artworkRepository) Insert(_ context.Context, artwork domain.Artwork) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.artworks[artwork.ID]; exists {
		return repositories.Conflict("artworks.insert", "artwork %s already exists", artwork.ID)
	}
	r.s.artworks[artwork.ID] = cloneArtwork(artwork)
	return nil
}

func (r artworkRepository) Update(_ context.Context, artwork domain.Artwork) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.artworks[artwork.ID]; !exists {
		return repositories.NotFound("artworks.update", "artwork %s not found", artwork.ID)
	}
	r.s.artworks[artwork.ID] = cloneArtwork(artwork)
	return nil
}

func (r artworkRepository) Delete(_ context.Context, artworkID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.artworks[artworkID]; !exists {
		return repositories.NotFound("artworks.delete", "artwork %s not found", artworkID)
	}
	delete(r.s.artworks, artworkID)
	return nil
}

func (r artworkRepository) FindByID(_ context.Context, artworkID string) (domain.Artwork, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	artwork, ok := r.s.artworks[artworkID]
	if !ok {
		return domain.Artwork{}, repositories.NotFound("artworks.get", "artwork %s not found", artworkID)
	}
	return cloneArtwork(artwork), nil
}

func (r artworkRepository) FindByIDs(_ context.Context, artworkIDs []string) (map[string]domain.Artwork, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[string]domain.Artwork, len(artworkIDs))
	for _, id := range artworkIDs {
		if artwork, ok := r.s.artworks[id]; ok {
			out[id] = cloneArtwork(artwork)
		}
	}
	return out, nil
}

func (r artworkRepository) List(_ context.Context, filter repositories.ArtworkListFilter) (domain.CursorPage[domain.Artwork], error) {
	r.s.mu.RLock()
	matched := make([]domain.Artwork, 0, len(r.s.artworks))
	for _, artwork := range r.s.artworks {
		if filter.Matches(artwork) {
			matched = append(matched, cloneArtwork(artwork))
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch filter.Sort {
		case repositories.ArtworkSortPriceAsc:
			if a.Price != b.Price {
				return a.Price < b.Price
			}
		case repositories.ArtworkSortPriceDesc:
			if a.Price != b.Price {
				return a.Price > b.Price
			}
		case repositories.ArtworkSortPopular:
			if a.Views != b.Views {
				return a.Views > b.Views
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	})
	return paginate("artworks.list", matched, filter.Pagination)
}

func (r artworkRepository) CountByCategory(context.Context) ([]domain.CategoryCount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := make(map[domain.ArtworkCategory]int64)
	for _, artwork := range r.s.artworks {
		if artwork.IsAvailable {
			counts[artwork.Category]++
		}
	}
	out := make([]domain.CategoryCount, 0, len(counts))
	for _, category := range domain.ArtworkCategories {
		if n, ok := counts[category]; ok {
			out = append(out, domain.CategoryCount{Category: category, Count: n})
		}
	}
	return out, nil
}

func (r artworkRepository) IncrementViews(_ context.Context, artworkID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	artwork, ok := r.s.artworks[artworkID]
	if !ok {
		return repositories.NotFound("artworks.views", "artwork %s not found", artworkID)
	}
	artwork.Views++
	r.s.artworks[artworkID] = artwork
	return nil
}

type artistRepository struct{ s *Store }

func (r artistRepository) Insert(_ context.Context, artist domain.Artist) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.artists[artist.ID]; exists {
		return repositories.Conflict("artists.insert", "artist %s already exists", artist.ID)
	}
	r.s.artists[artist.ID] = cloneArtist(artist)
	return nil
}

// Update replaces the profile but keeps the stored sales counters, which only IncrementStats may change.
func (r artistRepository) Update(_ context.Context, artist domain.Artist) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, exists := r.s.artists[artist.ID]
	if !exists {
		return repositories.NotFound("artists.update", "artist %s not found", artist.ID)
	}
	artist.TotalSales = current.TotalSales
	artist.TotalRevenue = current.TotalRevenue
	r.s.artists[artist.ID] = cloneArtist(artist)
	return nil
}

func (r artistRepository) FindByID(_ context.Context, artistID string) (domain.Artist, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	artist, ok := r.s.artists[artistID]
	if !ok {
		return domain.Artist{}, repositories.NotFound("artists.get", "artist %s not found", artistID)
	}
	return cloneArtist(artist), nil
}

func (r artistRepository) FindByIDs(_ context.Context, artistIDs []string) (map[string]domain.Artist, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[string]domain.Artist, len(artistIDs))
	for _, id := range artistIDs {
		if artist, ok := r.s.artists[id]; ok {
			out[id] = cloneArtist(artist)
		}
	}
	return out, nil
}

func (r artistRepository) List(_ context.Context, filter repositories.ArtistListFilter) (domain.CursorPage[domain.Artist], error) {
	r.s.mu.RLock()
	matched := make([]domain.Artist, 0, len(r.s.artists))
	for _, artist := range r.s.artists {
		if filter.Matches(artist) {
			matched = append(matched, cloneArtist(artist))
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch filter.Sort {
		case repositories.ArtistSortSales:
			if a.TotalSales != b.TotalSales {
				return a.TotalSales > b.TotalSales
			}
		case repositories.ArtistSortRevenue:
			if a.TotalRevenue != b.TotalRevenue {
				return a.TotalRevenue > b.TotalRevenue
			}
		default:
			if fa, fb := textutil.Fold(a.Name), textutil.Fold(b.Name); fa != fb {
				return fa < fb
			}
		}
		return a.ID < b.ID
	})
	return paginate("artists.list", matched, filter.Pagination)
}

func (r artistRepository) IncrementStats(_ context.Context, artistID string, delta domain.ArtistStatsDelta) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	artist, ok := r.s.artists[artistID]
	if !ok {
		return repositories.NotFound("artists.increment", "artist %s not found", artistID)
	}
	artist.TotalSales += delta.Sales
	artist.TotalRevenue += delta.Revenue
	artist.UpdatedAt = r.s.now()
	r.s.artists[artistID] = artist
	return nil
}

func (r artistRepository) Count(context.Context) (int64, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var active int64
	for _, artist := range r.s.artists {
		if artist.IsActive {
			active++
		}
	}
	return int64(len(r.s.artists)), active, nil
}
