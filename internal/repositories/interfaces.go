package repositories

import (
	"context"
	"time"

	domain "github.com/atelier-gallery/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
// The Firestore and in-memory backends both satisfy it; the choice is made once at startup.
type Registry interface {
	Close(ctx context.Context) error

	Artworks() ArtworkRepository
	Artists() ArtistRepository
	Orders() OrderRepository
	Counters() CounterRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ArtworkRepository persists catalog artworks.
type ArtworkRepository interface {
	Insert(ctx context.Context, artwork domain.Artwork) error
	Update(ctx context.Context, artwork domain.Artwork) error
	Delete(ctx context.Context, artworkID string) error
	FindByID(ctx context.Context, artworkID string) (domain.Artwork, error)
	// FindByIDs returns the artworks that exist keyed by id; absent ids are simply missing from the map.
	FindByIDs(ctx context.Context, artworkIDs []string) (map[string]domain.Artwork, error)
	List(ctx context.Context, filter ArtworkListFilter) (domain.CursorPage[domain.Artwork], error)
	CountByCategory(ctx context.Context) ([]domain.CategoryCount, error)
	IncrementViews(ctx context.Context, artworkID string) error
}

// ArtistRepository persists artists and applies attribution deltas.
type ArtistRepository interface {
	Insert(ctx context.Context, artist domain.Artist) error
	Update(ctx context.Context, artist domain.Artist) error
	FindByID(ctx context.Context, artistID string) (domain.Artist, error)
	FindByIDs(ctx context.Context, artistIDs []string) (map[string]domain.Artist, error)
	List(ctx context.Context, filter ArtistListFilter) (domain.CursorPage[domain.Artist], error)
	// IncrementStats adds the delta to the stored counters without reading them first.
	IncrementStats(ctx context.Context, artistID string, delta domain.ArtistStatsDelta) error
	Count(ctx context.Context) (total int64, active int64, err error)
}

// OrderRepository persists orders. Insert must reject a duplicate order number with a conflict error.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// Mutate loads the order, applies fn and stores the result atomically. fn receives the
	// committed state and returns the replacement; returning an error aborts the write.
	Mutate(ctx context.Context, orderID string, fn func(current domain.Order) (domain.Order, error)) (domain.Order, error)
	Stats(ctx context.Context, since time.Time) (OrderStats, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// ArtworkSort selects the ordering for artwork listings.
type ArtworkSort string

const (
	ArtworkSortNewest    ArtworkSort = "newest"
	ArtworkSortPriceAsc  ArtworkSort = "price_asc"
	ArtworkSortPriceDesc ArtworkSort = "price_desc"
	ArtworkSortPopular   ArtworkSort = "popular"
)

// Filter DTOs shared across repositories ------------------------------------

type ArtworkListFilter struct {
	Category   *domain.ArtworkCategory
	ArtistID   string
	Available  *bool
	Featured   *bool
	MinPrice   *int64
	MaxPrice   *int64
	Search     string
	Sort       ArtworkSort
	Pagination domain.Pagination
}

type ArtistSort string

const (
	ArtistSortName    ArtistSort = "name"
	ArtistSortSales   ArtistSort = "sales"
	ArtistSortRevenue ArtistSort = "revenue"
)

type ArtistListFilter struct {
	ActiveOnly bool
	Specialty  *domain.ArtworkCategory
	Search     string
	Sort       ArtistSort
	Pagination domain.Pagination
}

type OrderListFilter struct {
	UserID        string
	Status        []domain.OrderStatus
	PaymentStatus []domain.PaymentStatus
	Pagination    domain.Pagination
}

// OrderStats is the raw aggregation behind the admin order overview.
// TotalValue sums the totals of every order; PaidRevenue only those delivered and paid.
type OrderStats struct {
	Total        int64
	ByStatus     map[domain.OrderStatus]int64
	TotalValue   int64
	PaidRevenue  int64
	PaidOrders   int64
	CreatedSince int64
}
