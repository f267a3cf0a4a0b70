package services

import (
	"context"
	"time"

	domain "github.com/atelier-gallery/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination          = domain.Pagination
	Artwork             = domain.Artwork
	ArtworkImage        = domain.ArtworkImage
	ArtworkCategory     = domain.ArtworkCategory
	Artist              = domain.Artist
	Order               = domain.Order
	OrderLineItem       = domain.OrderLineItem
	OrderTotals         = domain.OrderTotals
	OrderStatus         = domain.OrderStatus
	PaymentStatus       = domain.PaymentStatus
	PaymentMethod       = domain.PaymentMethod
	ShippingAddress     = domain.ShippingAddress
	PricingBreakdown    = domain.PricingBreakdown
	SystemHealthReport  = domain.SystemHealthReport
	OrderStatsOverview  = domain.OrderStatsOverview
	ArtistStatsOverview = domain.ArtistStatsOverview
	CategoryCount       = domain.CategoryCount
)

// Actor identifies the caller on whose behalf a service operation runs.
type Actor struct {
	ID    string
	Admin bool
}

// SystemActor is used for trusted server-side callers such as payment webhooks.
var SystemActor = Actor{ID: "system", Admin: true}

// OrderService owns the order lifecycle: creation, reads scoped by ownership, and admin status updates.
type OrderService interface {
	Quote(ctx context.Context, cmd QuoteOrderCommand) (PricingBreakdown, error)
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, query GetOrderQuery) (Order, error)
	UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	Stats(ctx context.Context, actor Actor) (OrderStatsOverview, error)
}

// CatalogService exposes artworks and artists to shoppers and administrators.
type CatalogService interface {
	ListArtworks(ctx context.Context, filter ArtworkListFilter) (domain.CursorPage[Artwork], error)
	GetArtwork(ctx context.Context, artworkID string) (ArtworkDetail, error)
	ListFeaturedArtworks(ctx context.Context, limit int) ([]Artwork, error)
	ListCategories(ctx context.Context) ([]CategoryCount, error)
	CreateArtwork(ctx context.Context, cmd UpsertArtworkCommand) (Artwork, error)
	UpdateArtwork(ctx context.Context, cmd UpsertArtworkCommand) (Artwork, error)
	DeleteArtwork(ctx context.Context, artworkID string) error
	CreateImageUploadURL(ctx context.Context, cmd ImageUploadCommand) (ImageUpload, error)

	ListArtists(ctx context.Context, filter ArtistListFilter) (domain.CursorPage[Artist], error)
	GetArtist(ctx context.Context, artistID string) (ArtistDetail, error)
	ListTopArtists(ctx context.Context, limit int) ([]Artist, error)
	CreateArtist(ctx context.Context, cmd UpsertArtistCommand) (Artist, error)
	UpdateArtist(ctx context.Context, cmd UpsertArtistCommand) (Artist, error)
	DeactivateArtist(ctx context.Context, artistID string) (Artist, error)
	ArtistStats(ctx context.Context) (ArtistStatsOverview, error)
}

// SystemService surfaces operational metadata such as health reports.
type SystemService interface {
	// HealthReport probes every registered dependency.
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	Liveness(ctx context.Context) SystemHealthReport
}

// CounterService issues sequence numbers backed by the counter repository.
type CounterService interface {
	Next(ctx context.Context, name string) (int64, error)
	NextOrderNumber(ctx context.Context) (string, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type                  string
	OrderID               string
	OrderNumber           string
	UserID                string
	PreviousStatus        string
	CurrentStatus         string
	PreviousPaymentStatus string
	CurrentPaymentStatus  string
	Total                 int64
	ActorID               string
	OccurredAt            time.Time
}

// ListCache stores small, hot catalog lists. Implementations must treat misses and backend
// failures the same way: return ok=false and let the caller recompute.
type ListCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Invalidate(ctx context.Context, prefix string) error
}

// UploadURLSigner issues signed object upload URLs.
type UploadURLSigner interface {
	SignedUploadURL(ctx context.Context, bucket, object, contentType string) (url string, expiresAt time.Time, err error)
}

// MarkdownRenderer turns artist-supplied Markdown into sanitised HTML.
type MarkdownRenderer interface {
	Render(source string) (string, error)
}

// Commands & queries --------------------------------------------------------

type QuoteOrderCommand struct {
	Items []OrderItemInput
}

type OrderItemInput struct {
	ArtworkID string
	Quantity  int
}

type ShippingAddressInput struct {
	Name    string
	Street  string
	City    string
	State   string
	ZipCode string
	Country string
}

type CreateOrderCommand struct {
	Actor           Actor
	Items           []OrderItemInput
	ShippingAddress ShippingAddressInput
	PaymentMethod   string
	Notes           string
}

type ListOrdersQuery struct {
	Actor         Actor
	Status        []OrderStatus
	PaymentStatus []PaymentStatus
	Pagination    Pagination
}

type GetOrderQuery struct {
	Actor   Actor
	OrderID string
}

type UpdateOrderStatusCommand struct {
	Actor         Actor
	OrderID       string
	Status        *OrderStatus
	PaymentStatus *PaymentStatus
}

type ArtworkListFilter struct {
	Category   string
	ArtistID   string
	Available  *bool
	Featured   *bool
	MinPrice   *int64
	MaxPrice   *int64
	Search     string
	Sort       string
	Pagination Pagination
}

type ArtistListFilter struct {
	Specialty  string
	Search     string
	Sort       string
	Pagination Pagination
}

// ArtworkDetail joins an artwork with a summary of its artist.
type ArtworkDetail struct {
	Artwork Artwork
	Artist  *Artist
}

// ArtistDetail joins an artist with their available artworks and rendered bio.
type ArtistDetail struct {
	Artist   Artist
	BioHTML  string
	Artworks []Artwork
}

type DimensionsInput struct {
	Width  float64
	Height float64
	Depth  float64
	Unit   string
}

type ArtworkImageInput struct {
	URL       string
	Alt       string
	IsPrimary bool
}

type UpsertArtworkCommand struct {
	ArtworkID   string
	Title       string
	Description string
	Price       int64
	Category    string
	Dimensions  DimensionsInput
	Medium      string
	Year        int
	ArtistID    string
	Images      []ArtworkImageInput
	Tags        []string
	IsAvailable *bool
	IsFeatured  *bool
}

type SocialLinksInput struct {
	Instagram string
	Twitter   string
	Facebook  string
}

type UpsertArtistCommand struct {
	ArtistID    string
	Name        string
	Bio         string
	Email       string
	Avatar      string
	Website     string
	Social      SocialLinksInput
	Specialties []string
}

type ImageUploadCommand struct {
	ArtworkID   string
	ContentType string
}

type ImageUpload struct {
	UploadURL string
	ObjectURL string
	ExpiresAt time.Time
}
