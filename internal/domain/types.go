package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Role identifies the privilege level attached to an authenticated caller.
type Role string

const (
	// RoleUser is granted to every authenticated shopper.
	RoleUser Role = "user"
	// RoleAdmin manages the catalog and fulfillment pipeline.
	RoleAdmin Role = "admin"
)

// ArtworkCategory enumerates the catalog taxonomy.
type ArtworkCategory string

const (
	CategoryPainting    ArtworkCategory = "painting"
	CategorySculpture   ArtworkCategory = "sculpture"
	CategoryDigital     ArtworkCategory = "digital"
	CategoryPhotography ArtworkCategory = "photography"
	CategoryMixedMedia  ArtworkCategory = "mixed-media"
)

// ArtworkCategories lists every supported category in display order.
var ArtworkCategories = []ArtworkCategory{
	CategoryPainting,
	CategorySculpture,
	CategoryDigital,
	CategoryPhotography,
	CategoryMixedMedia,
}

// Valid reports whether the category belongs to the supported taxonomy.
func (c ArtworkCategory) Valid() bool {
	for _, candidate := range ArtworkCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// Dimensions captures the physical size of an artwork.
type Dimensions struct {
	Width  float64
	Height float64
	Depth  float64
	Unit   string
}

// ArtworkImage references a stored image for an artwork.
type ArtworkImage struct {
	URL       string
	Alt       string
	IsPrimary bool
}

// Artwork is a purchasable catalog entry. Price is stored in minor units.
type Artwork struct {
	ID          string
	Title       string
	Description string
	Price       int64
	Currency    string
	Category    ArtworkCategory
	Dimensions  Dimensions
	Medium      string
	Year        int
	ArtistID    string
	Images      []ArtworkImage
	Tags        []string
	IsAvailable bool
	IsFeatured  bool
	Views       int64
	Likes       int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PrimaryImage returns the image flagged as primary, falling back to the first image.
func (a Artwork) PrimaryImage() (ArtworkImage, bool) {
	for _, img := range a.Images {
		if img.IsPrimary {
			return img, true
		}
	}
	if len(a.Images) > 0 {
		return a.Images[0], true
	}
	return ArtworkImage{}, false
}

// SocialLinks groups optional external profiles for an artist.
type SocialLinks struct {
	Instagram string
	Twitter   string
	Facebook  string
}

// Artist owns artworks and accumulates sales statistics. Artists are only ever deactivated.
type Artist struct {
	ID           string
	Name         string
	Bio          string
	Email        string
	Avatar       string
	Website      string
	Social       SocialLinks
	Specialties  []ArtworkCategory
	IsActive     bool
	TotalSales   int64
	TotalRevenue int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ArtistStatsDelta is applied atomically to an artist's cumulative counters.
type ArtistStatsDelta struct {
	Sales   int64
	Revenue int64
}

// OrderStatus tracks fulfillment progress.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// OrderStatuses lists every fulfillment status.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// PaymentStatus tracks settlement independently of fulfillment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentStatuses lists every payment status.
var PaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

// PaymentMethod is the shopper's declared way of paying.
type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "credit-card"
	PaymentMethodPayPal       PaymentMethod = "paypal"
	PaymentMethodBankTransfer PaymentMethod = "bank-transfer"
	PaymentMethodCash         PaymentMethod = "cash"
)

// PaymentMethods lists accepted payment methods.
var PaymentMethods = []PaymentMethod{
	PaymentMethodCreditCard,
	PaymentMethodPayPal,
	PaymentMethodBankTransfer,
	PaymentMethodCash,
}

// ShippingAddress is required in full on every order.
type ShippingAddress struct {
	Name    string
	Street  string
	City    string
	State   string
	ZipCode string
	Country string
}

// OrderLineItem binds an artwork reference, a quantity and the price snapshot taken at checkout.
// Title, image and artist name are display snapshots and never drive pricing.
type OrderLineItem struct {
	ArtworkID  string
	ArtistID   string
	Title      string
	ImageURL   string
	ArtistName string
	Quantity   int
	UnitPrice  int64
	LineTotal  int64
}

// OrderTotals holds the server-computed amounts in minor units. Fixed at creation.
type OrderTotals struct {
	Subtotal int64
	Tax      int64
	Shipping int64
	Total    int64
}

// Order is immutable after creation except for Status, PaymentStatus and timestamps.
type Order struct {
	ID                string
	OrderNumber       string
	UserID            string
	Items             []OrderLineItem
	Currency          string
	Totals            OrderTotals
	ShippingAddress   ShippingAddress
	PaymentMethod     PaymentMethod
	Notes             string
	Status            OrderStatus
	PaymentStatus     PaymentStatus
	SalesAttributedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OrderStatsOverview summarises order volume for administrators.
type OrderStatsOverview struct {
	TotalOrders       int64
	ByStatus          map[OrderStatus]int64
	TotalRevenue      int64
	AverageOrderValue int64
	RecentOrders      int64
	GeneratedAt       time.Time
}

// ArtistStatsOverview summarises the artist directory for administrators.
type ArtistStatsOverview struct {
	TotalArtists  int64
	ActiveArtists int64
	TopByRevenue  []Artist
}

// CategoryCount reports how many available artworks sit in a category.
type CategoryCount struct {
	Category ArtworkCategory
	Count    int64
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
