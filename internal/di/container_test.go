package di

import (
	"context"
	"errors"
	"testing"

	domain "github.com/atelier-gallery/api/internal/domain"
	"github.com/atelier-gallery/api/internal/platform/config"
	"github.com/atelier-gallery/api/internal/repositories"
	"github.com/atelier-gallery/api/internal/repositories/memory"
	"github.com/atelier-gallery/api/internal/services"
)

const testSeed = `
artists:
  - id: atr_ines
    name: Ines Vidal
    email: ines@example.com
    bio: Prints and **linocuts**.
artworks:
  - id: art_tide
    title: Tide Line
    price: 40000
    category: mixed-media
    medium: Linocut
    year: 2023
    artist: atr_ines
`

func newTestContainer(t *testing.T, infra Infrastructure) *Container {
	t.Helper()
	ctx := context.Background()
	seed, err := memory.ParseSeed([]byte(testSeed))
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	store := memory.New()
	if err := store.Load(ctx, seed); err != nil {
		t.Fatalf("load seed: %v", err)
	}
	container, err := NewContainer(ctx, config.Config{}, store, infra)
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	t.Cleanup(func() { _ = container.Close(context.Background()) })
	return container
}

func TestNewContainerRequiresRegistry(t *testing.T) {
	if _, err := NewContainer(context.Background(), config.Config{}, nil, Infrastructure{}); err == nil {
		t.Fatal("expected error without registry")
	}
}

func TestNewContainerWithoutHealthChecksSkipsSystemService(t *testing.T) {
	c := newTestContainer(t, Infrastructure{})
	if c.Services.Catalog == nil || c.Services.Orders == nil || c.Services.Counters == nil {
		t.Fatalf("expected core services, got %+v", c.Services)
	}
	if c.Services.System != nil {
		t.Fatal("system service needs at least one health check")
	}
}

func TestNewContainerBuildsSystemService(t *testing.T) {
	c := newTestContainer(t, Infrastructure{
		HealthChecks: []repositories.DependencyCheck{
			{Name: "store", Critical: true, Check: func(context.Context) error { return nil }},
			{Name: "redis", Check: func(context.Context) error { return errors.New("refused") }},
		},
		Build: services.BuildInfo{Version: "test"},
	})
	report, err := c.Services.System.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
}

func TestContainerOrderFlowCreditsArtist(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t, Infrastructure{})
	shopper := services.Actor{ID: "user-1"}

	order, err := c.Services.Orders.CreateOrder(ctx, services.CreateOrderCommand{
		Actor: shopper,
		Items: []services.OrderItemInput{{ArtworkID: "art_tide", Quantity: 1}},
		ShippingAddress: services.ShippingAddressInput{
			Name:    "Sam Reed",
			Street:  "1 Quay Street",
			City:    "Bristol",
			State:   "Avon",
			ZipCode: "BS1 4DJ",
			Country: "GB",
		},
		PaymentMethod: string(domain.PaymentMethodCreditCard),
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.OrderNumber == "" || order.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected order %+v", order)
	}

	delivered := domain.OrderStatusDelivered
	paid := domain.PaymentStatusPaid
	if _, err := c.Services.Orders.UpdateOrderStatus(ctx, services.UpdateOrderStatusCommand{
		Actor:         services.SystemActor,
		OrderID:       order.ID,
		Status:        &delivered,
		PaymentStatus: &paid,
	}); err != nil {
		t.Fatalf("update status: %v", err)
	}

	detail, err := c.Services.Catalog.GetArtist(ctx, "atr_ines")
	if err != nil {
		t.Fatalf("get artist: %v", err)
	}
	if detail.Artist.TotalSales != 1 || detail.Artist.TotalRevenue != 40000 {
		t.Fatalf("expected one credited sale, got %d/%d", detail.Artist.TotalSales, detail.Artist.TotalRevenue)
	}
}
