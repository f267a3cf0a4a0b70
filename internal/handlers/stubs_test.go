package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/atelier-gallery/api/internal/domain"
	"github.com/atelier-gallery/api/internal/platform/auth"
	"github.com/atelier-gallery/api/internal/services"
)

type stubOrderService struct {
	quoteFn   func(context.Context, services.QuoteOrderCommand) (services.PricingBreakdown, error)
	createFn  func(context.Context, services.CreateOrderCommand) (services.Order, error)
	listFn    func(context.Context, services.ListOrdersQuery) (domain.CursorPage[services.Order], error)
	getFn     func(context.Context, services.GetOrderQuery) (services.Order, error)
	updateFn  func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
	statsFn   func(context.Context, services.Actor) (services.OrderStatsOverview, error)
	createCnt int
}

func (s *stubOrderService) Quote(ctx context.Context, cmd services.QuoteOrderCommand) (services.PricingBreakdown, error) {
	if s.quoteFn != nil {
		return s.quoteFn(ctx, cmd)
	}
	return services.PricingBreakdown{}, nil
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	s.createCnt++
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.ListOrdersQuery) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, query services.GetOrderQuery) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, query)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) UpdateOrderStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) Stats(ctx context.Context, actor services.Actor) (services.OrderStatsOverview, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx, actor)
	}
	return services.OrderStatsOverview{}, nil
}

var _ services.OrderService = (*stubOrderService)(nil)

// stubCatalogService embeds the interface so tests only implement what they exercise.
type stubCatalogService struct {
	services.CatalogService

	listArtworksFn func(context.Context, services.ArtworkListFilter) (domain.CursorPage[services.Artwork], error)
	getArtworkFn   func(context.Context, string) (services.ArtworkDetail, error)
	featuredFn     func(context.Context, int) ([]services.Artwork, error)
	categoriesFn   func(context.Context) ([]services.CategoryCount, error)
	createFn       func(context.Context, services.UpsertArtworkCommand) (services.Artwork, error)
	updateFn       func(context.Context, services.UpsertArtworkCommand) (services.Artwork, error)
	deleteFn       func(context.Context, string) error
	uploadFn       func(context.Context, services.ImageUploadCommand) (services.ImageUpload, error)

	listArtistsFn func(context.Context, services.ArtistListFilter) (domain.CursorPage[services.Artist], error)
	getArtistFn   func(context.Context, string) (services.ArtistDetail, error)
	topArtistsFn  func(context.Context, int) ([]services.Artist, error)
	createArtist  func(context.Context, services.UpsertArtistCommand) (services.Artist, error)
	deactivateFn  func(context.Context, string) (services.Artist, error)
	artistStatsFn func(context.Context) (services.ArtistStatsOverview, error)
}

func (s *stubCatalogService) ListArtworks(ctx context.Context, filter services.ArtworkListFilter) (domain.CursorPage[services.Artwork], error) {
	return s.listArtworksFn(ctx, filter)
}

func (s *stubCatalogService) GetArtwork(ctx context.Context, id string) (services.ArtworkDetail, error) {
	return s.getArtworkFn(ctx, id)
}

func (s *stubCatalogService) ListFeaturedArtworks(ctx context.Context, limit int) ([]services.Artwork, error) {
	return s.featuredFn(ctx, limit)
}

func (s *stubCatalogService) ListCategories(ctx context.Context) ([]services.CategoryCount, error) {
	return s.categoriesFn(ctx)
}

func (s *stubCatalogService) CreateArtwork(ctx context.Context, cmd services.UpsertArtworkCommand) (services.Artwork, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubCatalogService) UpdateArtwork(ctx context.Context, cmd services.UpsertArtworkCommand) (services.Artwork, error) {
	return s.updateFn(ctx, cmd)
}

func (s *stubCatalogService) DeleteArtwork(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func (s *stubCatalogService) CreateImageUploadURL(ctx context.Context, cmd services.ImageUploadCommand) (services.ImageUpload, error) {
	return s.uploadFn(ctx, cmd)
}

func (s *stubCatalogService) ListArtists(ctx context.Context, filter services.ArtistListFilter) (domain.CursorPage[services.Artist], error) {
	return s.listArtistsFn(ctx, filter)
}

func (s *stubCatalogService) GetArtist(ctx context.Context, id string) (services.ArtistDetail, error) {
	return s.getArtistFn(ctx, id)
}

func (s *stubCatalogService) ListTopArtists(ctx context.Context, limit int) ([]services.Artist, error) {
	return s.topArtistsFn(ctx, limit)
}

func (s *stubCatalogService) CreateArtist(ctx context.Context, cmd services.UpsertArtistCommand) (services.Artist, error) {
	return s.createArtist(ctx, cmd)
}

func (s *stubCatalogService) DeactivateArtist(ctx context.Context, id string) (services.Artist, error) {
	return s.deactivateFn(ctx, id)
}

func (s *stubCatalogService) ArtistStats(ctx context.Context) (services.ArtistStatsOverview, error) {
	return s.artistStatsFn(ctx)
}

func testAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(auth.MockVerifier{})
}

// mountRoutes serves a handler group under prefix, the way NewRouter mounts it.
func mountRoutes(prefix string, routes RouteRegistrar) http.Handler {
	r := chi.NewRouter()
	r.Route(prefix, routes)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return body
}
