package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	domain "github.com/atelier-gallery/api/internal/domain"
	"github.com/atelier-gallery/api/internal/services"
)

func sampleArtwork(id string) services.Artwork {
	return services.Artwork{
		ID:          id,
		Title:       "Harbour at Dusk",
		Description: "Oil on linen.",
		Price:       50000,
		Currency:    "USD",
		Category:    domain.CategoryPainting,
		Dimensions:  domain.Dimensions{Width: 60, Height: 40, Unit: "cm"},
		Medium:      "oil",
		Year:        2021,
		ArtistID:    "ar_1",
		Images:      []services.ArtworkImage{{URL: "https://cdn.example.com/a.jpg", IsPrimary: true}},
		Tags:        []string{"sea"},
		IsAvailable: true,
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newArtworkRouter(catalog services.CatalogService) http.Handler {
	h := NewArtworkHandlers(testAuthenticator(), catalog, nil)
	return mountRoutes("/artworks", h.Routes)
}

func TestArtworkHandlersListParsesFilters(t *testing.T) {
	var captured services.ArtworkListFilter
	catalog := &stubCatalogService{
		listArtworksFn: func(_ context.Context, filter services.ArtworkListFilter) (domain.CursorPage[services.Artwork], error) {
			captured = filter
			return domain.CursorPage[services.Artwork]{Items: []services.Artwork{sampleArtwork("aw_1")}, NextPageToken: "tok"}, nil
		},
	}
	rr := doRequest(t, newArtworkRouter(catalog), http.MethodGet,
		"/artworks?category=painting&artist=ar_1&available=true&minPrice=1000&maxPrice=90000&search=harbour&sort=price-asc&page_size=10", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Category != "painting" || captured.ArtistID != "ar_1" || captured.Search != "harbour" || captured.Sort != "price-asc" {
		t.Fatalf("unexpected filter %+v", captured)
	}
	if captured.Available == nil || !*captured.Available || captured.Featured != nil {
		t.Fatalf("unexpected boolean filters %+v", captured)
	}
	if captured.MinPrice == nil || *captured.MinPrice != 1000 || captured.MaxPrice == nil || *captured.MaxPrice != 90000 {
		t.Fatalf("unexpected price bounds %+v", captured)
	}
	if captured.Pagination.PageSize != 10 {
		t.Fatalf("expected page size 10, got %d", captured.Pagination.PageSize)
	}
	body := decodeBody(t, rr)
	if body["next_page_token"] != "tok" {
		t.Fatalf("unexpected token %v", body["next_page_token"])
	}
	items, _ := body["items"].([]any)
	first, _ := items[0].(map[string]any)
	if first["id"] != "aw_1" || first["price"] != float64(50000) || first["artist"] != "ar_1" {
		t.Fatalf("unexpected artwork payload %v", first)
	}
}

func TestArtworkHandlersListRejectsBadQuery(t *testing.T) {
	catalog := &stubCatalogService{}
	cases := map[string]string{
		"available": "/artworks?available=maybe",
		"minPrice":  "/artworks?minPrice=12.50",
	}
	for param, target := range cases {
		t.Run(param, func(t *testing.T) {
			rr := doRequest(t, newArtworkRouter(catalog), http.MethodGet, target, "", nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			fields, _ := decodeBody(t, rr)["fields"].([]any)
			if len(fields) != 1 || fields[0].(map[string]any)["field"] != param {
				t.Fatalf("expected violation on %s, got %v", param, fields)
			}
		})
	}
}

func TestArtworkHandlersGetIncludesArtistSummary(t *testing.T) {
	catalog := &stubCatalogService{
		getArtworkFn: func(_ context.Context, id string) (services.ArtworkDetail, error) {
			return services.ArtworkDetail{
				Artwork: sampleArtwork(id),
				Artist:  &services.Artist{ID: "ar_1", Name: "Mara Ilves", Email: "mara@example.com", IsActive: true},
			}, nil
		},
	}
	rr := doRequest(t, newArtworkRouter(catalog), http.MethodGet, "/artworks/aw_7", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	artwork, _ := decodeBody(t, rr)["artwork"].(map[string]any)
	summary, _ := artwork["artistSummary"].(map[string]any)
	if artwork["id"] != "aw_7" || summary["name"] != "Mara Ilves" {
		t.Fatalf("unexpected payload %v", artwork)
	}
	if _, leaked := summary["email"]; leaked {
		t.Fatalf("artist email must not be exposed on public reads")
	}
}

func TestArtworkHandlersGetNotFound(t *testing.T) {
	catalog := &stubCatalogService{
		getArtworkFn: func(context.Context, string) (services.ArtworkDetail, error) {
			return services.ArtworkDetail{}, services.ErrCatalogNotFound
		},
	}
	rr := doRequest(t, newArtworkRouter(catalog), http.MethodGet, "/artworks/missing", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestArtworkHandlersFeaturedAndCategories(t *testing.T) {
	var limit int
	catalog := &stubCatalogService{
		featuredFn: func(_ context.Context, l int) ([]services.Artwork, error) {
			limit = l
			return []services.Artwork{sampleArtwork("aw_1")}, nil
		},
		categoriesFn: func(context.Context) ([]services.CategoryCount, error) {
			return []services.CategoryCount{{Category: domain.CategoryPainting, Count: 3}, {Category: domain.CategorySculpture, Count: 0}}, nil
		},
	}
	router := newArtworkRouter(catalog)

	rr := doRequest(t, router, http.MethodGet, "/artworks/featured?limit=4", "", nil)
	if rr.Code != http.StatusOK || limit != 4 {
		t.Fatalf("featured: status %d limit %d", rr.Code, limit)
	}

	rr = doRequest(t, router, http.MethodGet, "/artworks/categories", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("categories: expected 200, got %d", rr.Code)
	}
	items, _ := decodeBody(t, rr)["items"].([]any)
	if len(items) != 2 || items[0].(map[string]any)["count"] != float64(3) {
		t.Fatalf("unexpected categories %v", items)
	}
}

func TestArtworkHandlersWritesRequireAdmin(t *testing.T) {
	catalog := &stubCatalogService{}
	router := newArtworkRouter(catalog)

	rr := doRequest(t, router, http.MethodPost, "/artworks", "", map[string]any{"title": "x"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	rr = doRequest(t, router, http.MethodDelete, "/artworks/aw_1", "shopper", nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rr.Code)
	}
}

func TestArtworkHandlersCreate(t *testing.T) {
	var captured services.UpsertArtworkCommand
	catalog := &stubCatalogService{
		createFn: func(_ context.Context, cmd services.UpsertArtworkCommand) (services.Artwork, error) {
			captured = cmd
			return sampleArtwork("aw_new"), nil
		},
	}
	rr := doRequest(t, newArtworkRouter(catalog), http.MethodPost, "/artworks", "admin-curator", map[string]any{
		"title":       "Harbour at Dusk",
		"description": "Oil on linen.",
		"price":       50000,
		"category":    "painting",
		"dimensions":  map[string]any{"width": 60, "height": 40, "unit": "cm"},
		"artist":      "ar_1",
		"images":      []map[string]any{{"url": "https://cdn.example.com/a.jpg", "isPrimary": true}},
		"isFeatured":  true,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Location") != "/api/v1/artworks/aw_new" {
		t.Fatalf("unexpected location %q", rr.Header().Get("Location"))
	}
	if captured.ArtworkID != "" || captured.ArtistID != "ar_1" || captured.Price != 50000 {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.IsFeatured == nil || !*captured.IsFeatured || captured.IsAvailable != nil {
		t.Fatalf("unexpected flags %+v", captured)
	}
	if len(captured.Images) != 1 || !captured.Images[0].IsPrimary {
		t.Fatalf("unexpected images %+v", captured.Images)
	}
}

func TestArtworkHandlersUpdateValidation(t *testing.T) {
	catalog := &stubCatalogService{
		updateFn: func(_ context.Context, cmd services.UpsertArtworkCommand) (services.Artwork, error) {
			if cmd.ArtworkID != "aw_1" {
				t.Fatalf("unexpected id %q", cmd.ArtworkID)
			}
			return services.Artwork{}, &services.ValidationError{
				Kind:       services.ErrCatalogInvalidInput,
				Violations: []services.FieldViolation{{Field: "price", Message: "must be positive"}},
			}
		},
	}
	rr := doRequest(t, newArtworkRouter(catalog), http.MethodPut, "/artworks/aw_1", "admin-curator", map[string]any{"price": -1})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	fields, _ := decodeBody(t, rr)["fields"].([]any)
	if len(fields) != 1 || fields[0].(map[string]any)["field"] != "price" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestArtworkHandlersDeleteAndUpload(t *testing.T) {
	deleted := ""
	expires := time.Date(2024, 5, 1, 12, 15, 0, 0, time.UTC)
	catalog := &stubCatalogService{
		deleteFn: func(_ context.Context, id string) error {
			deleted = id
			return nil
		},
		uploadFn: func(_ context.Context, cmd services.ImageUploadCommand) (services.ImageUpload, error) {
			if cmd.ArtworkID != "aw_1" || cmd.ContentType != "image/jpeg" {
				t.Fatalf("unexpected upload command %+v", cmd)
			}
			return services.ImageUpload{UploadURL: "https://signed", ObjectURL: "https://cdn/obj.jpg", ExpiresAt: expires}, nil
		},
	}
	router := newArtworkRouter(catalog)

	rr := doRequest(t, router, http.MethodDelete, "/artworks/aw_1", "admin-curator", nil)
	if rr.Code != http.StatusOK || deleted != "aw_1" {
		t.Fatalf("delete: status %d id %q", rr.Code, deleted)
	}

	rr = doRequest(t, router, http.MethodPost, "/artworks/aw_1/images:upload-url", "admin-curator", map[string]any{"contentType": "image/jpeg"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["uploadUrl"] != "https://signed" || body["method"] != "PUT" || body["expiresAt"] != "2024-05-01T12:15:00Z" {
		t.Fatalf("unexpected upload payload %v", body)
	}
}

func TestArtworkHandlersUploadsDisabled(t *testing.T) {
	catalog := &stubCatalogService{
		uploadFn: func(context.Context, services.ImageUploadCommand) (services.ImageUpload, error) {
			return services.ImageUpload{}, services.ErrCatalogUploadsDisabled
		},
	}
	rr := doRequest(t, newArtworkRouter(catalog), http.MethodPost, "/artworks/aw_1/images:upload-url", "admin-curator", map[string]any{"contentType": "image/png"})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if decodeBody(t, rr)["error"] != "uploads_disabled" {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}
