package handlers

import (
	"context"
	"net/http"
	"testing"

	domain "github.com/atelier-gallery/api/internal/domain"
	"github.com/atelier-gallery/api/internal/services"
)

func sampleArtist(id string) services.Artist {
	return services.Artist{
		ID:           id,
		Name:         "Mara Ilves",
		Bio:          "Paints **harbours**.",
		Email:        "mara@example.com",
		Specialties:  []domain.ArtworkCategory{domain.CategoryPainting},
		IsActive:     true,
		TotalSales:   3,
		TotalRevenue: 150000,
	}
}

func newArtistRouter(catalog services.CatalogService) http.Handler {
	h := NewArtistHandlers(testAuthenticator(), catalog, nil)
	return mountRoutes("/artists", h.Routes)
}

func TestArtistHandlersListHidesEmail(t *testing.T) {
	var captured services.ArtistListFilter
	catalog := &stubCatalogService{
		listArtistsFn: func(_ context.Context, filter services.ArtistListFilter) (domain.CursorPage[services.Artist], error) {
			captured = filter
			return domain.CursorPage[services.Artist]{Items: []services.Artist{sampleArtist("ar_1")}}, nil
		},
	}
	rr := doRequest(t, newArtistRouter(catalog), http.MethodGet, "/artists?specialty=painting&search=mara&sort=name", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Specialty != "painting" || captured.Search != "mara" || captured.Sort != "name" {
		t.Fatalf("unexpected filter %+v", captured)
	}
	items, _ := decodeBody(t, rr)["items"].([]any)
	first, _ := items[0].(map[string]any)
	if first["name"] != "Mara Ilves" || first["totalRevenue"] != float64(150000) {
		t.Fatalf("unexpected artist payload %v", first)
	}
	if _, leaked := first["email"]; leaked {
		t.Fatalf("email must not appear in public listings")
	}
}

func TestArtistHandlersGetRendersBio(t *testing.T) {
	catalog := &stubCatalogService{
		getArtistFn: func(_ context.Context, id string) (services.ArtistDetail, error) {
			return services.ArtistDetail{
				Artist:   sampleArtist(id),
				BioHTML:  "<p>Paints <strong>harbours</strong>.</p>\n",
				Artworks: []services.Artwork{sampleArtwork("aw_1")},
			}, nil
		},
	}
	rr := doRequest(t, newArtistRouter(catalog), http.MethodGet, "/artists/ar_1", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	artist, _ := body["artist"].(map[string]any)
	if artist["bioHtml"] != "<p>Paints <strong>harbours</strong>.</p>\n" {
		t.Fatalf("unexpected bio html %v", artist["bioHtml"])
	}
	artworks, _ := body["artworks"].([]any)
	if len(artworks) != 1 {
		t.Fatalf("expected one artwork, got %v", body["artworks"])
	}
}

func TestArtistHandlersTopLimit(t *testing.T) {
	catalog := &stubCatalogService{
		topArtistsFn: func(_ context.Context, limit int) ([]services.Artist, error) {
			if limit != 3 {
				t.Fatalf("expected limit 3, got %d", limit)
			}
			return []services.Artist{sampleArtist("ar_1")}, nil
		},
	}
	router := newArtistRouter(catalog)
	if rr := doRequest(t, router, http.MethodGet, "/artists/top?limit=3", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr := doRequest(t, router, http.MethodGet, "/artists/top?limit=-1", "", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", rr.Code)
	}
}

func TestArtistHandlersStatsRequiresAdmin(t *testing.T) {
	catalog := &stubCatalogService{
		artistStatsFn: func(context.Context) (services.ArtistStatsOverview, error) {
			return services.ArtistStatsOverview{TotalArtists: 5, ActiveArtists: 4, TopByRevenue: []services.Artist{sampleArtist("ar_1")}}, nil
		},
	}
	router := newArtistRouter(catalog)

	if rr := doRequest(t, router, http.MethodGet, "/artists/stats/overview", "shopper", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	rr := doRequest(t, router, http.MethodGet, "/artists/stats/overview", "admin-ops", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["totalArtists"] != float64(5) || body["activeArtists"] != float64(4) {
		t.Fatalf("unexpected stats %v", body)
	}
}

func TestArtistHandlersCreateReturnsEmailToAdmins(t *testing.T) {
	var captured services.UpsertArtistCommand
	catalog := &stubCatalogService{
		createArtist: func(_ context.Context, cmd services.UpsertArtistCommand) (services.Artist, error) {
			captured = cmd
			artist := sampleArtist("ar_new")
			artist.Email = cmd.Email
			return artist, nil
		},
	}
	rr := doRequest(t, newArtistRouter(catalog), http.MethodPost, "/artists", "admin-ops", map[string]any{
		"name":        "Mara Ilves",
		"email":       "mara@example.com",
		"social":      map[string]any{"instagram": "@mara"},
		"specialties": []string{"painting"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Social.Instagram != "@mara" || len(captured.Specialties) != 1 {
		t.Fatalf("unexpected command %+v", captured)
	}
	body := decodeBody(t, rr)
	artist, _ := body["artist"].(map[string]any)
	if artist["email"] != "mara@example.com" || body["message"] != "Artist created successfully" {
		t.Fatalf("unexpected response %v", body)
	}
}

func TestArtistHandlersDeactivate(t *testing.T) {
	catalog := &stubCatalogService{
		deactivateFn: func(_ context.Context, id string) (services.Artist, error) {
			if id == "missing" {
				return services.Artist{}, services.ErrCatalogNotFound
			}
			artist := sampleArtist(id)
			artist.IsActive = false
			return artist, nil
		},
	}
	router := newArtistRouter(catalog)

	rr := doRequest(t, router, http.MethodDelete, "/artists/ar_1", "admin-ops", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	artist, _ := decodeBody(t, rr)["artist"].(map[string]any)
	if artist["isActive"] != false {
		t.Fatalf("expected inactive artist, got %v", artist)
	}

	if rr := doRequest(t, router, http.MethodDelete, "/artists/missing", "admin-ops", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
