package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/atelier-gallery/api/internal/domain"
	"github.com/atelier-gallery/api/internal/platform/auth"
	"github.com/atelier-gallery/api/internal/platform/httpx"
	"github.com/atelier-gallery/api/internal/platform/observability"
	"github.com/atelier-gallery/api/internal/services"
)

// ArtistHandlers serves the artist directory.
type ArtistHandlers struct {
	authn       *auth.Authenticator
	catalog     services.CatalogService
	idempotency Middleware
}

// NewArtistHandlers constructs ArtistHandlers. idempotency may be nil.
func NewArtistHandlers(authn *auth.Authenticator, catalog services.CatalogService, idempotency Middleware) *ArtistHandlers {
	return &ArtistHandlers{authn: authn, catalog: catalog, idempotency: idempotency}
}

// Routes registers the /artists endpoints.
func (h *ArtistHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listArtists)
	r.Get("/top", h.listTop)
	r.Get("/{artistID}", h.getArtist)

	r.Group(func(admin chi.Router) {
		if h.authn != nil {
			admin.Use(h.authn.RequireAuth(string(domain.RoleAdmin)), observability.IdentityLoggerMiddleware)
		}
		if h.idempotency != nil {
			admin.Use(h.idempotency)
		}
		admin.Get("/stats/overview", h.stats)
		admin.Post("/", h.createArtist)
		admin.Put("/{artistID}", h.updateArtist)
		admin.Delete("/{artistID}", h.deactivateArtist)
	})
}

func (h *ArtistHandlers) listArtists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogServiceUnavailable(ctx, w)
		return
	}
	page, err := parsePage(r, defaultCatalogPageSize, maxCatalogPageSize)
	if err != nil {
		writePaginationError(ctx, w, err)
		return
	}
	query := r.URL.Query()
	result, err := h.catalog.ListArtists(ctx, services.ArtistListFilter{
		Specialty:  query.Get("specialty"),
		Search:     query.Get("search"),
		Sort:       query.Get("sort"),
		Pagination: page,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, artistListResponse{
		Items:         buildArtistPayloads(result.Items),
		NextPageToken: strings.TrimSpace(result.NextPageToken),
	})
}

func (h *ArtistHandlers) listTop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogServiceUnavailable(ctx, w)
		return
	}
	limit, err := parseLimitParam(r.URL.Query().Get("limit"), 0)
	if err != nil {
		writeQueryParamError(ctx, w, "limit", err)
		return
	}
	artists, err := h.catalog.ListTopArtists(ctx, limit)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, artistListResponse{Items: buildArtistPayloads(artists)})
}

func (h *ArtistHandlers) getArtist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogServiceUnavailable(ctx, w)
		return
	}
	detail, err := h.catalog.GetArtist(ctx, chi.URLParam(r, "artistID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	payload := buildArtistPayload(detail.Artist)
	payload.BioHTML = detail.BioHTML
	writeJSONResponse(w, http.StatusOK, artistDetailResponse{
		Artist:   payload,
		Artworks: buildArtworkPayloads(detail.Artworks),
	})
}

func (h *ArtistHandlers) createArtist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogServiceUnavailable(ctx, w)
		return
	}
	var req artistRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	artist, err := h.catalog.CreateArtist(ctx, req.command(""))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/artists/"+artist.ID)
	writeJSONResponse(w, http.StatusCreated, artistResponse{
		Artist:  buildAdminArtistPayload(artist),
		Message: "Artist created successfully",
	})
}

func (h *ArtistHandlers) updateArtist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogServiceUnavailable(ctx, w)
		return
	}
	var req artistRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	artist, err := h.catalog.UpdateArtist(ctx, req.command(chi.URLParam(r, "artistID")))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, artistResponse{
		Artist:  buildAdminArtistPayload(artist),
		Message: "Artist updated successfully",
	})
}

func (h *ArtistHandlers) deactivateArtist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogServiceUnavailable(ctx, w)
		return
	}
	artist, err := h.catalog.DeactivateArtist(ctx, chi.URLParam(r, "artistID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, artistResponse{
		Artist:  buildAdminArtistPayload(artist),
		Message: "Artist deactivated successfully",
	})
}

func (h *ArtistHandlers) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogServiceUnavailable(ctx, w)
		return
	}
	overview, err := h.catalog.ArtistStats(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, artistStatsPayload{
		TotalArtists:  overview.TotalArtists,
		ActiveArtists: overview.ActiveArtists,
		TopArtists:    buildArtistPayloads(overview.TopByRevenue),
	})
}

type socialPayload struct {
	Instagram string `json:"instagram,omitempty"`
	Twitter   string `json:"twitter,omitempty"`
	Facebook  string `json:"facebook,omitempty"`
}

type artistRequest struct {
	Name        string        `json:"name"`
	Bio         string        `json:"bio"`
	Email       string        `json:"email"`
	Avatar      string        `json:"avatar"`
	Website     string        `json:"website"`
	Social      socialPayload `json:"social"`
	Specialties []string      `json:"specialties"`
}

func (req artistRequest) command(artistID string) services.UpsertArtistCommand {
	return services.UpsertArtistCommand{
		ArtistID: strings.TrimSpace(artistID),
		Name:     req.Name,
		Bio:      req.Bio,
		Email:    req.Email,
		Avatar:   req.Avatar,
		Website:  req.Website,
		Social: services.SocialLinksInput{
			Instagram: req.Social.Instagram,
			Twitter:   req.Social.Twitter,
			Facebook:  req.Social.Facebook,
		},
		Specialties: req.Specialties,
	}
}

// artistPayload omits the contact email; it is only returned to administrators through
// the write endpoints.
type artistPayload struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Bio          string        `json:"bio,omitempty"`
	BioHTML      string        `json:"bioHtml,omitempty"`
	Email        string        `json:"email,omitempty"`
	Avatar       string        `json:"avatar,omitempty"`
	Website      string        `json:"website,omitempty"`
	Social       socialPayload `json:"social"`
	Specialties  []string      `json:"specialties"`
	IsActive     bool          `json:"isActive"`
	TotalSales   int64         `json:"totalSales"`
	TotalRevenue int64         `json:"totalRevenue"`
	CreatedAt    string        `json:"createdAt"`
	UpdatedAt    string        `json:"updatedAt,omitempty"`
}

type artistSummaryPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type artistListResponse struct {
	Items         []artistPayload `json:"items"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type artistResponse struct {
	Artist  artistPayload `json:"artist"`
	Message string        `json:"message,omitempty"`
}

type artistDetailResponse struct {
	Artist   artistPayload    `json:"artist"`
	Artworks []artworkPayload `json:"artworks"`
}

type artistStatsPayload struct {
	TotalArtists  int64           `json:"totalArtists"`
	ActiveArtists int64           `json:"activeArtists"`
	TopArtists    []artistPayload `json:"topArtists"`
}

func buildArtistPayloads(artists []services.Artist) []artistPayload {
	out := make([]artistPayload, 0, len(artists))
	for _, artist := range artists {
		out = append(out, buildArtistPayload(artist))
	}
	return out
}

func buildArtistPayload(a services.Artist) artistPayload {
	specialties := make([]string, 0, len(a.Specialties))
	for _, s := range a.Specialties {
		specialties = append(specialties, string(s))
	}
	return artistPayload{
		ID:           a.ID,
		Name:         a.Name,
		Bio:          a.Bio,
		Avatar:       a.Avatar,
		Website:      a.Website,
		Social:       socialPayload{Instagram: a.Social.Instagram, Twitter: a.Social.Twitter, Facebook: a.Social.Facebook},
		Specialties:  specialties,
		IsActive:     a.IsActive,
		TotalSales:   a.TotalSales,
		TotalRevenue: a.TotalRevenue,
		CreatedAt:    formatTime(a.CreatedAt),
		UpdatedAt:    formatTime(a.UpdatedAt),
	}
}

func buildAdminArtistPayload(a services.Artist) artistPayload {
	payload := buildArtistPayload(a)
	payload.Email = a.Email
	return payload
}

func buildArtistSummary(a services.Artist) artistSummaryPayload {
	return artistSummaryPayload{ID: a.ID, Name: a.Name, Avatar: a.Avatar}
}
