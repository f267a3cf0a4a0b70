package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/atelier-gallery/api/internal/domain"
	"github.com/atelier-gallery/api/internal/platform/auth"
	"github.com/atelier-gallery/api/internal/platform/httpx"
	"github.com/atelier-gallery/api/internal/platform/observability"
	"github.com/atelier-gallery/api/internal/services"
)

const (
	defaultCatalogPageSize = 20
	maxCatalogPageSize     = 100
)

// ArtworkHandlers serves the public artwork catalog and its admin maintenance endpoints.
type ArtworkHandlers struct {
	authn       *auth.Authenticator
	catalog     services.CatalogService
	idempotency Middleware
}

// NewArtworkHandlers constructs ArtworkHandlers. idempotency may be nil.
func NewArtworkHandlers(authn *auth.Authenticator, catalog services.CatalogService, idempotency Middleware) *ArtworkHandlers {
	return &ArtworkHandlers{authn: authn, catalog: catalog, idempotency: idempotency}
}

// Routes registers the /artworks endpoints.
func (h *ArtworkHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listArtworks)
	r.Get("/featured", h.listFeatured)
	r.Get("/categories", h.listCategories)
	r.Get("/{artworkID}", h.getArtwork)

	r.Group(func(admin chi.Router) {
		if h.authn != nil {
			admin.Use(h.authn.RequireAuth(string(domain.RoleAdmin)), observability.IdentityLoggerMiddleware)
		}
		if h.idempotency != nil {
			admin.Use(h.idempotency)
		}
		admin.Post("/", h.createArtwork)
		admin.Put("/{artworkID}", h.updateArtwork)
		admin.Delete("/{artworkID}", h.deleteArtwork)
		admin.Post("/{artworkID}/images:upload-url", h.createUploadURL)
	})
}

func (h *ArtworkHandlers) listArtworks(w http.ResponseWriter, r *http.Request) {
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
	filter := services.ArtworkListFilter{
		Category:   query.Get("category"),
		ArtistID:   strings.TrimSpace(query.Get("artist")),
		Search:     query.Get("search"),
		Sort:       query.Get("sort"),
		Pagination: page,
	}
	if filter.Available, err = parseBoolParam(query.Get("available")); err != nil {
		writeQueryParamError(ctx, w, "available", err)
		return
	}
	if filter.Featured, err = parseBoolParam(query.Get("featured")); err != nil {
		writeQueryParamError(ctx, w, "featured", err)
		return
	}
	if filter.MinPrice, err = parseInt64Param(query.Get("minPrice")); err != nil {
		writeQueryParamError(ctx, w, "minPrice", err)
		return
	}
	if filter.MaxPrice, err = parseInt64Param(query.Get("maxPrice")); err != nil {
		writeQueryParamError(ctx, w, "maxPrice", err)
		return
	}

	result, err := h.catalog.ListArtworks(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, artworkListResponse{
		Items:         buildArtworkPayloads(result.Items),
		NextPageToken: strings.TrimSpace(result.NextPageToken),
	})
}

func (h *ArtworkHandlers) listFeatured(w http.ResponseWriter, r *http.Request) {
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
	artworks, err := h.catalog.ListFeaturedArtworks(ctx, limit)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, artworkListResponse{Items: buildArtworkPayloads(artworks)})
}

func (h *ArtworkHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogServiceUnavailable(ctx, w)
		return
	}
	counts, err := h.catalog.ListCategories(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	items := make([]categoryPayload, 0, len(counts))
	for _, c := range counts {
		items = append(items, categoryPayload{Category: string(c.Category), Count: c.Count})
	}
	writeJSONResponse(w, http.StatusOK, categoryListResponse{Items: items})
}

func (h *ArtworkHandlers) getArtwork(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogServiceUnavailable(ctx, w)
		return
	}
	detail, err := h.catalog.GetArtwork(ctx, chi.URLParam(r, "artworkID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	payload := buildArtworkPayload(detail.Artwork)
	if detail.Artist != nil {
		summary := buildArtistSummary(*detail.Artist)
		payload.ArtistSummary = &summary
	}
	writeJSONResponse(w, http.StatusOK, artworkResponse{Artwork: payload})
}

func (h *ArtworkHandlers) createArtwork(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogServiceUnavailable(ctx, w)
		return
	}
	var req artworkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	artwork, err := h.catalog.CreateArtwork(ctx, req.command(""))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/artworks/"+artwork.ID)
	writeJSONResponse(w, http.StatusCreated, artworkResponse{
		Artwork: buildArtworkPayload(artwork),
		Message: "Artwork created successfully",
	})
}

func (h *ArtworkHandlers) updateArtwork(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogServiceUnavailable(ctx, w)
		return
	}
	var req artworkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	artwork, err := h.catalog.UpdateArtwork(ctx, req.command(chi.URLParam(r, "artworkID")))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, artworkResponse{
		Artwork: buildArtworkPayload(artwork),
		Message: "Artwork updated successfully",
	})
}

func (h *ArtworkHandlers) deleteArtwork(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogServiceUnavailable(ctx, w)
		return
	}
	if err := h.catalog.DeleteArtwork(ctx, chi.URLParam(r, "artworkID")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, messageResponse{Message: "Artwork deleted successfully"})
}

type uploadURLRequest struct {
	ContentType string `json:"contentType"`
}

func (h *ArtworkHandlers) createUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogServiceUnavailable(ctx, w)
		return
	}
	var req uploadURLRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	upload, err := h.catalog.CreateImageUploadURL(ctx, services.ImageUploadCommand{
		ArtworkID:   chi.URLParam(r, "artworkID"),
		ContentType: req.ContentType,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, uploadURLResponse{
		UploadURL: upload.UploadURL,
		ObjectURL: upload.ObjectURL,
		Method:    http.MethodPut,
		Headers:   map[string]string{"Content-Type": strings.ToLower(strings.TrimSpace(req.ContentType))},
		ExpiresAt: formatTime(upload.ExpiresAt),
	})
}

type dimensionsPayload struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Depth  float64 `json:"depth,omitempty"`
	Unit   string  `json:"unit"`
}

type imagePayload struct {
	URL       string `json:"url"`
	Alt       string `json:"alt,omitempty"`
	IsPrimary bool   `json:"isPrimary"`
}

type artworkRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Price       int64             `json:"price"`
	Category    string            `json:"category"`
	Dimensions  dimensionsPayload `json:"dimensions"`
	Medium      string            `json:"medium"`
	Year        int               `json:"year"`
	Artist      string            `json:"artist"`
	Images      []imagePayload    `json:"images"`
	Tags        []string          `json:"tags"`
	IsAvailable *bool             `json:"isAvailable"`
	IsFeatured  *bool             `json:"isFeatured"`
}

func (req artworkRequest) command(artworkID string) services.UpsertArtworkCommand {
	images := make([]services.ArtworkImageInput, 0, len(req.Images))
	for _, img := range req.Images {
		images = append(images, services.ArtworkImageInput{URL: img.URL, Alt: img.Alt, IsPrimary: img.IsPrimary})
	}
	return services.UpsertArtworkCommand{
		ArtworkID:   strings.TrimSpace(artworkID),
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		Dimensions: services.DimensionsInput{
			Width:  req.Dimensions.Width,
			Height: req.Dimensions.Height,
			Depth:  req.Dimensions.Depth,
			Unit:   req.Dimensions.Unit,
		},
		Medium:      req.Medium,
		Year:        req.Year,
		ArtistID:    req.Artist,
		Images:      images,
		Tags:        req.Tags,
		IsAvailable: req.IsAvailable,
		IsFeatured:  req.IsFeatured,
	}
}

type artworkPayload struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Price         int64                 `json:"price"`
	Currency      string                `json:"currency"`
	Category      string                `json:"category"`
	Dimensions    dimensionsPayload     `json:"dimensions"`
	Medium        string                `json:"medium,omitempty"`
	Year          int                   `json:"year,omitempty"`
	Artist        string                `json:"artist"`
	ArtistSummary *artistSummaryPayload `json:"artistSummary,omitempty"`
	Images        []imagePayload        `json:"images"`
	Tags          []string              `json:"tags"`
	IsAvailable   bool                  `json:"isAvailable"`
	IsFeatured    bool                  `json:"isFeatured"`
	Views         int64                 `json:"views"`
	Likes         int64                 `json:"likes"`
	CreatedAt     string                `json:"createdAt"`
	UpdatedAt     string                `json:"updatedAt,omitempty"`
}

type artworkListResponse struct {
	Items         []artworkPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type artworkResponse struct {
	Artwork artworkPayload `json:"artwork"`
	Message string         `json:"message,omitempty"`
}

type categoryPayload struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

type categoryListResponse struct {
	Items []categoryPayload `json:"items"`
}

type uploadURLResponse struct {
	UploadURL string            `json:"uploadUrl"`
	ObjectURL string            `json:"objectUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ExpiresAt string            `json:"expiresAt"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func buildArtworkPayloads(artworks []services.Artwork) []artworkPayload {
	out := make([]artworkPayload, 0, len(artworks))
	for _, artwork := range artworks {
		out = append(out, buildArtworkPayload(artwork))
	}
	return out
}

func buildArtworkPayload(a services.Artwork) artworkPayload {
	images := make([]imagePayload, 0, len(a.Images))
	for _, img := range a.Images {
		images = append(images, imagePayload{URL: img.URL, Alt: img.Alt, IsPrimary: img.IsPrimary})
	}
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return artworkPayload{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		Price:       a.Price,
		Currency:    a.Currency,
		Category:    string(a.Category),
		Dimensions: dimensionsPayload{
			Width:  a.Dimensions.Width,
			Height: a.Dimensions.Height,
			Depth:  a.Dimensions.Depth,
			Unit:   a.Dimensions.Unit,
		},
		Medium:      a.Medium,
		Year:        a.Year,
		Artist:      a.ArtistID,
		Images:      images,
		Tags:        tags,
		IsAvailable: a.IsAvailable,
		IsFeatured:  a.IsFeatured,
		Views:       a.Views,
		Likes:       a.Likes,
		CreatedAt:   formatTime(a.CreatedAt),
		UpdatedAt:   formatTime(a.UpdatedAt),
	}
}

func writeCatalogServiceUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
}

func writeQueryParamError(ctx context.Context, w http.ResponseWriter, param string, err error) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", param+" "+err.Error(), http.StatusBadRequest).
		WithDetails(map[string]any{"fields": []map[string]string{{"field": param, "message": err.Error()}}}))
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, validationError("invalid_request", err))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", "resource was modified concurrently, retry", http.StatusConflict))
	case errors.Is(err, services.ErrCatalogUploadsDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("uploads_disabled", "image uploads are not configured", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
