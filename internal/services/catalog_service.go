package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/atelier-gallery/api/internal/domain"
	"github.com/atelier-gallery/api/internal/platform/textutil"
	"github.com/atelier-gallery/api/internal/repositories"
)

const (
	catalogCachePrefix        = "catalog:"
	cacheKeyFeatured          = catalogCachePrefix + "featured:%d"
	cacheKeyCategories        = catalogCachePrefix + "categories"
	cacheTopArtistsPrefix     = catalogCachePrefix + "top-artists:"
	cacheKeyTopArtists        = cacheTopArtistsPrefix + "%d"
	artworkIDPrefix           = "art_"
	artistIDPrefix            = "atr_"
	maxTitleLength            = 100
	maxDescriptionLength      = 2000
	maxMediumLength           = 100
	maxArtistNameLength       = 100
	maxBioLength              = 5000
	maxShowcaseLimit          = 20
	defaultShowcaseLimit      = 8
	defaultCatalogPageSize    = 20
	maxCatalogPageSize        = 100
	artistArtworksPageSize    = 50
	artistStatsTopLimit       = 5
	earliestArtworkYear       = 1000
	viewIncrementTimeout      = 5 * time.Second
	artworkImageObjectPattern = "artworks/%s/%s.%s"
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid catalog data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the artwork or artist does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates a concurrent write or duplicate id.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogUnavailable indicates the backing store is temporarily unavailable.
	ErrCatalogUnavailable = errors.New("catalog: repository unavailable")
	// ErrCatalogUploadsDisabled indicates no assets bucket or signer is configured.
	ErrCatalogUploadsDisabled = errors.New("catalog: image uploads are not configured")
)

var (
	dimensionUnits = []string{"cm", "in", "m"}

	imageExtensions = map[string]string{
		"image/jpeg": "jpg",
		"image/png":  "png",
		"image/webp": "webp",
		"image/gif":  "gif",
	}
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Artworks     repositories.ArtworkRepository
	Artists      repositories.ArtistRepository
	Cache        ListCache
	Signer       UploadURLSigner
	AssetsBucket string
	Markdown     MarkdownRenderer
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	artworks repositories.ArtworkRepository
	artists  repositories.ArtistRepository
	cache    ListCache
	signer   UploadURLSigner
	bucket   string
	markdown MarkdownRenderer
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
	spawn    func(func())
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Artworks == nil {
		return nil, errors.New("catalog service: artwork repository is required")
	}
	if deps.Artists == nil {
		return nil, errors.New("catalog service: artist repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		artworks: deps.Artworks,
		artists:  deps.Artists,
		cache:    deps.Cache,
		signer:   deps.Signer,
		bucket:   strings.TrimSpace(deps.AssetsBucket),
		markdown: deps.Markdown,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
		spawn:    func(fn func()) { go fn() },
	}, nil
}

// Artworks -------------------------------------------------------------------

func (s *catalogService) ListArtworks(ctx context.Context, filter ArtworkListFilter) (domain.CursorPage[Artwork], error) {
	v := newViolations(ErrCatalogInvalidInput)

	repoFilter := repositories.ArtworkListFilter{
		ArtistID:  strings.TrimSpace(filter.ArtistID),
		Available: filter.Available,
		Featured:  filter.Featured,
		MinPrice:  filter.MinPrice,
		MaxPrice:  filter.MaxPrice,
		Search:    textutil.NormalizeText(filter.Search),
		Sort:      repositories.ArtworkSortNewest,
		Pagination: Pagination{
			PageSize:  clampPageSize(filter.Pagination.PageSize, defaultCatalogPageSize, maxCatalogPageSize),
			PageToken: strings.TrimSpace(filter.Pagination.PageToken),
		},
	}
	if raw := strings.TrimSpace(filter.Category); raw != "" {
		category := ArtworkCategory(strings.ToLower(raw))
		if !category.Valid() {
			v.add("category", fmt.Sprintf("%q is not a known category", raw))
		}
		repoFilter.Category = &category
	}
	if raw := strings.TrimSpace(filter.Sort); raw != "" {
		sort := repositories.ArtworkSort(strings.ToLower(raw))
		switch sort {
		case repositories.ArtworkSortNewest, repositories.ArtworkSortPriceAsc,
			repositories.ArtworkSortPriceDesc, repositories.ArtworkSortPopular:
			repoFilter.Sort = sort
		default:
			v.add("sort", fmt.Sprintf("%q is not a supported sort", raw))
		}
	}
	if filter.MinPrice != nil && *filter.MinPrice < 0 {
		v.add("minPrice", "must not be negative")
	}
	if filter.MaxPrice != nil && *filter.MaxPrice < 0 {
		v.add("maxPrice", "must not be negative")
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && *filter.MinPrice > *filter.MaxPrice {
		v.add("minPrice", "must not exceed maxPrice")
	}
	if err := v.err(); err != nil {
		return domain.CursorPage[Artwork]{}, err
	}

	page, err := s.artworks.List(ctx, repoFilter)
	if err != nil {
		return domain.CursorPage[Artwork]{}, mapCatalogError(err)
	}
	return page, nil
}

func (s *catalogService) GetArtwork(ctx context.Context, artworkID string) (ArtworkDetail, error) {
	artworkID = strings.TrimSpace(artworkID)
	if artworkID == "" {
		return ArtworkDetail{}, fmt.Errorf("%w: artwork id is required", ErrCatalogInvalidInput)
	}
	artwork, err := s.artworks.FindByID(ctx, artworkID)
	if err != nil {
		return ArtworkDetail{}, mapCatalogError(err)
	}

	s.recordView(ctx, artworkID)

	detail := ArtworkDetail{Artwork: artwork}
	if artist, err := s.artists.FindByID(ctx, artwork.ArtistID); err == nil {
		detail.Artist = &artist
	} else if !repositories.IsNotFound(err) {
		s.logger(ctx, "catalog.artwork.artist_lookup_failed", map[string]any{
			"artworkId": artworkID,
			"artistId":  artwork.ArtistID,
			"error":     err.Error(),
		})
	}
	return detail, nil
}

// recordView bumps the view counter without holding up the read.
func (s *catalogService) recordView(ctx context.Context, artworkID string) {
	base := context.WithoutCancel(ctx)
	s.spawn(func() {
		viewCtx, cancel := context.WithTimeout(base, viewIncrementTimeout)
		defer cancel()
		if err := s.artworks.IncrementViews(viewCtx, artworkID); err != nil {
			s.logger(viewCtx, "catalog.artwork.view_increment_failed", map[string]any{
				"artworkId": artworkID,
				"error":     err.Error(),
			})
		}
	})
}

func (s *catalogService) ListFeaturedArtworks(ctx context.Context, limit int) ([]Artwork, error) {
	limit = clampPageSize(limit, defaultShowcaseLimit, maxShowcaseLimit)
	key := fmt.Sprintf(cacheKeyFeatured, limit)

	var cached []Artwork
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	featured, available := true, true
	page, err := s.artworks.List(ctx, repositories.ArtworkListFilter{
		Featured:   &featured,
		Available:  &available,
		Sort:       repositories.ArtworkSortNewest,
		Pagination: Pagination{PageSize: limit},
	})
	if err != nil {
		return nil, mapCatalogError(err)
	}
	items := page.Items
	if items == nil {
		items = []Artwork{}
	}
	s.cacheSet(ctx, key, items)
	return items, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]CategoryCount, error) {
	var cached []CategoryCount
	if s.cacheGet(ctx, cacheKeyCategories, &cached) {
		return cached, nil
	}

	counts, err := s.artworks.CountByCategory(ctx)
	if err != nil {
		return nil, mapCatalogError(err)
	}
	byCategory := make(map[ArtworkCategory]int64, len(counts))
	for _, c := range counts {
		byCategory[c.Category] = c.Count
	}
	result := make([]CategoryCount, 0, len(domain.ArtworkCategories))
	for _, category := range domain.ArtworkCategories {
		result = append(result, CategoryCount{Category: category, Count: byCategory[category]})
	}
	s.cacheSet(ctx, cacheKeyCategories, result)
	return result, nil
}

func (s *catalogService) CreateArtwork(ctx context.Context, cmd UpsertArtworkCommand) (Artwork, error) {
	now := s.clock()
	artwork, err := s.buildArtwork(ctx, cmd, now)
	if err != nil {
		return Artwork{}, err
	}
	artwork.ID = artworkIDPrefix + s.newID()
	artwork.IsAvailable = boolOr(cmd.IsAvailable, true)
	artwork.IsFeatured = boolOr(cmd.IsFeatured, false)
	artwork.CreatedAt = now
	artwork.UpdatedAt = now

	if err := s.artworks.Insert(ctx, artwork); err != nil {
		return Artwork{}, mapCatalogError(err)
	}
	s.invalidate(ctx)
	s.logger(ctx, "catalog.artwork.created", map[string]any{"artworkId": artwork.ID, "artistId": artwork.ArtistID})
	return artwork, nil
}

func (s *catalogService) UpdateArtwork(ctx context.Context, cmd UpsertArtworkCommand) (Artwork, error) {
	artworkID := strings.TrimSpace(cmd.ArtworkID)
	if artworkID == "" {
		return Artwork{}, fmt.Errorf("%w: artwork id is required", ErrCatalogInvalidInput)
	}
	existing, err := s.artworks.FindByID(ctx, artworkID)
	if err != nil {
		return Artwork{}, mapCatalogError(err)
	}

	now := s.clock()
	artwork, err := s.buildArtwork(ctx, cmd, now)
	if err != nil {
		return Artwork{}, err
	}
	artwork.ID = existing.ID
	artwork.IsAvailable = boolOr(cmd.IsAvailable, existing.IsAvailable)
	artwork.IsFeatured = boolOr(cmd.IsFeatured, existing.IsFeatured)
	artwork.Views = existing.Views
	artwork.Likes = existing.Likes
	artwork.CreatedAt = existing.CreatedAt
	artwork.UpdatedAt = now

	if err := s.artworks.Update(ctx, artwork); err != nil {
		return Artwork{}, mapCatalogError(err)
	}
	s.invalidate(ctx)
	s.logger(ctx, "catalog.artwork.updated", map[string]any{"artworkId": artwork.ID})
	return artwork, nil
}

func (s *catalogService) DeleteArtwork(ctx context.Context, artworkID string) error {
	artworkID = strings.TrimSpace(artworkID)
	if artworkID == "" {
		return fmt.Errorf("%w: artwork id is required", ErrCatalogInvalidInput)
	}
	if err := s.artworks.Delete(ctx, artworkID); err != nil {
		return mapCatalogError(err)
	}
	s.invalidate(ctx)
	s.logger(ctx, "catalog.artwork.deleted", map[string]any{"artworkId": artworkID})
	return nil
}

func (s *catalogService) CreateImageUploadURL(ctx context.Context, cmd ImageUploadCommand) (ImageUpload, error) {
	if s.signer == nil || s.bucket == "" {
		return ImageUpload{}, ErrCatalogUploadsDisabled
	}
	artworkID := strings.TrimSpace(cmd.ArtworkID)
	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))

	v := newViolations(ErrCatalogInvalidInput)
	v.required("artworkId", artworkID)
	ext, ok := imageExtensions[contentType]
	if !ok {
		v.add("contentType", "must be one of image/jpeg, image/png, image/webp, image/gif")
	}
	if err := v.err(); err != nil {
		return ImageUpload{}, err
	}
	if _, err := s.artworks.FindByID(ctx, artworkID); err != nil {
		return ImageUpload{}, mapCatalogError(err)
	}

	object := fmt.Sprintf(artworkImageObjectPattern, artworkID, strings.ToLower(s.newID()), ext)
	signed, expiresAt, err := s.signer.SignedUploadURL(ctx, s.bucket, object, contentType)
	if err != nil {
		return ImageUpload{}, fmt.Errorf("catalog: sign upload url: %w", err)
	}
	return ImageUpload{
		UploadURL: signed,
		ObjectURL: (&url.URL{Scheme: "https", Host: "storage.googleapis.com", Path: "/" + s.bucket + "/" + object}).String(),
		ExpiresAt: expiresAt,
	}, nil
}

func (s *catalogService) buildArtwork(ctx context.Context, cmd UpsertArtworkCommand, now time.Time) (Artwork, error) {
	v := newViolations(ErrCatalogInvalidInput)

	title := textutil.PlainText(cmd.Title)
	description := textutil.PlainText(cmd.Description)
	medium := textutil.PlainText(cmd.Medium)
	artistID := strings.TrimSpace(cmd.ArtistID)
	category := ArtworkCategory(strings.ToLower(strings.TrimSpace(cmd.Category)))
	unit := strings.ToLower(strings.TrimSpace(cmd.Dimensions.Unit))

	v.required("title", title)
	if textutil.RuneLen(title) > maxTitleLength {
		v.add("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	}
	v.required("description", description)
	if textutil.RuneLen(description) > maxDescriptionLength {
		v.add("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	}
	if cmd.Price < 0 {
		v.add("price", "must not be negative")
	}
	if !category.Valid() {
		v.add("category", "must be one of the supported categories")
	}
	v.required("medium", medium)
	if textutil.RuneLen(medium) > maxMediumLength {
		v.add("medium", fmt.Sprintf("must be at most %d characters", maxMediumLength))
	}
	if cmd.Year < earliestArtworkYear || cmd.Year > now.Year() {
		v.add("year", fmt.Sprintf("must be between %d and %d", earliestArtworkYear, now.Year()))
	}
	if cmd.Dimensions.Width <= 0 {
		v.add("dimensions.width", "must be positive")
	}
	if cmd.Dimensions.Height <= 0 {
		v.add("dimensions.height", "must be positive")
	}
	if cmd.Dimensions.Depth < 0 {
		v.add("dimensions.depth", "must not be negative")
	}
	if unit == "" {
		unit = "cm"
	} else if !slices.Contains(dimensionUnits, unit) {
		v.add("dimensions.unit", "must be one of cm, in, m")
	}
	images := normalizeImages(cmd.Images, v)
	v.required("artist", artistID)
	if err := v.err(); err != nil {
		return Artwork{}, err
	}

	artist, err := s.artists.FindByID(ctx, artistID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Artwork{}, &ValidationError{Kind: ErrCatalogInvalidInput, Violations: []FieldViolation{{Field: "artist", Message: "does not exist"}}}
		}
		return Artwork{}, mapCatalogError(err)
	}
	if !artist.IsActive {
		return Artwork{}, &ValidationError{Kind: ErrCatalogInvalidInput, Violations: []FieldViolation{{Field: "artist", Message: "is not active"}}}
	}

	return Artwork{
		Title:       title,
		Description: description,
		Price:       cmd.Price,
		Currency:    DefaultCurrency,
		Category:    category,
		Dimensions: domain.Dimensions{
			Width:  cmd.Dimensions.Width,
			Height: cmd.Dimensions.Height,
			Depth:  cmd.Dimensions.Depth,
			Unit:   unit,
		},
		Medium:   medium,
		Year:     cmd.Year,
		ArtistID: artist.ID,
		Images:   images,
		Tags:     textutil.NormalizeTags(cmd.Tags),
	}, nil
}

// normalizeImages keeps at most one primary image, promoting the first when none is marked.
func normalizeImages(inputs []ArtworkImageInput, v *violations) []ArtworkImage {
	images := make([]ArtworkImage, 0, len(inputs))
	primaries := 0
	for i, in := range inputs {
		raw := strings.TrimSpace(in.URL)
		parsed, err := url.Parse(raw)
		if raw == "" || err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
			v.add(fmt.Sprintf("images[%d].url", i), "must be an absolute http(s) URL")
			continue
		}
		if in.IsPrimary {
			primaries++
		}
		images = append(images, ArtworkImage{
			URL:       raw,
			Alt:       textutil.PlainText(in.Alt),
			IsPrimary: in.IsPrimary,
		})
	}
	if primaries > 1 {
		v.add("images", "at most one image may be primary")
	}
	if primaries == 0 && len(images) > 0 {
		images[0].IsPrimary = true
	}
	return images
}

// Artists --------------------------------------------------------------------

func (s *catalogService) ListArtists(ctx context.Context, filter ArtistListFilter) (domain.CursorPage[Artist], error) {
	v := newViolations(ErrCatalogInvalidInput)
	repoFilter := repositories.ArtistListFilter{
		ActiveOnly: true,
		Search:     textutil.NormalizeText(filter.Search),
		Sort:       repositories.ArtistSortName,
		Pagination: Pagination{
			PageSize:  clampPageSize(filter.Pagination.PageSize, defaultCatalogPageSize, maxCatalogPageSize),
			PageToken: strings.TrimSpace(filter.Pagination.PageToken),
		},
	}
	if raw := strings.TrimSpace(filter.Specialty); raw != "" {
		specialty := ArtworkCategory(strings.ToLower(raw))
		if !specialty.Valid() {
			v.add("specialty", fmt.Sprintf("%q is not a known category", raw))
		}
		repoFilter.Specialty = &specialty
	}
	if raw := strings.TrimSpace(filter.Sort); raw != "" {
		sort := repositories.ArtistSort(strings.ToLower(raw))
		switch sort {
		case repositories.ArtistSortName, repositories.ArtistSortSales, repositories.ArtistSortRevenue:
			repoFilter.Sort = sort
		default:
			v.add("sort", fmt.Sprintf("%q is not a supported sort", raw))
		}
	}
	if err := v.err(); err != nil {
		return domain.CursorPage[Artist]{}, err
	}

	page, err := s.artists.List(ctx, repoFilter)
	if err != nil {
		return domain.CursorPage[Artist]{}, mapCatalogError(err)
	}
	return page, nil
}

func (s *catalogService) GetArtist(ctx context.Context, artistID string) (ArtistDetail, error) {
	artistID = strings.TrimSpace(artistID)
	if artistID == "" {
		return ArtistDetail{}, fmt.Errorf("%w: artist id is required", ErrCatalogInvalidInput)
	}
	artist, err := s.artists.FindByID(ctx, artistID)
	if err != nil {
		return ArtistDetail{}, mapCatalogError(err)
	}
	if !artist.IsActive {
		return ArtistDetail{}, fmt.Errorf("%w: artist %s", ErrCatalogNotFound, artistID)
	}

	available := true
	page, err := s.artworks.List(ctx, repositories.ArtworkListFilter{
		ArtistID:   artist.ID,
		Available:  &available,
		Sort:       repositories.ArtworkSortNewest,
		Pagination: Pagination{PageSize: artistArtworksPageSize},
	})
	if err != nil {
		return ArtistDetail{}, mapCatalogError(err)
	}

	detail := ArtistDetail{Artist: artist, Artworks: page.Items}
	if s.markdown != nil && strings.TrimSpace(artist.Bio) != "" {
		html, err := s.markdown.Render(artist.Bio)
		if err != nil {
			s.logger(ctx, "catalog.artist.bio_render_failed", map[string]any{"artistId": artist.ID, "error": err.Error()})
		} else {
			detail.BioHTML = html
		}
	}
	return detail, nil
}

func (s *catalogService) ListTopArtists(ctx context.Context, limit int) ([]Artist, error) {
	limit = clampPageSize(limit, defaultShowcaseLimit, maxShowcaseLimit)
	key := fmt.Sprintf(cacheKeyTopArtists, limit)

	var cached []Artist
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	page, err := s.artists.List(ctx, repositories.ArtistListFilter{
		ActiveOnly: true,
		Sort:       repositories.ArtistSortSales,
		Pagination: Pagination{PageSize: limit},
	})
	if err != nil {
		return nil, mapCatalogError(err)
	}
	items := page.Items
	if items == nil {
		items = []Artist{}
	}
	s.cacheSet(ctx, key, items)
	return items, nil
}

func (s *catalogService) CreateArtist(ctx context.Context, cmd UpsertArtistCommand) (Artist, error) {
	artist, err := buildArtist(cmd)
	if err != nil {
		return Artist{}, err
	}
	now := s.clock()
	artist.ID = artistIDPrefix + s.newID()
	artist.IsActive = true
	artist.CreatedAt = now
	artist.UpdatedAt = now

	if err := s.artists.Insert(ctx, artist); err != nil {
		return Artist{}, mapCatalogError(err)
	}
	s.invalidate(ctx)
	s.logger(ctx, "catalog.artist.created", map[string]any{"artistId": artist.ID})
	return artist, nil
}

func (s *catalogService) UpdateArtist(ctx context.Context, cmd UpsertArtistCommand) (Artist, error) {
	artistID := strings.TrimSpace(cmd.ArtistID)
	if artistID == "" {
		return Artist{}, fmt.Errorf("%w: artist id is required", ErrCatalogInvalidInput)
	}
	existing, err := s.artists.FindByID(ctx, artistID)
	if err != nil {
		return Artist{}, mapCatalogError(err)
	}
	artist, err := buildArtist(cmd)
	if err != nil {
		return Artist{}, err
	}
	// sales counters are owned by attribution and never overwritten here
	artist.ID = existing.ID
	artist.IsActive = existing.IsActive
	artist.TotalSales = existing.TotalSales
	artist.TotalRevenue = existing.TotalRevenue
	artist.CreatedAt = existing.CreatedAt
	artist.UpdatedAt = s.clock()

	if err := s.artists.Update(ctx, artist); err != nil {
		return Artist{}, mapCatalogError(err)
	}
	s.invalidate(ctx)
	s.logger(ctx, "catalog.artist.updated", map[string]any{"artistId": artist.ID})
	return artist, nil
}

func (s *catalogService) DeactivateArtist(ctx context.Context, artistID string) (Artist, error) {
	artistID = strings.TrimSpace(artistID)
	if artistID == "" {
		return Artist{}, fmt.Errorf("%w: artist id is required", ErrCatalogInvalidInput)
	}
	artist, err := s.artists.FindByID(ctx, artistID)
	if err != nil {
		return Artist{}, mapCatalogError(err)
	}
	if !artist.IsActive {
		return artist, nil
	}
	artist.IsActive = false
	artist.UpdatedAt = s.clock()
	if err := s.artists.Update(ctx, artist); err != nil {
		return Artist{}, mapCatalogError(err)
	}
	s.invalidate(ctx)
	s.logger(ctx, "catalog.artist.deactivated", map[string]any{"artistId": artist.ID})
	return artist, nil
}

func (s *catalogService) ArtistStats(ctx context.Context) (ArtistStatsOverview, error) {
	total, active, err := s.artists.Count(ctx)
	if err != nil {
		return ArtistStatsOverview{}, mapCatalogError(err)
	}
	page, err := s.artists.List(ctx, repositories.ArtistListFilter{
		Sort:       repositories.ArtistSortRevenue,
		Pagination: Pagination{PageSize: artistStatsTopLimit},
	})
	if err != nil {
		return ArtistStatsOverview{}, mapCatalogError(err)
	}
	top := page.Items
	if top == nil {
		top = []Artist{}
	}
	return ArtistStatsOverview{TotalArtists: total, ActiveArtists: active, TopByRevenue: top}, nil
}

func buildArtist(cmd UpsertArtistCommand) (Artist, error) {
	v := newViolations(ErrCatalogInvalidInput)

	name := textutil.PlainText(cmd.Name)
	v.required("name", name)
	if textutil.RuneLen(name) > maxArtistNameLength {
		v.add("name", fmt.Sprintf("must be at most %d characters", maxArtistNameLength))
	}
	// bio is Markdown; it is sanitised when rendered
	bio := textutil.NormalizeText(cmd.Bio)
	if textutil.RuneLen(bio) > maxBioLength {
		v.add("bio", fmt.Sprintf("must be at most %d characters", maxBioLength))
	}

	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" {
		v.add("email", "is required")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		v.add("email", "must be a valid email address")
	}

	website := optionalURL("website", cmd.Website, v)
	avatar := optionalURL("avatar", cmd.Avatar, v)

	specialties := make([]ArtworkCategory, 0, len(cmd.Specialties))
	for i, raw := range cmd.Specialties {
		specialty := ArtworkCategory(strings.ToLower(strings.TrimSpace(raw)))
		if !specialty.Valid() {
			v.add(fmt.Sprintf("specialties[%d]", i), "must be one of the supported categories")
			continue
		}
		if !slices.Contains(specialties, specialty) {
			specialties = append(specialties, specialty)
		}
	}
	if err := v.err(); err != nil {
		return Artist{}, err
	}

	return Artist{
		Name:    name,
		Bio:     bio,
		Email:   email,
		Avatar:  avatar,
		Website: website,
		Social: domain.SocialLinks{
			Instagram: strings.TrimSpace(cmd.Social.Instagram),
			Twitter:   strings.TrimSpace(cmd.Social.Twitter),
			Facebook:  strings.TrimSpace(cmd.Social.Facebook),
		},
		Specialties: specialties,
	}, nil
}

func optionalURL(field, raw string, v *violations) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
		v.add(field, "must be an absolute http(s) URL")
		return ""
	}
	return raw
}

// Cache helpers --------------------------------------------------------------

func (s *catalogService) cacheGet(ctx context.Context, key string, dest any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger(ctx, "catalog.cache.get_failed", map[string]any{"key": key, "error": err.Error()})
		return false
	}
	return ok
}

func (s *catalogService) cacheSet(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.logger(ctx, "catalog.cache.set_failed", map[string]any{"key": key, "error": err.Error()})
	}
}

func (s *catalogService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, catalogCachePrefix); err != nil {
		s.logger(ctx, "catalog.cache.invalidate_failed", map[string]any{"error": err.Error()})
	}
}

func mapCatalogError(err error) error {
	if err == nil {
		return nil
	}
	if repositories.IsInvalidInput(err) {
		return fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
	}
	return err
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}
