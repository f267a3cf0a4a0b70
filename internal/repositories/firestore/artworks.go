package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/atelier-gallery/api/internal/domain"
	pfirestore "github.com/atelier-gallery/api/internal/platform/firestore"
	"github.com/atelier-gallery/api/internal/platform/pagination"
	"github.com/atelier-gallery/api/internal/repositories"
)

const artworksCollection = "artworks"

type dimensionsDocument struct {
	Width  float64 `firestore:"width"`
	Height float64 `firestore:"height"`
	Depth  float64 `firestore:"depth,omitempty"`
	Unit   string  `firestore:"unit"`
}

type imageDocument struct {
	URL       string `firestore:"url"`
	Alt       string `firestore:"alt,omitempty"`
	IsPrimary bool   `firestore:"isPrimary"`
}

type artworkDocument struct {
	Title       string             `firestore:"title"`
	Description string             `firestore:"description"`
	Price       int64              `firestore:"price"`
	Currency    string             `firestore:"currency"`
	Category    string             `firestore:"category"`
	Dimensions  dimensionsDocument `firestore:"dimensions"`
	Medium      string             `firestore:"medium,omitempty"`
	Year        int                `firestore:"year,omitempty"`
	ArtistID    string             `firestore:"artistId"`
	Images      []imageDocument    `firestore:"images"`
	Tags        []string           `firestore:"tags"`
	IsAvailable bool               `firestore:"isAvailable"`
	IsFeatured  bool               `firestore:"isFeatured"`
	Views       int64              `firestore:"views"`
	Likes       int64              `firestore:"likes"`
	CreatedAt   time.Time          `firestore:"createdAt"`
	UpdatedAt   time.Time          `firestore:"updatedAt"`
}

// ArtworkRepository stores artworks in the artworks collection keyed by artwork id.
type ArtworkRepository struct {
	artworks *pfirestore.Collection[artworkDocument]
}

var _ repositories.ArtworkRepository = (*ArtworkRepository)(nil)

// NewArtworkRepository binds the repository to provider.
func NewArtworkRepository(provider *pfirestore.Provider) (*ArtworkRepository, error) {
	if provider == nil {
		return nil, errors.New("artwork repository requires firestore provider")
	}
	return &ArtworkRepository{artworks: pfirestore.NewCollection[artworkDocument](provider, artworksCollection)}, nil
}

func (r *ArtworkRepository) Insert(ctx context.Context, artwork domain.Artwork) error {
	return r.artworks.Create(ctx, artwork.ID, encodeArtwork(artwork))
}

// Update rewrites the editable fields. Views and likes move only through their counters.
func (r *ArtworkRepository) Update(ctx context.Context, artwork domain.Artwork) error {
	doc := encodeArtwork(artwork)
	return r.artworks.Update(ctx, artwork.ID, []firestore.Update{
		{Path: "title", Value: doc.Title},
		{Path: "description", Value: doc.Description},
		{Path: "price", Value: doc.Price},
		{Path: "currency", Value: doc.Currency},
		{Path: "category", Value: doc.Category},
		{Path: "dimensions", Value: doc.Dimensions},
		{Path: "medium", Value: doc.Medium},
		{Path: "year", Value: doc.Year},
		{Path: "artistId", Value: doc.ArtistID},
		{Path: "images", Value: doc.Images},
		{Path: "tags", Value: doc.Tags},
		{Path: "isAvailable", Value: doc.IsAvailable},
		{Path: "isFeatured", Value: doc.IsFeatured},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
}

func (r *ArtworkRepository) Delete(ctx context.Context, artworkID string) error {
	return r.artworks.Delete(ctx, artworkID)
}

func (r *ArtworkRepository) FindByID(ctx context.Context, artworkID string) (domain.Artwork, error) {
	doc, err := r.artworks.Get(ctx, artworkID)
	if err != nil {
		return domain.Artwork{}, err
	}
	return decodeArtwork(doc), nil
}

func (r *ArtworkRepository) FindByIDs(ctx context.Context, artworkIDs []string) (map[string]domain.Artwork, error) {
	docs, err := r.artworks.GetAll(ctx, artworkIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Artwork, len(docs))
	for id, doc := range docs {
		out[id] = decodeArtwork(doc)
	}
	return out, nil
}

// List pushes the equality filters and ordering into the query. Price bounds and text search
// are checked on the decoded documents so no range index is needed per sort order.
func (r *ArtworkRepository) List(ctx context.Context, filter repositories.ArtworkListFilter) (domain.CursorPage[domain.Artwork], error) {
	docs, next, err := r.artworks.Page(ctx, pfirestore.PageOptions[artworkDocument]{
		Build: func(q firestore.Query) firestore.Query {
			if filter.Category != nil {
				q = q.Where("category", "==", string(*filter.Category))
			}
			if filter.ArtistID != "" {
				q = q.Where("artistId", "==", filter.ArtistID)
			}
			if filter.Available != nil {
				q = q.Where("isAvailable", "==", *filter.Available)
			}
			if filter.Featured != nil {
				q = q.Where("isFeatured", "==", *filter.Featured)
			}
			switch filter.Sort {
			case repositories.ArtworkSortPriceAsc:
				q = q.OrderBy("price", firestore.Asc)
			case repositories.ArtworkSortPriceDesc:
				q = q.OrderBy("price", firestore.Desc)
			case repositories.ArtworkSortPopular:
				q = q.OrderBy("views", firestore.Desc)
			default:
				q = q.OrderBy("createdAt", firestore.Desc)
			}
			return q
		},
		PageSize: filter.Pagination.PageSize,
		Token:    filter.Pagination.PageToken,
		Match: func(doc artworkDocument) bool {
			return filter.Matches(decodeArtwork(pfirestore.Document[artworkDocument]{Data: doc}))
		},
	})
	if err != nil {
		return domain.CursorPage[domain.Artwork]{}, pageError("artworks.list", err)
	}
	items := make([]domain.Artwork, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeArtwork(doc))
	}
	return domain.CursorPage[domain.Artwork]{Items: items, NextPageToken: next}, nil
}

// CountByCategory runs one count aggregation per category over available artworks.
func (r *ArtworkRepository) CountByCategory(ctx context.Context) ([]domain.CategoryCount, error) {
	out := make([]domain.CategoryCount, 0, len(domain.ArtworkCategories))
	for _, category := range domain.ArtworkCategories {
		n, err := r.artworks.Count(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("category", "==", string(category)).Where("isAvailable", "==", true)
		})
		if err != nil {
			return nil, err
		}
		if n > 0 {
			out = append(out, domain.CategoryCount{Category: category, Count: n})
		}
	}
	return out, nil
}

func (r *ArtworkRepository) IncrementViews(ctx context.Context, artworkID string) error {
	return r.artworks.Update(ctx, artworkID, []firestore.Update{
		{Path: "views", Value: firestore.Increment(1)},
	})
}

func encodeArtwork(a domain.Artwork) artworkDocument {
	images := make([]imageDocument, 0, len(a.Images))
	for _, img := range a.Images {
		images = append(images, imageDocument{URL: img.URL, Alt: img.Alt, IsPrimary: img.IsPrimary})
	}
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return artworkDocument{
		Title:       a.Title,
		Description: a.Description,
		Price:       a.Price,
		Currency:    a.Currency,
		Category:    string(a.Category),
		Dimensions: dimensionsDocument{
			Width:  a.Dimensions.Width,
			Height: a.Dimensions.Height,
			Depth:  a.Dimensions.Depth,
			Unit:   a.Dimensions.Unit,
		},
		Medium:      a.Medium,
		Year:        a.Year,
		ArtistID:    a.ArtistID,
		Images:      images,
		Tags:        tags,
		IsAvailable: a.IsAvailable,
		IsFeatured:  a.IsFeatured,
		Views:       a.Views,
		Likes:       a.Likes,
		CreatedAt:   a.CreatedAt.UTC(),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}
}

func decodeArtwork(doc pfirestore.Document[artworkDocument]) domain.Artwork {
	d := doc.Data
	images := make([]domain.ArtworkImage, 0, len(d.Images))
	for _, img := range d.Images {
		images = append(images, domain.ArtworkImage{URL: img.URL, Alt: img.Alt, IsPrimary: img.IsPrimary})
	}
	return domain.Artwork{
		ID:          doc.ID,
		Title:       d.Title,
		Description: d.Description,
		Price:       d.Price,
		Currency:    d.Currency,
		Category:    domain.ArtworkCategory(d.Category),
		Dimensions: domain.Dimensions{
			Width:  d.Dimensions.Width,
			Height: d.Dimensions.Height,
			Depth:  d.Dimensions.Depth,
			Unit:   d.Dimensions.Unit,
		},
		Medium:      d.Medium,
		Year:        d.Year,
		ArtistID:    d.ArtistID,
		Images:      images,
		Tags:        append([]string(nil), d.Tags...),
		IsAvailable: d.IsAvailable,
		IsFeatured:  d.IsFeatured,
		Views:       d.Views,
		Likes:       d.Likes,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// pageError converts pagination token failures into invalid-input repository errors.
func pageError(op string, err error) error {
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return repositories.InvalidInput(op, "%v", err)
	}
	return err
}
