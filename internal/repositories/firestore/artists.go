package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/atelier-gallery/api/internal/domain"
	pfirestore "github.com/atelier-gallery/api/internal/platform/firestore"
	"github.com/atelier-gallery/api/internal/platform/textutil"
	"github.com/atelier-gallery/api/internal/repositories"
)

const artistsCollection = "artists"

type socialDocument struct {
	Instagram string `firestore:"instagram,omitempty"`
	Twitter   string `firestore:"twitter,omitempty"`
	Facebook  string `firestore:"facebook,omitempty"`
}

type artistDocument struct {
	Name string `firestore:"name"`
	// NameKey is the case-folded name; Firestore sorts strings by code point.
	NameKey      string         `firestore:"nameKey"`
	Bio          string         `firestore:"bio,omitempty"`
	Email        string         `firestore:"email"`
	Avatar       string         `firestore:"avatar,omitempty"`
	Website      string         `firestore:"website,omitempty"`
	Social       socialDocument `firestore:"social"`
	Specialties  []string       `firestore:"specialties"`
	IsActive     bool           `firestore:"isActive"`
	TotalSales   int64          `firestore:"totalSales"`
	TotalRevenue int64          `firestore:"totalRevenue"`
	CreatedAt    time.Time      `firestore:"createdAt"`
	UpdatedAt    time.Time      `firestore:"updatedAt"`
}

// ArtistRepository stores artists keyed by artist id.
type ArtistRepository struct {
	artists *pfirestore.Collection[artistDocument]
	clock   func() time.Time
}

var _ repositories.ArtistRepository = (*ArtistRepository)(nil)

// NewArtistRepository binds the repository to provider.
func NewArtistRepository(provider *pfirestore.Provider) (*ArtistRepository, error) {
	if provider == nil {
		return nil, errors.New("artist repository requires firestore provider")
	}
	return &ArtistRepository{
		artists: pfirestore.NewCollection[artistDocument](provider, artistsCollection),
		clock:   time.Now,
	}, nil
}

func (r *ArtistRepository) Insert(ctx context.Context, artist domain.Artist) error {
	return r.artists.Create(ctx, artist.ID, encodeArtist(artist))
}

// Update rewrites the profile fields and leaves the sales counters untouched.
func (r *ArtistRepository) Update(ctx context.Context, artist domain.Artist) error {
	doc := encodeArtist(artist)
	return r.artists.Update(ctx, artist.ID, []firestore.Update{
		{Path: "name", Value: doc.Name},
		{Path: "nameKey", Value: doc.NameKey},
		{Path: "bio", Value: doc.Bio},
		{Path: "email", Value: doc.Email},
		{Path: "avatar", Value: doc.Avatar},
		{Path: "website", Value: doc.Website},
		{Path: "social", Value: doc.Social},
		{Path: "specialties", Value: doc.Specialties},
		{Path: "isActive", Value: doc.IsActive},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
}

func (r *ArtistRepository) FindByID(ctx context.Context, artistID string) (domain.Artist, error) {
	doc, err := r.artists.Get(ctx, artistID)
	if err != nil {
		return domain.Artist{}, err
	}
	return decodeArtist(doc), nil
}

func (r *ArtistRepository) FindByIDs(ctx context.Context, artistIDs []string) (map[string]domain.Artist, error) {
	docs, err := r.artists.GetAll(ctx, artistIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Artist, len(docs))
	for id, doc := range docs {
		out[id] = decodeArtist(doc)
	}
	return out, nil
}

func (r *ArtistRepository) List(ctx context.Context, filter repositories.ArtistListFilter) (domain.CursorPage[domain.Artist], error) {
	docs, next, err := r.artists.Page(ctx, pfirestore.PageOptions[artistDocument]{
		Build: func(q firestore.Query) firestore.Query {
			if filter.ActiveOnly {
				q = q.Where("isActive", "==", true)
			}
			if filter.Specialty != nil {
				q = q.Where("specialties", "array-contains", string(*filter.Specialty))
			}
			switch filter.Sort {
			case repositories.ArtistSortSales:
				q = q.OrderBy("totalSales", firestore.Desc)
			case repositories.ArtistSortRevenue:
				q = q.OrderBy("totalRevenue", firestore.Desc)
			default:
				q = q.OrderBy("nameKey", firestore.Asc)
			}
			return q
		},
		PageSize: filter.Pagination.PageSize,
		Token:    filter.Pagination.PageToken,
		Match: func(doc artistDocument) bool {
			return filter.Matches(decodeArtist(pfirestore.Document[artistDocument]{Data: doc}))
		},
	})
	if err != nil {
		return domain.CursorPage[domain.Artist]{}, pageError("artists.list", err)
	}
	items := make([]domain.Artist, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeArtist(doc))
	}
	return domain.CursorPage[domain.Artist]{Items: items, NextPageToken: next}, nil
}

// IncrementStats applies the delta with server-side increments so concurrent attributions
// never lose an update.
func (r *ArtistRepository) IncrementStats(ctx context.Context, artistID string, delta domain.ArtistStatsDelta) error {
	return r.artists.Update(ctx, artistID, []firestore.Update{
		{Path: "totalSales", Value: firestore.Increment(delta.Sales)},
		{Path: "totalRevenue", Value: firestore.Increment(delta.Revenue)},
		{Path: "updatedAt", Value: r.clock().UTC()},
	})
}

func (r *ArtistRepository) Count(ctx context.Context) (int64, int64, error) {
	total, err := r.artists.Count(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	active, err := r.artists.Count(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("isActive", "==", true)
	})
	if err != nil {
		return 0, 0, err
	}
	return total, active, nil
}

func encodeArtist(a domain.Artist) artistDocument {
	specialties := make([]string, 0, len(a.Specialties))
	for _, s := range a.Specialties {
		specialties = append(specialties, string(s))
	}
	return artistDocument{
		Name:         a.Name,
		NameKey:      textutil.Fold(a.Name),
		Bio:          a.Bio,
		Email:        a.Email,
		Avatar:       a.Avatar,
		Website:      a.Website,
		Social:       socialDocument{Instagram: a.Social.Instagram, Twitter: a.Social.Twitter, Facebook: a.Social.Facebook},
		Specialties:  specialties,
		IsActive:     a.IsActive,
		TotalSales:   a.TotalSales,
		TotalRevenue: a.TotalRevenue,
		CreatedAt:    a.CreatedAt.UTC(),
		UpdatedAt:    a.UpdatedAt.UTC(),
	}
}

func decodeArtist(doc pfirestore.Document[artistDocument]) domain.Artist {
	d := doc.Data
	specialties := make([]domain.ArtworkCategory, 0, len(d.Specialties))
	for _, s := range d.Specialties {
		specialties = append(specialties, domain.ArtworkCategory(s))
	}
	return domain.Artist{
		ID:           doc.ID,
		Name:         d.Name,
		Bio:          d.Bio,
		Email:        d.Email,
		Avatar:       d.Avatar,
		Website:      d.Website,
		Social:       domain.SocialLinks{Instagram: d.Social.Instagram, Twitter: d.Social.Twitter, Facebook: d.Social.Facebook},
		Specialties:  specialties,
		IsActive:     d.IsActive,
		TotalSales:   d.TotalSales,
		TotalRevenue: d.TotalRevenue,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
