package memory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/atelier-gallery/api/internal/domain"
)

// Seed is the YAML document loaded into a fresh store in mock mode.
type Seed struct {
	Artists  []seedArtist  `yaml:"artists"`
	Artworks []seedArtwork `yaml:"artworks"`
}

type seedArtist struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Bio         string   `yaml:"bio"`
	Email       string   `yaml:"email"`
	Avatar      string   `yaml:"avatar"`
	Website     string   `yaml:"website"`
	Instagram   string   `yaml:"instagram"`
	Twitter     string   `yaml:"twitter"`
	Facebook    string   `yaml:"facebook"`
	Specialties []string `yaml:"specialties"`
	Inactive    bool     `yaml:"inactive"`
}

type seedArtwork struct {
	ID          string      `yaml:"id"`
	Title       string      `yaml:"title"`
	Description string      `yaml:"description"`
	Price       int64       `yaml:"price"`
	Category    string      `yaml:"category"`
	Medium      string      `yaml:"medium"`
	Year        int         `yaml:"year"`
	ArtistID    string      `yaml:"artist"`
	Width       float64     `yaml:"width"`
	Height      float64     `yaml:"height"`
	Depth       float64     `yaml:"depth"`
	Unit        string      `yaml:"unit"`
	Images      []seedImage `yaml:"images"`
	Tags        []string    `yaml:"tags"`
	Featured    bool        `yaml:"featured"`
	SoldOut     bool        `yaml:"sold_out"`
}

type seedImage struct {
	URL     string `yaml:"url"`
	Alt     string `yaml:"alt"`
	Primary bool   `yaml:"primary"`
}

// LoadSeedFile parses a YAML seed document from disk.
func LoadSeedFile(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("memory: read seed %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates a YAML seed document.
func ParseSeed(data []byte) (Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("memory: decode seed: %w", err)
	}
	artists := make(map[string]struct{}, len(seed.Artists))
	for i, artist := range seed.Artists {
		if strings.TrimSpace(artist.ID) == "" || strings.TrimSpace(artist.Name) == "" {
			return Seed{}, fmt.Errorf("memory: seed artist %d requires id and name", i)
		}
		if _, dup := artists[artist.ID]; dup {
			return Seed{}, fmt.Errorf("memory: seed artist %s is duplicated", artist.ID)
		}
		artists[artist.ID] = struct{}{}
	}
	artworks := make(map[string]struct{}, len(seed.Artworks))
	for i, artwork := range seed.Artworks {
		if strings.TrimSpace(artwork.ID) == "" || strings.TrimSpace(artwork.Title) == "" {
			return Seed{}, fmt.Errorf("memory: seed artwork %d requires id and title", i)
		}
		if _, dup := artworks[artwork.ID]; dup {
			return Seed{}, fmt.Errorf("memory: seed artwork %s is duplicated", artwork.ID)
		}
		artworks[artwork.ID] = struct{}{}
		if _, ok := artists[artwork.ArtistID]; !ok {
			return Seed{}, fmt.Errorf("memory: seed artwork %s references unknown artist %q", artwork.ID, artwork.ArtistID)
		}
		if !domain.ArtworkCategory(artwork.Category).Valid() {
			return Seed{}, fmt.Errorf("memory: seed artwork %s has unknown category %q", artwork.ID, artwork.Category)
		}
		if artwork.Price < 0 {
			return Seed{}, fmt.Errorf("memory: seed artwork %s has a negative price", artwork.ID)
		}
	}
	return seed, nil
}

// Load inserts the seed into the store. Later artworks get later creation times so the
// "newest" ordering follows the document.
func (s *Store) Load(ctx context.Context, seed Seed) error {
	base := s.now()
	for i, in := range seed.Artists {
		specialties := make([]domain.ArtworkCategory, 0, len(in.Specialties))
		for _, raw := range in.Specialties {
			specialties = append(specialties, domain.ArtworkCategory(strings.ToLower(strings.TrimSpace(raw))))
		}
		at := base.Add(time.Duration(i) * time.Second)
		if err := s.Artists().Insert(ctx, domain.Artist{
			ID:          in.ID,
			Name:        in.Name,
			Bio:         in.Bio,
			Email:       in.Email,
			Avatar:      in.Avatar,
			Website:     in.Website,
			Social:      domain.SocialLinks{Instagram: in.Instagram, Twitter: in.Twitter, Facebook: in.Facebook},
			Specialties: specialties,
			IsActive:    !in.Inactive,
			CreatedAt:   at,
			UpdatedAt:   at,
		}); err != nil {
			return err
		}
	}
	for i, in := range seed.Artworks {
		images := make([]domain.ArtworkImage, 0, len(in.Images))
		for _, img := range in.Images {
			images = append(images, domain.ArtworkImage{URL: img.URL, Alt: img.Alt, IsPrimary: img.Primary})
		}
		unit := in.Unit
		if unit == "" {
			unit = "cm"
		}
		at := base.Add(time.Duration(i) * time.Second)
		if err := s.Artworks().Insert(ctx, domain.Artwork{
			ID:          in.ID,
			Title:       in.Title,
			Description: in.Description,
			Price:       in.Price,
			Currency:    "USD",
			Category:    domain.ArtworkCategory(in.Category),
			Dimensions:  domain.Dimensions{Width: in.Width, Height: in.Height, Depth: in.Depth, Unit: unit},
			Medium:      in.Medium,
			Year:        in.Year,
			ArtistID:    in.ArtistID,
			Images:      images,
			Tags:        in.Tags,
			IsAvailable: !in.SoldOut,
			IsFeatured:  in.Featured,
			CreatedAt:   at,
			UpdatedAt:   at,
		}); err != nil {
			return err
		}
	}
	return nil
}
