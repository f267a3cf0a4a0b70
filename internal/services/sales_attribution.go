package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/atelier-gallery/api/internal/domain"
	"github.com/atelier-gallery/api/internal/repositories"
)

const (
	metricNamespace = "github.com/atelier-gallery/api/internal/services"

	attributionSkipArtworkMissing = "artwork_missing"
	attributionSkipArtistMissing  = "artist_missing"
	attributionSkipArtistInactive = "artist_inactive"
	attributionSkipLookupFailed   = "lookup_failed"
	attributionSkipIncrementError = "increment_failed"

	defaultAttributionTimeout = 30 * time.Second
)

// ShouldAttributeSales reports whether moving an order from prev to next is the transition that
// newly satisfies "delivered and paid". The SalesAttributedAt marker keeps a paid, refunded,
// paid-again order from crediting artists twice.
func ShouldAttributeSales(prev, next Order) bool {
	return next.Status == domain.OrderStatusDelivered &&
		next.PaymentStatus == domain.PaymentStatusPaid &&
		prev.PaymentStatus != domain.PaymentStatusPaid &&
		prev.SalesAttributedAt == nil
}

// AttributionResult summarises one attribution pass.
type AttributionResult struct {
	Credited int
	Skipped  int
}

// SalesAttributorDeps bundles collaborators for the attributor. Cache is optional; when set,
// cached top-artist rankings are dropped after a pass credits any line.
type SalesAttributorDeps struct {
	Artworks repositories.ArtworkRepository
	Artists  repositories.ArtistRepository
	Cache    ListCache
	Meter    metric.Meter
	Timeout  time.Duration
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// SalesAttributor credits artists for the lines of a delivered and paid order.
type SalesAttributor struct {
	artworks repositories.ArtworkRepository
	artists  repositories.ArtistRepository
	cache    ListCache
	timeout  time.Duration
	logger   func(context.Context, string, map[string]any)

	credited        metric.Int64Counter
	creditedEnabled bool
	skipped         metric.Int64Counter
	skippedEnabled  bool
}

// NewSalesAttributor validates dependencies and registers the attribution counters.
func NewSalesAttributor(deps SalesAttributorDeps) (*SalesAttributor, error) {
	if deps.Artworks == nil {
		return nil, errors.New("sales attributor: artwork repository is required")
	}
	if deps.Artists == nil {
		return nil, errors.New("sales attributor: artist repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultAttributionTimeout
	}

	credited, creditedErr := meter.Int64Counter(
		"orders.attribution.credited",
		metric.WithDescription("Order lines credited to artist sales statistics"),
	)
	skipped, skippedErr := meter.Int64Counter(
		"orders.attribution.skipped",
		metric.WithDescription("Order lines skipped during sales attribution, by reason"),
	)

	return &SalesAttributor{
		artworks:        deps.Artworks,
		artists:         deps.Artists,
		cache:           deps.Cache,
		timeout:         timeout,
		logger:          logger,
		credited:        credited,
		creditedEnabled: creditedErr == nil,
		skipped:         skipped,
		skippedEnabled:  skippedErr == nil,
	}, nil
}

// Attribute walks the order lines, resolving artwork then artist, and increments the artist's
// counters by quantity and line revenue. Lines that cannot be resolved are skipped and
// reported; a failing line never stops the remaining ones. The pass runs detached from
// the caller's cancellation because the order has already been marked as attributed.
func (a *SalesAttributor) Attribute(ctx context.Context, order Order) AttributionResult {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	var result AttributionResult
	for idx, line := range order.Items {
		reason, err := a.creditLine(runCtx, line)
		if reason == "" {
			result.Credited++
			if a.creditedEnabled {
				a.credited.Add(runCtx, 1)
			}
			continue
		}

		result.Skipped++
		if a.skippedEnabled {
			a.skipped.Add(runCtx, 1, metric.WithAttributes(attribute.String("reason", reason)))
		}
		fields := map[string]any{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
			"line":        idx,
			"artworkId":   line.ArtworkID,
			"reason":      reason,
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		a.logger(ctx, "order.attribution.line_skipped", fields)
	}

	if result.Credited > 0 && a.cache != nil {
		if err := a.cache.Invalidate(runCtx, cacheTopArtistsPrefix); err != nil {
			a.logger(ctx, "order.attribution.cache_invalidate_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}

	a.logger(ctx, "order.attribution.completed", map[string]any{
		"orderId":  order.ID,
		"credited": result.Credited,
		"skipped":  result.Skipped,
	})
	return result
}

func (a *SalesAttributor) creditLine(ctx context.Context, line OrderLineItem) (string, error) {
	artwork, err := a.artworks.FindByID(ctx, line.ArtworkID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return attributionSkipArtworkMissing, nil
		}
		return attributionSkipLookupFailed, err
	}

	artist, err := a.artists.FindByID(ctx, artwork.ArtistID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return attributionSkipArtistMissing, nil
		}
		return attributionSkipLookupFailed, err
	}
	if !artist.IsActive {
		return attributionSkipArtistInactive, nil
	}

	delta := domain.ArtistStatsDelta{
		Sales:   int64(line.Quantity),
		Revenue: line.UnitPrice * int64(line.Quantity),
	}
	if err := a.artists.IncrementStats(ctx, artist.ID, delta); err != nil {
		return attributionSkipIncrementError, err
	}
	return "", nil
}
