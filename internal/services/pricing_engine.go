package services

import (
	"errors"
	"fmt"
	"math"
	"strings"

	domain "github.com/atelier-gallery/api/internal/domain"
)

// Fixed store policy. Amounts are minor units.
const (
	TaxRateBasisPoints    int64 = 800
	FreeShippingThreshold int64 = 10000
	FlatShippingFee       int64 = 1000
	DefaultCurrency             = "USD"

	basisPointsDenominator int64 = 10000
)

var (
	// ErrPricingInvalidInput signals negative prices, non-positive quantities or overflow.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingEmptyItems is returned when no lines are supplied; an order needs at least one.
	ErrPricingEmptyItems = errors.New("pricing: at least one line is required")
)

// PricingLine is one (unit price, quantity) pair fed to the engine.
type PricingLine struct {
	ItemID    string
	UnitPrice int64
	Quantity  int
}

// PricingEngine computes order totals. It holds no state and is safe for concurrent use.
type PricingEngine struct {
	currency string
}

// NewPricingEngine returns an engine stamping the given currency on breakdowns.
func NewPricingEngine(currency string) *PricingEngine {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	return &PricingEngine{currency: currency}
}

// Calculate prices the lines: subtotal, 8% tax rounded half up, flat shipping below the
// free-shipping threshold, and the total of the three.
func (e *PricingEngine) Calculate(lines []PricingLine) (PricingBreakdown, error) {
	if len(lines) == 0 {
		return PricingBreakdown{}, ErrPricingEmptyItems
	}

	items := make([]domain.ItemPricingBreakdown, 0, len(lines))
	var subtotal int64
	for i, line := range lines {
		if line.UnitPrice < 0 {
			return PricingBreakdown{}, fmt.Errorf("%w: line %d has negative unit price", ErrPricingInvalidInput, i)
		}
		if line.Quantity < 1 {
			return PricingBreakdown{}, fmt.Errorf("%w: line %d quantity must be at least 1", ErrPricingInvalidInput, i)
		}
		lineTotal, ok := mulInt64(line.UnitPrice, int64(line.Quantity))
		if !ok || subtotal > math.MaxInt64-lineTotal {
			return PricingBreakdown{}, fmt.Errorf("%w: amount overflow", ErrPricingInvalidInput)
		}
		subtotal += lineTotal
		items = append(items, domain.ItemPricingBreakdown{
			ItemID:    line.ItemID,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Subtotal:  lineTotal,
		})
	}

	tax, ok := taxFor(subtotal)
	if !ok {
		return PricingBreakdown{}, fmt.Errorf("%w: amount overflow", ErrPricingInvalidInput)
	}
	shipping := shippingFor(subtotal)

	return PricingBreakdown{
		Currency: e.currency,
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal + tax + shipping,
		Items:    items,
	}, nil
}

func taxFor(subtotal int64) (int64, bool) {
	scaled, ok := mulInt64(subtotal, TaxRateBasisPoints)
	if !ok {
		return 0, false
	}
	// round half up; subtotal is never negative here
	return (scaled + basisPointsDenominator/2) / basisPointsDenominator, true
}

func shippingFor(subtotal int64) int64 {
	if subtotal >= FreeShippingThreshold {
		return 0
	}
	return FlatShippingFee
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	product := a * b
	if product/b != a {
		return 0, false
	}
	return product, true
}
