package domain

// PricingBreakdown captures the aggregated monetary results of pricing a set of order lines.
type PricingBreakdown struct {
	Currency string
	Subtotal int64
	Tax      int64
	Shipping int64
	Total    int64
	Items    []ItemPricingBreakdown
}

// ItemPricingBreakdown stores the per-line pricing outputs after running the engine.
type ItemPricingBreakdown struct {
	ItemID    string
	UnitPrice int64
	Quantity  int
	Subtotal  int64
}

// Totals projects the breakdown onto the persisted order totals.
func (p PricingBreakdown) Totals() OrderTotals {
	return OrderTotals{
		Subtotal: p.Subtotal,
		Tax:      p.Tax,
		Shipping: p.Shipping,
		Total:    p.Total,
	}
}
