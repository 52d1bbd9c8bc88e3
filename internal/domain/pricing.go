package domain

// PricingBreakdown decomposes an order's price into subtotal, shipping, tax
// and total, all in minor units of Currency.
type PricingBreakdown struct {
	Currency string
	Subtotal int64
	Shipping int64
	Tax      int64
	Total    int64
}

// IsZero reports whether the breakdown carries no monetary value.
func (b PricingBreakdown) IsZero() bool {
	return b.Subtotal == 0 && b.Shipping == 0 && b.Tax == 0 && b.Total == 0
}
