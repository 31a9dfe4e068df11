package pricing

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Config holds the pricing constants. It is passed by value so nothing prices
// against process-wide state.
type Config struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	FlatShippingRate      decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		TaxRate:               decimal.RequireFromString("0.10"),
		FreeShippingThreshold: decimal.RequireFromString("100.00"),
		FlatShippingRate:      decimal.RequireFromString("10.00"),
	}
}

// Item is one priced line: a unit price and a quantity.
type Item struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

func (i Item) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Summary struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	DiscountPercent    decimal.Decimal `json:"discount_percent"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	PriceAfterDiscount decimal.Decimal `json:"price_after_discount"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	ShippingCost       decimal.Decimal `json:"shipping_cost"`
	FinalTotal         decimal.Decimal `json:"final_total"`
}

// MarshalJSON renders money amounts with two decimal places. The discount
// percent keeps its own scale.
func (s Summary) MarshalJSON() ([]byte, error) {
	type summary Summary
	return json.Marshal(struct {
		summary
		Subtotal           string `json:"subtotal"`
		DiscountAmount     string `json:"discount_amount"`
		PriceAfterDiscount string `json:"price_after_discount"`
		TaxAmount          string `json:"tax_amount"`
		ShippingCost       string `json:"shipping_cost"`
		FinalTotal         string `json:"final_total"`
	}{
		summary(s),
		s.Subtotal.StringFixed(2),
		s.DiscountAmount.StringFixed(2),
		s.PriceAfterDiscount.StringFixed(2),
		s.TaxAmount.StringFixed(2),
		s.ShippingCost.StringFixed(2),
		s.FinalTotal.StringFixed(2),
	})
}

// Price computes the full breakdown for items with an optional discount percent
// (zero for none). Line totals are exact; rounding to cents happens once per
// derived amount, half away from zero.
func Price(cfg Config, items []Item, discountPercent decimal.Decimal) Summary {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Total())
	}
	subtotal = subtotal.Round(2)

	discount := subtotal.Mul(discountPercent).Div(decimal.NewFromInt(100)).Round(2)
	afterDiscount := subtotal.Sub(discount)
	tax := afterDiscount.Mul(cfg.TaxRate).Round(2)

	shipping := cfg.FlatShippingRate
	if afterDiscount.GreaterThanOrEqual(cfg.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	return Summary{
		Subtotal:           subtotal,
		DiscountPercent:    discountPercent,
		DiscountAmount:     discount,
		PriceAfterDiscount: afterDiscount,
		TaxAmount:          tax,
		ShippingCost:       shipping,
		FinalTotal:         afterDiscount.Add(tax).Add(shipping),
	}
}
