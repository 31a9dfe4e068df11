package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. Stock is only reduced by checkout.
type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
}

// MarshalJSON renders the price with two decimal places.
func (p Product) MarshalJSON() ([]byte, error) {
	type product Product
	return json.Marshal(struct {
		product
		Price string `json:"price"`
	}{product(p), p.Price.StringFixed(2)})
}

// Cart is a named collection of lines owned by an identified user.
type Cart struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// CartLine is unique per (CartID, ProductID).
type CartLine struct {
	CartID    string `json:"cart_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// DiscountCode is a percentage reduction with optional expiry and usage limit.
type DiscountCode struct {
	Code       string          `json:"code"`
	Percent    decimal.Decimal `json:"percent"`
	Active     bool            `json:"active"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
	UsageLimit *int            `json:"usage_limit,omitempty"`
	TimesUsed  int             `json:"times_used"`
}

// IsValid reports whether the code can be used at now.
func (d *DiscountCode) IsValid(now time.Time) bool {
	if !d.Active {
		return false
	}
	if d.ExpiresAt != nil && now.After(*d.ExpiresAt) {
		return false
	}
	if d.UsageLimit != nil && d.TimesUsed >= *d.UsageLimit {
		return false
	}
	return true
}

// Order is written once by checkout and never updated.
type Order struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"owner_id"`
	CreatedAt      time.Time       `json:"created_at"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountCode   *string         `json:"discount_code,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	Total          decimal.Decimal `json:"total"`
}

// MarshalJSON renders money with two decimal places.
func (o Order) MarshalJSON() ([]byte, error) {
	type order Order
	return json.Marshal(struct {
		order
		Subtotal       string `json:"subtotal"`
		DiscountAmount string `json:"discount_amount"`
		TaxAmount      string `json:"tax_amount"`
		ShippingCost   string `json:"shipping_cost"`
		Total          string `json:"total"`
	}{
		order(o),
		o.Subtotal.StringFixed(2),
		o.DiscountAmount.StringFixed(2),
		o.TaxAmount.StringFixed(2),
		o.ShippingCost.StringFixed(2),
		o.Total.StringFixed(2),
	})
}

// OrderLine freezes the unit price at the moment of purchase.
type OrderLine struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id"`
	ProductID       string          `json:"product_id"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

func (l OrderLine) MarshalJSON() ([]byte, error) {
	type orderLine OrderLine
	return json.Marshal(struct {
		orderLine
		PriceAtPurchase string `json:"price_at_purchase"`
	}{orderLine(l), l.PriceAtPurchase.StringFixed(2)})
}

// LineTotal returns quantity times the frozen unit price.
func (l *OrderLine) LineTotal() decimal.Decimal {
	return l.PriceAtPurchase.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
