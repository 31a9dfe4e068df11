package cart

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/example/ec-checkout/internal/domain/pricing"
	"github.com/example/ec-checkout/internal/model"
	"github.com/shopspring/decimal"
)

const DefaultCartName = "Cart"

var (
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrNoActiveCart    = errors.New("no active cart")
	ErrNotIdentified   = errors.New("owner is not identified")
	ErrCartNotFound    = errors.New("cart not found")
	ErrInvalidName     = errors.New("cart name is required")
)

// Owner is whoever a request acts for. ID is empty for anonymous visitors, who
// are tracked by SessionToken alone.
type Owner struct {
	ID           string
	SessionToken string
	Email        string
}

func (o Owner) Identified() bool {
	return o.ID != ""
}

// SessionKey is the key of the owner's session state. Identified owners share
// it across devices.
func (o Owner) SessionKey() string {
	if o.Identified() {
		return "user:" + o.ID
	}
	return "anon:" + o.SessionToken
}

// ParseQuantity parses user input into a quantity of at least one.
func ParseQuantity(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, ErrInvalidQuantity
	}
	return n, nil
}

func validateQuantity(quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	return nil
}

// Line is a cart line joined with the live catalog product.
type Line struct {
	Product  *model.Product `json:"product"`
	Quantity int            `json:"quantity"`
}

func (l Line) Total() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// PricingItems prices lines at the live product price.
func PricingItems(lines []Line) []pricing.Item {
	items := make([]pricing.Item, 0, len(lines))
	for _, l := range lines {
		items = append(items, pricing.Item{UnitPrice: l.Product.Price, Quantity: l.Quantity})
	}
	return items
}

// Lines is the cart capability shared by persisted and ephemeral carts.
type Lines interface {
	// Add increases the line's quantity by quantity, creating it if needed.
	Add(ctx context.Context, productID string, quantity int) error
	// Update sets the line's quantity, creating it if needed.
	Update(ctx context.Context, productID string, quantity int) error
	// Remove deletes the line. Removing an absent line succeeds.
	Remove(ctx context.Context, productID string) error
	// List returns lines in insertion order.
	List(ctx context.Context) ([]Line, error)
	// Clear deletes every line; the cart itself stays.
	Clear(ctx context.Context) error
	// Close empties the cart after it became an order. Persisted carts are
	// also deactivated.
	Close(ctx context.Context) error
}
