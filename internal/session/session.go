package session

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrConflict = errors.New("session was modified concurrently")

// maxUpdateAttempts bounds optimistic retries of UpdateItems.
const maxUpdateAttempts = 5

// Item is one ephemeral cart line. Only the product and quantity are kept; the
// price is always read from the catalog.
type Item struct {
	ProductID string `json:"product_id" dynamodbav:"product_id"`
	Quantity  int    `json:"quantity" dynamodbav:"quantity"`
}

// Discount is the code selected for a session, with its percent at selection time.
type Discount struct {
	Code    string          `json:"code"`
	Percent decimal.Decimal `json:"percent"`
}

// Store holds per-session state: ephemeral cart items in insertion order and the
// selected discount. Keys are opaque strings chosen by the caller.
type Store interface {
	Items(ctx context.Context, key string) ([]Item, error)
	// UpdateItems applies fn to the current items atomically with respect to
	// other updates of the same key. An error from fn aborts without writing.
	UpdateItems(ctx context.Context, key string, fn func(items []Item) ([]Item, error)) error
	ClearItems(ctx context.Context, key string) error

	// Discount returns nil when no code is selected.
	Discount(ctx context.Context, key string) (*Discount, error)
	SetDiscount(ctx context.Context, key string, d Discount) error
	ClearDiscount(ctx context.Context, key string) error
}

func cloneItems(items []Item) []Item {
	if len(items) == 0 {
		return nil
	}
	return append([]Item(nil), items...)
}
