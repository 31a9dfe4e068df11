package store

import (
	"context"
	"errors"

	"github.com/example/ec-checkout/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Queries is the persistence surface shared by a Store and an open transaction.
// Lookups return ErrNotFound when no row matches.
type Queries interface {
	// Products
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListProducts(ctx context.Context) ([]*model.Product, error)
	CreateProduct(ctx context.Context, p *model.Product) error
	// DecrementStock reduces stock by amount only if stock >= amount, as a single
	// conditional update. It reports whether the row was changed.
	DecrementStock(ctx context.Context, productID string, amount int) (bool, error)
	IncrementStock(ctx context.Context, productID string, amount int) error

	// Carts
	// LockOwner serializes cart mutations of one owner until the transaction ends.
	LockOwner(ctx context.Context, ownerID string) error
	GetCart(ctx context.Context, id string) (*model.Cart, error)
	GetActiveCart(ctx context.Context, ownerID string) (*model.Cart, error)
	ListCarts(ctx context.Context, ownerID string) ([]*model.Cart, error)
	CreateCart(ctx context.Context, c *model.Cart) error
	DeactivateCarts(ctx context.Context, ownerID string) error
	SetCartActive(ctx context.Context, cartID string, active bool) error

	// Cart lines, listed in insertion order
	GetCartLine(ctx context.Context, cartID, productID string) (*model.CartLine, error)
	ListCartLines(ctx context.Context, cartID string) ([]*model.CartLine, error)
	UpsertCartLine(ctx context.Context, line *model.CartLine) error
	DeleteCartLine(ctx context.Context, cartID, productID string) error
	DeleteCartLines(ctx context.Context, cartID string) error

	// Discount codes
	GetDiscountCode(ctx context.Context, code string) (*model.DiscountCode, error)
	CreateDiscountCode(ctx context.Context, d *model.DiscountCode) error
	// IncrementDiscountUsage adds one use only while times_used < usage_limit
	// (or no limit is set). It reports whether the row was changed.
	IncrementDiscountUsage(ctx context.Context, code string) (bool, error)

	// Orders
	CreateOrder(ctx context.Context, o *model.Order) error
	CreateOrderLine(ctx context.Context, l *model.OrderLine) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListOrders(ctx context.Context, ownerID string) ([]*model.Order, error)
	ListOrderLines(ctx context.Context, orderID string) ([]*model.OrderLine, error)
}

// Store is the injected persistence dependency.
type Store interface {
	Queries
	// WithTx runs fn inside one transaction. A non-nil error from fn rolls back
	// every write made through tx.
	WithTx(ctx context.Context, fn func(tx Queries) error) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
)
