package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/model"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// InsufficientStockError identifies the product whose stock could not cover a request.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Check fails when requested exceeds the product's stock as loaded.
func Check(p *model.Product, requested int) error {
	if requested > p.Stock {
		return &InsufficientStockError{ProductID: p.ID, Requested: requested, Available: p.Stock}
	}
	return nil
}

// CheckAdditional fails when more units on top of held would exceed the
// product's stock, and returns the combined quantity otherwise. The comparison
// cannot overflow for any non-negative held and more.
func CheckAdditional(p *model.Product, held, more int) (int, error) {
	if more > p.Stock-held {
		requested := held + more
		if requested < held {
			requested = math.MaxInt
		}
		return 0, &InsufficientStockError{ProductID: p.ID, Requested: requested, Available: p.Stock}
	}
	return held + more, nil
}

// Ledger guards product stock. Stock is only ever reduced through TryDecrement.
type Ledger struct {
	store store.Queries
}

// NewLedger binds a ledger to a store or to an open transaction.
func NewLedger(q store.Queries) *Ledger {
	return &Ledger{store: q}
}

// TryDecrement removes amount units only if at least amount are in stock. It
// reports false, with nothing changed, otherwise.
func (l *Ledger) TryDecrement(ctx context.Context, productID string, amount int) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidQuantity
	}
	ok, err := l.store.DecrementStock(ctx, productID, amount)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock of %s: %w", productID, err)
	}
	return ok, nil
}

// Deduct is TryDecrement returning an *InsufficientStockError on failure.
func (l *Ledger) Deduct(ctx context.Context, productID string, amount int) error {
	ok, err := l.TryDecrement(ctx, productID, amount)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	available := 0
	p, err := l.store.GetProduct(ctx, productID)
	switch {
	case err == nil:
		available = p.Stock
	case errors.Is(err, store.ErrNotFound):
		return product.ErrProductNotFound
	default:
		return fmt.Errorf("failed to load product %s: %w", productID, err)
	}
	return &InsufficientStockError{ProductID: productID, Requested: amount, Available: available}
}

func (l *Ledger) Restock(ctx context.Context, productID string, amount int) error {
	if amount <= 0 {
		return ErrInvalidQuantity
	}
	err := l.store.IncrementStock(ctx, productID, amount)
	if errors.Is(err, store.ErrNotFound) {
		return product.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to restock %s: %w", productID, err)
	}
	return nil
}

func (l *Ledger) Available(ctx context.Context, productID string) (int, error) {
	p, err := product.NewService(l.store).Get(ctx, productID)
	if err != nil {
		return 0, err
	}
	return p.Stock, nil
}
