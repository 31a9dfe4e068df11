package cart

import (
	"context"
	"fmt"

	"github.com/example/ec-checkout/internal/domain/inventory"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/session"
)

// ephemeralLines keeps an anonymous visitor's lines in session state. Only
// quantities are stored; products are read from the catalog on every List.
type ephemeralLines struct {
	sessions session.Store
	catalog  *product.Service
	key      string
}

func (e *ephemeralLines) setQuantity(ctx context.Context, productID string, quantity int, add bool) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}

	return e.sessions.UpdateItems(ctx, e.key, func(items []session.Item) ([]session.Item, error) {
		prod, err := e.catalog.Get(ctx, productID)
		if err != nil {
			return nil, err
		}

		idx := -1
		for i := range items {
			if items[i].ProductID == productID {
				idx = i
				break
			}
		}

		held := 0
		if add && idx >= 0 {
			held = items[idx].Quantity
		}
		newQty, err := inventory.CheckAdditional(prod, held, quantity)
		if err != nil {
			return nil, err
		}

		if idx >= 0 {
			items[idx].Quantity = newQty
			return items, nil
		}
		return append(items, session.Item{ProductID: productID, Quantity: newQty}), nil
	})
}

func (e *ephemeralLines) Add(ctx context.Context, productID string, quantity int) error {
	return e.setQuantity(ctx, productID, quantity, true)
}

func (e *ephemeralLines) Update(ctx context.Context, productID string, quantity int) error {
	return e.setQuantity(ctx, productID, quantity, false)
}

func (e *ephemeralLines) Remove(ctx context.Context, productID string) error {
	return e.sessions.UpdateItems(ctx, e.key, func(items []session.Item) ([]session.Item, error) {
		kept := items[:0]
		for _, item := range items {
			if item.ProductID != productID {
				kept = append(kept, item)
			}
		}
		return kept, nil
	})
}

func (e *ephemeralLines) List(ctx context.Context) ([]Line, error) {
	items, err := e.sessions.Items(ctx, e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load session cart: %w", err)
	}

	lines := make([]Line, 0, len(items))
	for _, item := range items {
		prod, err := e.catalog.Get(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, Line{Product: prod, Quantity: item.Quantity})
	}
	return lines, nil
}

func (e *ephemeralLines) Clear(ctx context.Context) error {
	if err := e.sessions.ClearItems(ctx, e.key); err != nil {
		return fmt.Errorf("failed to clear session cart: %w", err)
	}
	return nil
}

func (e *ephemeralLines) Close(ctx context.Context) error {
	return e.Clear(ctx)
}
