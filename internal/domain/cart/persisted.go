package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-checkout/internal/domain/inventory"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/model"
	"github.com/google/uuid"
)

type txFunc func(ctx context.Context, fn func(q store.Queries) error) error

// persistedLines stores lines of the owner's active cart. Mutations take the
// owner lock inside a transaction.
type persistedLines struct {
	q       store.Queries
	inTx    txFunc
	ownerID string
}

func (p *persistedLines) activeCart(ctx context.Context, q store.Queries) (*model.Cart, error) {
	c, err := q.GetActiveCart(ctx, p.ownerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoActiveCart
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active cart: %w", err)
	}
	return c, nil
}

// activeOrNewCart returns the active cart, creating a default one for owners
// who have none active.
func (p *persistedLines) activeOrNewCart(ctx context.Context, q store.Queries) (*model.Cart, error) {
	c, err := p.activeCart(ctx, q)
	if !errors.Is(err, ErrNoActiveCart) {
		return c, err
	}
	c = &model.Cart{
		ID:        uuid.New().String(),
		OwnerID:   p.ownerID,
		Name:      DefaultCartName,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := q.CreateCart(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return c, nil
}

// setQuantity writes the line after checking stock. add selects additive semantics.
func (p *persistedLines) setQuantity(ctx context.Context, productID string, quantity int, add bool) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}

	return p.inTx(ctx, func(q store.Queries) error {
		if err := q.LockOwner(ctx, p.ownerID); err != nil {
			return fmt.Errorf("failed to lock owner: %w", err)
		}
		prod, err := product.NewService(q).Get(ctx, productID)
		if err != nil {
			return err
		}
		c, err := p.activeOrNewCart(ctx, q)
		if err != nil {
			return err
		}

		held := 0
		if add {
			existing, err := q.GetCartLine(ctx, c.ID, productID)
			switch {
			case err == nil:
				held = existing.Quantity
			case !errors.Is(err, store.ErrNotFound):
				return fmt.Errorf("failed to load cart line: %w", err)
			}
		}
		newQty, err := inventory.CheckAdditional(prod, held, quantity)
		if err != nil {
			return err
		}

		return q.UpsertCartLine(ctx, &model.CartLine{CartID: c.ID, ProductID: productID, Quantity: newQty})
	})
}

func (p *persistedLines) Add(ctx context.Context, productID string, quantity int) error {
	return p.setQuantity(ctx, productID, quantity, true)
}

func (p *persistedLines) Update(ctx context.Context, productID string, quantity int) error {
	return p.setQuantity(ctx, productID, quantity, false)
}

func (p *persistedLines) Remove(ctx context.Context, productID string) error {
	return p.inTx(ctx, func(q store.Queries) error {
		c, err := p.activeCart(ctx, q)
		if errors.Is(err, ErrNoActiveCart) {
			return nil
		}
		if err != nil {
			return err
		}
		return q.DeleteCartLine(ctx, c.ID, productID)
	})
}

func (p *persistedLines) List(ctx context.Context) ([]Line, error) {
	c, err := p.activeCart(ctx, p.q)
	if err != nil {
		return nil, err
	}
	return p.linesOf(ctx, c)
}

// linesOf lists the lines of c, which the caller already loaded.
func (p *persistedLines) linesOf(ctx context.Context, c *model.Cart) ([]Line, error) {
	stored, err := p.q.ListCartLines(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart lines: %w", err)
	}

	catalog := product.NewService(p.q)
	lines := make([]Line, 0, len(stored))
	for _, l := range stored {
		prod, err := catalog.Get(ctx, l.ProductID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, Line{Product: prod, Quantity: l.Quantity})
	}
	return lines, nil
}

func (p *persistedLines) Clear(ctx context.Context) error {
	return p.inTx(ctx, func(q store.Queries) error {
		c, err := p.activeCart(ctx, q)
		if errors.Is(err, ErrNoActiveCart) {
			return nil
		}
		if err != nil {
			return err
		}
		return q.DeleteCartLines(ctx, c.ID)
	})
}

func (p *persistedLines) Close(ctx context.Context) error {
	return p.inTx(ctx, func(q store.Queries) error {
		c, err := p.activeCart(ctx, q)
		if err != nil {
			return err
		}
		if err := q.DeleteCartLines(ctx, c.ID); err != nil {
			return fmt.Errorf("failed to delete cart lines: %w", err)
		}
		if err := q.SetCartActive(ctx, c.ID, false); err != nil {
			return fmt.Errorf("failed to deactivate cart: %w", err)
		}
		return nil
	})
}
