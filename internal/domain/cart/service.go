package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/ec-checkout/internal/domain/pricing"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/example/ec-checkout/internal/model"
	"github.com/example/ec-checkout/internal/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Service resolves the right cart backing for an owner and manages the named
// carts of identified owners.
type Service struct {
	store    store.Store
	sessions session.Store
	log      zerolog.Logger
}

func NewService(s store.Store, sessions session.Store) *Service {
	return &Service{store: s, sessions: sessions, log: logging.For("cart")}
}

// Lines returns the persisted cart of an identified owner or the session cart
// of an anonymous one.
func (s *Service) Lines(owner Owner) Lines {
	if owner.Identified() {
		return &persistedLines{q: s.store, inTx: s.store.WithTx, ownerID: owner.ID}
	}
	return s.ephemeral(s.store, owner)
}

// LinesTx is Lines bound to an open transaction; persisted mutations join it.
func (s *Service) LinesTx(tx store.Queries, owner Owner) Lines {
	if owner.Identified() {
		join := func(ctx context.Context, fn func(q store.Queries) error) error { return fn(tx) }
		return &persistedLines{q: tx, inTx: join, ownerID: owner.ID}
	}
	return s.ephemeral(tx, owner)
}

func (s *Service) ephemeral(q store.Queries, owner Owner) Lines {
	return &ephemeralLines{sessions: s.sessions, catalog: product.NewService(q), key: owner.SessionKey()}
}

// CreateCart creates a named cart and makes it the owner's only active cart.
func (s *Service) CreateCart(ctx context.Context, owner Owner, name string) (*model.Cart, error) {
	if !owner.Identified() {
		return nil, ErrNotIdentified
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	c := &model.Cart{
		ID:        uuid.New().String(),
		OwnerID:   owner.ID,
		Name:      name,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	err := s.store.WithTx(ctx, func(q store.Queries) error {
		if err := q.LockOwner(ctx, owner.ID); err != nil {
			return fmt.Errorf("failed to lock owner: %w", err)
		}
		if err := q.DeactivateCarts(ctx, owner.ID); err != nil {
			return fmt.Errorf("failed to deactivate carts: %w", err)
		}
		if err := q.CreateCart(ctx, c); err != nil {
			return fmt.Errorf("failed to create cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("owner_id", owner.ID).Str("cart_id", c.ID).Msg("cart created")
	return c, nil
}

// SelectCart makes cartID the owner's only active cart.
func (s *Service) SelectCart(ctx context.Context, owner Owner, cartID string) (*model.Cart, error) {
	if !owner.Identified() {
		return nil, ErrNotIdentified
	}

	var selected *model.Cart
	err := s.store.WithTx(ctx, func(q store.Queries) error {
		if err := q.LockOwner(ctx, owner.ID); err != nil {
			return fmt.Errorf("failed to lock owner: %w", err)
		}
		c, err := q.GetCart(ctx, cartID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && c.OwnerID != owner.ID) {
			return ErrCartNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load cart: %w", err)
		}
		if err := q.DeactivateCarts(ctx, owner.ID); err != nil {
			return fmt.Errorf("failed to deactivate carts: %w", err)
		}
		if err := q.SetCartActive(ctx, c.ID, true); err != nil {
			return fmt.Errorf("failed to activate cart: %w", err)
		}
		c.Active = true
		selected = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("owner_id", owner.ID).Str("cart_id", cartID).Msg("cart selected")
	return selected, nil
}

func (s *Service) ListCarts(ctx context.Context, owner Owner) ([]*model.Cart, error) {
	if !owner.Identified() {
		return nil, ErrNotIdentified
	}
	carts, err := s.store.ListCarts(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list carts: %w", err)
	}
	return carts, nil
}

// View is a priced cart as shown to its owner.
type View struct {
	Cart     *model.Cart       `json:"cart,omitempty"`
	Lines    []Line            `json:"lines"`
	Discount *session.Discount `json:"discount,omitempty"`
	Summary  pricing.Summary   `json:"summary"`
}

// View prices the owner's current lines with the given discount selection.
func (s *Service) View(ctx context.Context, owner Owner, discount *session.Discount, cfg pricing.Config) (*View, error) {
	v := &View{Discount: discount}
	if owner.Identified() {
		p := &persistedLines{q: s.store, inTx: s.store.WithTx, ownerID: owner.ID}
		c, err := p.activeCart(ctx, s.store)
		if err != nil {
			return nil, err
		}
		// lines of the cart loaded here, not of whichever cart is active later
		v.Cart = c
		if v.Lines, err = p.linesOf(ctx, c); err != nil {
			return nil, err
		}
	} else {
		lines, err := s.Lines(owner).List(ctx)
		if err != nil {
			return nil, err
		}
		v.Lines = lines
	}

	percent := decimal.Zero
	if discount != nil {
		percent = discount.Percent
	}
	v.Summary = pricing.Price(cfg, PricingItems(v.Lines), percent)
	return v, nil
}
