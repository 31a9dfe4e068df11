package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/discount"
	"github.com/example/ec-checkout/internal/domain/inventory"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/pricing"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/example/ec-checkout/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var ErrEmptyCart = errors.New("cart is empty")

type State string

const (
	StatePending    State = "pending"
	StateValidating State = "validating"
	StateCommitting State = "committing"
	StateCommitted  State = "committed"
	StateFailed     State = "failed"
)

// Publisher delivers order events after commit.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Service turns an owner's active cart into an order in one store transaction.
type Service struct {
	store     store.Store
	carts     *cart.Service
	selector  *discount.Selector
	pricing   pricing.Config
	publisher Publisher
	now       func() time.Time
	log       zerolog.Logger
}

func NewService(s store.Store, carts *cart.Service, selector *discount.Selector, cfg pricing.Config) *Service {
	return &Service{
		store:    s,
		carts:    carts,
		selector: selector,
		pricing:  cfg,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logging.For("checkout"),
	}
}

// WithPublisher sends OrderPlaced events through p after each commit.
func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// attempt tracks the state of one checkout for logging.
type attempt struct {
	state State
	log   zerolog.Logger
}

func (a *attempt) enter(state State) {
	a.log.Info().Str("from", string(a.state)).Str("to", string(state)).Msg("checkout state")
	a.state = state
}

func (a *attempt) fail(err error) error {
	a.log.Warn().Err(err).Str("from", string(a.state)).Msg("checkout failed")
	a.state = StateFailed
	return err
}

// Checkout places an order from the owner's active cart and its selected
// discount. Prices, stock and the discount are all re-read inside the
// transaction; any failure leaves no order, stock change or usage change behind.
func (s *Service) Checkout(ctx context.Context, owner cart.Owner) (*order.Receipt, error) {
	a := &attempt{state: StatePending, log: s.log.With().Str("owner_id", owner.ID).Logger()}

	a.enter(StateValidating)
	if !owner.Identified() {
		return nil, a.fail(cart.ErrNotIdentified)
	}
	sel, err := s.selector.Selected(ctx, owner.SessionKey())
	if err != nil {
		return nil, a.fail(err)
	}

	var (
		receipt *order.Receipt
		placed  order.OrderPlaced
	)
	err = s.store.WithTx(ctx, func(tx store.Queries) error {
		if err := tx.LockOwner(ctx, owner.ID); err != nil {
			return fmt.Errorf("failed to lock owner: %w", err)
		}
		lines := s.carts.LinesTx(tx, owner)
		items, err := lines.List(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		validator := discount.NewValidator(tx).WithClock(s.now)
		var code *model.DiscountCode
		percent := decimal.Zero
		if sel != nil {
			if code, err = validator.Validate(ctx, sel.Code); err != nil {
				return err
			}
			percent = code.Percent
		}
		for _, l := range items {
			if err := inventory.Check(l.Product, l.Quantity); err != nil {
				return err
			}
		}

		a.enter(StateCommitting)
		summary := pricing.Price(s.pricing, cart.PricingItems(items), percent)
		o := &model.Order{
			ID:             uuid.New().String(),
			OwnerID:        owner.ID,
			CreatedAt:      s.now(),
			Subtotal:       summary.Subtotal,
			DiscountAmount: summary.DiscountAmount,
			TaxAmount:      summary.TaxAmount,
			ShippingCost:   summary.ShippingCost,
			Total:          summary.FinalTotal,
		}
		if code != nil {
			o.DiscountCode = &code.Code
		}
		a.log = a.log.With().Str("order_id", o.ID).Logger()
		if err := tx.CreateOrder(ctx, o); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		orderLines := make([]*model.OrderLine, 0, len(items))
		placedLines := make([]order.PlacedLine, 0, len(items))
		for _, l := range items {
			ol := &model.OrderLine{
				ID:              uuid.New().String(),
				OrderID:         o.ID,
				ProductID:       l.Product.ID,
				Quantity:        l.Quantity,
				PriceAtPurchase: l.Product.Price,
			}
			if err := tx.CreateOrderLine(ctx, ol); err != nil {
				return fmt.Errorf("failed to create order line: %w", err)
			}
			orderLines = append(orderLines, ol)
			placedLines = append(placedLines, order.PlacedLine{
				ProductID:   l.Product.ID,
				ProductName: l.Product.Name,
				Quantity:    l.Quantity,
				UnitPrice:   l.Product.Price,
			})
		}

		ledger := inventory.NewLedger(tx)
		for _, l := range items {
			if err := ledger.Deduct(ctx, l.Product.ID, l.Quantity); err != nil {
				return err
			}
		}
		if code != nil {
			if _, err := validator.Redeem(ctx, code.Code); err != nil {
				return err
			}
		}
		if err := lines.Close(ctx); err != nil {
			return err
		}

		receipt = &order.Receipt{Order: o, Lines: orderLines}
		placed = order.OrderPlaced{
			OrderID:        o.ID,
			OwnerID:        o.OwnerID,
			Email:          owner.Email,
			Lines:          placedLines,
			Subtotal:       o.Subtotal,
			DiscountAmount: o.DiscountAmount,
			TaxAmount:      o.TaxAmount,
			ShippingCost:   o.ShippingCost,
			Total:          o.Total,
			PlacedAt:       o.CreatedAt,
		}
		if code != nil {
			placed.DiscountCode = code.Code
		}
		return nil
	})
	if err != nil {
		return nil, a.fail(err)
	}
	a.enter(StateCommitted)
	a.log.Info().Str("total", receipt.Order.Total.StringFixed(2)).Msg("order placed")

	// The order is committed; the steps below never undo it.
	if sel != nil {
		if err := s.selector.Clear(ctx, owner.SessionKey()); err != nil {
			a.log.Error().Err(err).Msg("failed to clear discount selection")
		}
	}
	s.publish(ctx, a.log, placed)
	return receipt, nil
}

func (s *Service) publish(ctx context.Context, log zerolog.Logger, placed order.OrderPlaced) {
	if s.publisher == nil {
		return
	}
	ev, err := order.NewPlacedEvent(placed)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode order event")
		return
	}
	if err := s.publisher.Publish(ctx, placed.OrderID, ev); err != nil {
		log.Error().Err(err).Msg("failed to publish order event")
	}
}
