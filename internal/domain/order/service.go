package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/model"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrNotIdentified = errors.New("order history requires an identified owner")
)

// Receipt is an order together with its frozen lines.
type Receipt struct {
	Order *model.Order       `json:"order"`
	Lines []*model.OrderLine `json:"lines"`
}

// Service reads placed orders. Orders are written only by checkout.
type Service struct {
	store store.Queries
}

func NewService(q store.Queries) *Service {
	return &Service{store: q}
}

// History lists the owner's orders, newest first.
func (s *Service) History(ctx context.Context, ownerID string) ([]*model.Order, error) {
	if ownerID == "" {
		return nil, ErrNotIdentified
	}
	orders, err := s.store.ListOrders(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// Detail returns one of the owner's orders. Orders of other owners are
// reported as not found.
func (s *Service) Detail(ctx context.Context, ownerID, orderID string) (*Receipt, error) {
	if ownerID == "" {
		return nil, ErrNotIdentified
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && o.OwnerID != ownerID) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	lines, err := s.store.ListOrderLines(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order lines: %w", err)
	}
	return &Receipt{Order: o, Lines: lines}, nil
}
