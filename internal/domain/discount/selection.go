package discount

import (
	"context"
	"fmt"

	"github.com/example/ec-checkout/internal/session"
)

// Selector keeps the discount chosen by a session. Selection validates the
// code once; it is validated again only when an order uses it.
type Selector struct {
	validator *Validator
	sessions  session.Store
}

func NewSelector(v *Validator, sessions session.Store) *Selector {
	return &Selector{validator: v, sessions: sessions}
}

// Resolve validates code and returns the selection it would store.
func (s *Selector) Resolve(ctx context.Context, code string) (*session.Discount, error) {
	d, err := s.validator.Validate(ctx, code)
	if err != nil {
		return nil, err
	}
	return &session.Discount{Code: d.Code, Percent: d.Percent}, nil
}

// Keep stores sel for sessionKey, replacing any earlier selection.
func (s *Selector) Keep(ctx context.Context, sessionKey string, sel session.Discount) error {
	if err := s.sessions.SetDiscount(ctx, sessionKey, sel); err != nil {
		return fmt.Errorf("failed to store discount selection: %w", err)
	}
	return nil
}

// Select resolves code and keeps it for sessionKey.
func (s *Selector) Select(ctx context.Context, sessionKey, code string) (*session.Discount, error) {
	sel, err := s.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.Keep(ctx, sessionKey, *sel); err != nil {
		return nil, err
	}
	return sel, nil
}

// Selected returns the current selection, or nil.
func (s *Selector) Selected(ctx context.Context, sessionKey string) (*session.Discount, error) {
	d, err := s.sessions.Discount(ctx, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load discount selection: %w", err)
	}
	return d, nil
}

func (s *Selector) Clear(ctx context.Context, sessionKey string) error {
	if err := s.sessions.ClearDiscount(ctx, sessionKey); err != nil {
		return fmt.Errorf("failed to clear discount selection: %w", err)
	}
	return nil
}
