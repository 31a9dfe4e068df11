package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/model"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidDiscountCode = errors.New("invalid discount code")
	ErrExpiredOrExhausted  = errors.New("discount code expired or exhausted")
	ErrInvalidCode         = errors.New("code is required")
	ErrInvalidPercent      = errors.New("percent must be between 0 and 100")
	ErrInvalidUsageLimit   = errors.New("usage limit must not be negative")
	ErrDuplicateCode       = errors.New("discount code already exists")
)

var hundred = decimal.NewFromInt(100)

// Normalize trims and upper-cases a code; codes are matched case-insensitively.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validator looks up, validates and redeems discount codes.
type Validator struct {
	store store.Queries
	now   func() time.Time
}

// NewValidator binds a validator to a store or to an open transaction.
func NewValidator(q store.Queries) *Validator {
	return &Validator{store: q, now: time.Now}
}

// WithClock returns a copy of v that reads the time from now.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	c := *v
	c.now = now
	return &c
}

func (v *Validator) Lookup(ctx context.Context, code string) (*model.DiscountCode, error) {
	code = Normalize(code)
	if code == "" {
		return nil, ErrInvalidDiscountCode
	}
	d, err := v.store.GetDiscountCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidDiscountCode
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load discount code: %w", err)
	}
	return d, nil
}

// Validate returns the code if it exists and is currently usable.
func (v *Validator) Validate(ctx context.Context, code string) (*model.DiscountCode, error) {
	d, err := v.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if !d.IsValid(v.now()) {
		return nil, ErrExpiredOrExhausted
	}
	return d, nil
}

// Redeem validates the code and records one use. The usage increment is
// conditional on the limit, so concurrent redemptions never exceed it.
func (v *Validator) Redeem(ctx context.Context, code string) (*model.DiscountCode, error) {
	d, err := v.Validate(ctx, code)
	if err != nil {
		return nil, err
	}
	ok, err := v.store.IncrementDiscountUsage(ctx, d.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to record discount usage: %w", err)
	}
	if !ok {
		return nil, ErrExpiredOrExhausted
	}
	d.TimesUsed++
	return d, nil
}

type CreateParams struct {
	Code       string
	Percent    decimal.Decimal
	ExpiresAt  *time.Time
	UsageLimit *int
}

func (v *Validator) Create(ctx context.Context, p CreateParams) (*model.DiscountCode, error) {
	code := Normalize(p.Code)
	if code == "" {
		return nil, ErrInvalidCode
	}
	if p.Percent.IsNegative() || p.Percent.GreaterThan(hundred) {
		return nil, ErrInvalidPercent
	}
	if p.UsageLimit != nil && *p.UsageLimit < 0 {
		return nil, ErrInvalidUsageLimit
	}

	d := &model.DiscountCode{
		Code:       code,
		Percent:    p.Percent,
		Active:     true,
		ExpiresAt:  p.ExpiresAt,
		UsageLimit: p.UsageLimit,
	}
	err := v.store.CreateDiscountCode(ctx, d)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, ErrDuplicateCode
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create discount code: %w", err)
	}
	return d, nil
}
