package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/example/ec-checkout/internal/config"
	"github.com/example/ec-checkout/internal/domain/discount"
	"github.com/example/ec-checkout/internal/domain/inventory"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// catalog is the seed file format.
type catalog struct {
	Products []struct {
		Name  string          `json:"name"`
		Price decimal.Decimal `json:"price"`
		Stock int             `json:"stock"`
	} `json:"products"`
	DiscountCodes []struct {
		Code       string          `json:"code"`
		Percent    decimal.Decimal `json:"percent"`
		ExpiresAt  *time.Time      `json:"expires_at"`
		UsageLimit *int            `json:"usage_limit"`
	} `json:"discount_codes"`
	Restock []struct {
		ProductID string `json:"product_id"`
		Amount    int    `json:"amount"`
	} `json:"restock"`
}

func main() {
	file := flag.String("file", "seed.json", "path of the catalog to load")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := seed(context.Background(), cfg, *file); err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
}

func seed(ctx context.Context, cfg *config.Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var c catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	s, err := store.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer s.Close()

	products := product.NewService(s)
	for _, p := range c.Products {
		created, err := products.Create(ctx, p.Name, p.Price, p.Stock)
		if err != nil {
			return fmt.Errorf("product %q: %w", p.Name, err)
		}
		log.Info().Str("id", created.ID).Str("name", created.Name).Msg("product created")
	}

	codes := discount.NewValidator(s)
	for _, d := range c.DiscountCodes {
		_, err := codes.Create(ctx, discount.CreateParams{
			Code:       d.Code,
			Percent:    d.Percent,
			ExpiresAt:  d.ExpiresAt,
			UsageLimit: d.UsageLimit,
		})
		if errors.Is(err, discount.ErrDuplicateCode) {
			log.Warn().Str("code", d.Code).Msg("discount code exists, skipped")
			continue
		}
		if err != nil {
			return fmt.Errorf("discount code %q: %w", d.Code, err)
		}
		log.Info().Str("code", d.Code).Msg("discount code created")
	}

	ledger := inventory.NewLedger(s)
	for _, r := range c.Restock {
		if err := ledger.Restock(ctx, r.ProductID, r.Amount); err != nil {
			return fmt.Errorf("restock %s: %w", r.ProductID, err)
		}
		log.Info().Str("product_id", r.ProductID).Int("amount", r.Amount).Msg("restocked")
	}
	return nil
}
