package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/ec-checkout/internal/api"
	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/config"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/discount"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/kafka"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/example/ec-checkout/internal/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.ValidateJWT(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("database", cfg.DatabaseDriver).
		Str("sessions", cfg.SessionBackend).
		Strs("kafka", cfg.KafkaBrokers).
		Str("topic", cfg.KafkaTopic).
		Msg("starting checkout api")

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sessions, closeSessions, err := openSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	pricingCfg := cfg.Pricing()
	carts := cart.NewService(st, sessions)
	selector := discount.NewSelector(discount.NewValidator(st), sessions)
	checkoutSvc := checkout.NewService(st, carts, selector, pricingCfg)
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		checkoutSvc.WithPublisher(producer)
	} else {
		log.Warn().Msg("no kafka brokers configured, order events are not published")
	}

	handlers := api.NewHandlers(
		product.NewService(st),
		carts,
		selector,
		checkoutSvc,
		order.NewService(st),
		pricingCfg,
	)
	router := api.NewRouter(handlers, api.RouterConfig{
		Verifier:       auth.NewJWTService(cfg.JWTSecret, 15*time.Minute),
		SessionTTL:     cfg.SessionTTL,
		SecureCookies:  cfg.SecureCookies,
		RequestTimeout: cfg.RequestTimeout,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(cfg *config.Config) (store.Store, func(), error) {
	if cfg.DatabaseDriver == "memory" {
		log.Warn().Msg("using in-memory store, data is lost on exit")
		return store.NewMemoryStore(), func() {}, nil
	}

	s, err := store.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.DatabaseDriver, err)
	}
	log.Info().Str("driver", cfg.DatabaseDriver).Msg("connected to database")
	return s, func() { s.Close() }, nil
}

func openSessions(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	switch cfg.SessionBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return session.NewRedisStore(client, cfg.SessionTTL), func() { client.Close() }, nil
	case "dynamodb":
		client, err := session.NewDynamoDBClient(ctx, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create dynamodb client: %w", err)
		}
		return session.NewDynamoDBStore(client, cfg.DynamoDBSessionTable, cfg.SessionTTL), func() {}, nil
	case "memory":
		return session.NewMemoryStore(cfg.SessionTTL), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}
}
