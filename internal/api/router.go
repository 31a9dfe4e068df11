package api

import (
	"net/http"
	"time"

	mw "github.com/example/ec-checkout/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Verifier       mw.TokenVerifier
	SessionTTL     time.Duration
	SecureCookies  bool
	RequestTimeout time.Duration
}

func NewRouter(h *Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.RequestLogger(h.log))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Session(cfg.SessionTTL, cfg.SecureCookies))
		r.Use(mw.OptionalAuth(cfg.Verifier))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/{productID}", h.GetProduct)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/items", h.AddToCart)
			r.Delete("/items", h.ClearCart)
			r.Put("/items/{productID}", h.UpdateCartLine)
			r.Delete("/items/{productID}", h.RemoveFromCart)
			r.Put("/discount", h.ApplyDiscount)
			r.Delete("/discount", h.RemoveDiscount)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuth(cfg.Verifier))

			r.Get("/carts", h.ListCarts)
			r.Post("/carts", h.CreateCart)
			r.Post("/carts/{cartID}/select", h.SelectCart)

			r.Post("/checkout", h.Checkout)

			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{orderID}", h.GetOrder)
		})
	})

	return r
}
