package api

import (
	"encoding/json"
	"net/http"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/discount"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/pricing"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type Handlers struct {
	products *product.Service
	carts    *cart.Service
	discount *discount.Selector
	checkout *checkout.Service
	orders   *order.Service
	pricing  pricing.Config
	log      zerolog.Logger
}

func NewHandlers(
	products *product.Service,
	carts *cart.Service,
	selector *discount.Selector,
	checkoutSvc *checkout.Service,
	orders *order.Service,
	cfg pricing.Config,
) *Handlers {
	return &Handlers{
		products: products,
		carts:    carts,
		discount: selector,
		checkout: checkoutSvc,
		orders:   orders,
		pricing:  cfg,
		log:      logging.For("api"),
	}
}

// quantityInput accepts a JSON number or string and keeps its raw text, so
// that validation happens in one place.
type quantityInput string

func (q *quantityInput) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*q = quantityInput(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*q = quantityInput(n.String())
	return nil
}

type lineRequest struct {
	ProductID string        `json:"product_id"`
	Quantity  quantityInput `json:"quantity"`
}

// Product Handlers

func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Cart Handlers

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, r, http.StatusOK)
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	qty, err := cart.ParseQuantity(string(req.Quantity))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	owner := middleware.OwnerFromContext(r.Context())
	if err := h.carts.Lines(owner).Add(r.Context(), req.ProductID, qty); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusOK)
}

func (h *Handlers) UpdateCartLine(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	qty, err := cart.ParseQuantity(string(req.Quantity))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	owner := middleware.OwnerFromContext(r.Context())
	if err := h.carts.Lines(owner).Update(r.Context(), chi.URLParam(r, "productID"), qty); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusOK)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerFromContext(r.Context())
	if err := h.carts.Lines(owner).Remove(r.Context(), chi.URLParam(r, "productID")); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerFromContext(r.Context())
	if err := h.carts.Lines(owner).Clear(r.Context()); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	// nothing is stored unless the cart can be priced
	owner := middleware.OwnerFromContext(r.Context())
	sel, err := h.discount.Resolve(r.Context(), req.Code)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	view, err := h.carts.View(r.Context(), owner, sel, h.pricing)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	if err := h.discount.Keep(r.Context(), owner.SessionKey(), *sel); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerFromContext(r.Context())
	if err := h.discount.Clear(r.Context(), owner.SessionKey()); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) respondCart(w http.ResponseWriter, r *http.Request, status int) {
	owner := middleware.OwnerFromContext(r.Context())
	sel, err := h.discount.Selected(r.Context(), owner.SessionKey())
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	view, err := h.carts.View(r.Context(), owner, sel, h.pricing)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, status, view)
}

// Named Cart Handlers

func (h *Handlers) ListCarts(w http.ResponseWriter, r *http.Request) {
	carts, err := h.carts.ListCarts(r.Context(), middleware.OwnerFromContext(r.Context()))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, carts)
}

func (h *Handlers) CreateCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.carts.CreateCart(r.Context(), middleware.OwnerFromContext(r.Context()), req.Name)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *Handlers) SelectCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.SelectCart(r.Context(), middleware.OwnerFromContext(r.Context()), chi.URLParam(r, "cartID"))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// Order Handlers

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.checkout.Checkout(r.Context(), middleware.OwnerFromContext(r.Context()))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+receipt.Order.ID)
	respondJSON(w, http.StatusCreated, receipt)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.History(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.orders.Detail(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "orderID"))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, receipt)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}
