package api

import (
	"errors"
	"net/http"

	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/discount"
	"github.com/example/ec-checkout/internal/domain/inventory"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	ProductID string `json:"product_id,omitempty"`
}

var errorKinds = []struct {
	err    error
	status int
	kind   string
}{
	{cart.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{inventory.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{inventory.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{cart.ErrNoActiveCart, http.StatusNotFound, "no_active_cart"},
	{checkout.ErrEmptyCart, http.StatusUnprocessableEntity, "empty_cart"},
	{discount.ErrInvalidDiscountCode, http.StatusNotFound, "invalid_discount_code"},
	{discount.ErrExpiredOrExhausted, http.StatusUnprocessableEntity, "expired_or_exhausted_discount"},
	{cart.ErrNotIdentified, http.StatusUnauthorized, "not_identified"},
	{order.ErrNotIdentified, http.StatusUnauthorized, "not_identified"},
	{cart.ErrInvalidName, http.StatusBadRequest, "invalid_request"},
	{product.ErrProductNotFound, http.StatusNotFound, "not_found"},
	{cart.ErrCartNotFound, http.StatusNotFound, "not_found"},
	{order.ErrOrderNotFound, http.StatusNotFound, "not_found"},
}

// respondDomainError maps err to its status and error kind. Unknown errors are
// logged and hidden behind a 500.
func (h *Handlers) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	for _, k := range errorKinds {
		if !errors.Is(err, k.err) {
			continue
		}
		resp := ErrorResponse{Error: k.kind, Message: err.Error()}
		var stockErr *inventory.InsufficientStockError
		if errors.As(err, &stockErr) {
			resp.ProductID = stockErr.ProductID
		}
		respondJSON(w, k.status, resp)
		return
	}

	h.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func respondError(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, ErrorResponse{Error: kind, Message: message})
}
