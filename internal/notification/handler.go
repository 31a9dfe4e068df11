package notification

import (
	"context"
	"fmt"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/email"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/rs/zerolog"
)

// Mailer sends order confirmations.
type Mailer interface {
	SendOrderConfirmation(to string, c email.Confirmation) error
}

// Handler sends a confirmation for every OrderPlaced event.
type Handler struct {
	mailer Mailer
	log    zerolog.Logger
}

func NewHandler(mailer Mailer) *Handler {
	return &Handler{mailer: mailer, log: logging.For("notifier")}
}

// HandleEvent processes an event from Kafka. Other event types are ignored.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	placed, ok, err := order.DecodePlaced(value)
	if err != nil {
		return fmt.Errorf("failed to decode event %s: %w", key, err)
	}
	if !ok {
		return nil
	}
	return h.handleOrderPlaced(placed)
}

func (h *Handler) handleOrderPlaced(e order.OrderPlaced) error {
	log := h.log.With().Str("order_id", e.OrderID).Str("owner_id", e.OwnerID).Logger()
	if e.Email == "" {
		log.Info().Msg("no e-mail address on order, skipping confirmation")
		return nil
	}

	lines := make([]email.Line, len(e.Lines))
	for i, l := range e.Lines {
		name := l.ProductName
		if name == "" {
			name = l.ProductID
		}
		lines[i] = email.Line{Name: name, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}

	err := h.mailer.SendOrderConfirmation(e.Email, email.Confirmation{
		OrderID:        e.OrderID,
		Lines:          lines,
		Subtotal:       e.Subtotal,
		DiscountCode:   e.DiscountCode,
		DiscountAmount: e.DiscountAmount,
		TaxAmount:      e.TaxAmount,
		ShippingCost:   e.ShippingCost,
		Total:          e.Total,
	})
	if err != nil {
		return fmt.Errorf("failed to send confirmation for order %s: %w", e.OrderID, err)
	}

	log.Info().Str("to", e.Email).Msg("order confirmation sent")
	return nil
}
