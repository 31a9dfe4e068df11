package order

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const EventOrderPlaced = "OrderPlaced"

// Event is the envelope published on the order topic.
type Event struct {
	EventType string          `json:"event_type"`
	OrderID   string          `json:"order_id"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

type PlacedLine struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// OrderPlaced is emitted after a checkout commits.
type OrderPlaced struct {
	OrderID        string          `json:"order_id"`
	OwnerID        string          `json:"owner_id"`
	Email          string          `json:"email,omitempty"`
	Lines          []PlacedLine    `json:"lines"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountCode   string          `json:"discount_code,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	Total          decimal.Decimal `json:"total"`
	PlacedAt       time.Time       `json:"placed_at"`
}

// NewPlacedEvent wraps e in an envelope.
func NewPlacedEvent(e OrderPlaced) (Event, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventType: EventOrderPlaced,
		OrderID:   e.OrderID,
		Data:      data,
		Timestamp: e.PlacedAt,
	}, nil
}

// DecodePlaced unpacks an OrderPlaced payload. ok is false for other event types.
func DecodePlaced(value []byte) (placed OrderPlaced, ok bool, err error) {
	var ev Event
	if err := json.Unmarshal(value, &ev); err != nil {
		return OrderPlaced{}, false, err
	}
	if ev.EventType != EventOrderPlaced {
		return OrderPlaced{}, false, nil
	}
	if err := json.Unmarshal(ev.Data, &placed); err != nil {
		return OrderPlaced{}, false, err
	}
	return placed, true, nil
}
