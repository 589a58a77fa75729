package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID         string    `bun:"order_id,pk" json:"order_id"`
	UserID          string    `bun:"user_id,notnull" json:"user_id"`
	EventID         string    `bun:"event_id,notnull" json:"event_id"`
	Status          string    `bun:"status,notnull" json:"status"`
	TotalCents      int64     `bun:"total_cents,notnull" json:"total_cents"`
	PaymentIntentID string    `bun:"payment_intent_id,nullzero" json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

const OrderPaid = "PAID"

// OrderItem carries the price copied from the seat's hold-time snapshot,
// never recomputed from current tier pricing.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	OrderItemID string `bun:"order_item_id,pk" json:"order_item_id"`
	OrderID     string `bun:"order_id,notnull" json:"order_id"`
	SeatID      string `bun:"seat_id,notnull" json:"seat_id"`
	PriceCents  int64  `bun:"price_cents,notnull" json:"price_cents"`
}

// OrderWithTickets is the purchase-history read model.
type OrderWithTickets struct {
	Order   Order    `json:"order"`
	Tickets []Ticket `json:"tickets"`
}
