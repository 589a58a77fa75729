package models

import (
	"time"

	"github.com/uptrace/bun"
)

type CartStatus string

const (
	CartOpen      CartStatus = "OPEN"
	CartConverted CartStatus = "CONVERTED"
	CartExpired   CartStatus = "EXPIRED"
)

// Cart is the time-boxed hold container. At most one OPEN cart exists per
// (user_id, event_id); a terminated cart is never reused.
type Cart struct {
	bun.BaseModel `bun:"table:carts"`

	CartID          string     `bun:"cart_id,pk" json:"cart_id"`
	UserID          string     `bun:"user_id,notnull" json:"user_id"`
	EventID         string     `bun:"event_id,notnull" json:"event_id"`
	Status          CartStatus `bun:"status,notnull" json:"status"`
	ExpiresAt       time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	PaymentIntentID string     `bun:"payment_intent_id,nullzero" json:"payment_intent_id,omitempty"`
	PaymentAttempts int64      `bun:"payment_attempts,notnull,default:0" json:"payment_attempts"`
	CreatedAt       time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// Expired reports whether the whole-cart TTL has elapsed.
func (c *Cart) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// CartSeat is the membership edge between a cart and a held seat. The price
// is snapshotted at hold time and never recomputed afterwards.
type CartSeat struct {
	bun.BaseModel `bun:"table:cart_seats"`

	CartID        string    `bun:"cart_id,pk" json:"cart_id"`
	SeatID        string    `bun:"seat_id,pk" json:"seat_id"`
	PriceSnapshot int64     `bun:"price_snapshot,notnull" json:"price_snapshot"`
	AddedAt       time.Time `bun:"added_at,notnull,default:current_timestamp" json:"added_at"`
}

// CartSeatView is a cart seat joined with its catalog labels for the read
// path.
type CartSeatView struct {
	SeatID        string `json:"seat_id"`
	Section       string `json:"section"`
	RowLabel      string `json:"row_label"`
	SeatNumber    int    `json:"seat_number"`
	TierName      string `json:"tier_name"`
	PriceSnapshot int64  `json:"price_snapshot"`
}

// CartView is the aggregated cart presented to the buyer and used by the
// payment orchestrator to compute the amount to authorize.
type CartView struct {
	CartID     string         `json:"cart_id"`
	UserID     string         `json:"user_id"`
	EventID    string         `json:"event_id"`
	Status     CartStatus     `json:"status"`
	ExpiresAt  time.Time      `json:"expires_at"`
	Seats      []CartSeatView `json:"seats"`
	TotalCents int64          `json:"total_cents"`
}
