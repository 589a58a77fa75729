package models

import "time"

// ReserveRequest accepts either explicit seat ids or per-section quantities
// (best-available selection).
type ReserveRequest struct {
	SeatIDs  []string       `json:"seat_ids,omitempty"`
	Sections map[string]int `json:"sections,omitempty"`
}

type ReleaseRequest struct {
	SeatIDs []string `json:"seat_ids"`
}

// ReserveResponse is the cart snapshot returned after a successful hold.
type ReserveResponse struct {
	CartID    string    `json:"cart_id"`
	EventID   string    `json:"event_id"`
	SeatIDs   []string  `json:"seat_ids"`
	ExpiresAt time.Time `json:"expires_at"`
}

type PaymentIntentRequest struct {
	CartID string `json:"cart_id"`
}

// PaymentIntentResponse hands the buyer the provider's client handle; the
// core never sees card data.
type PaymentIntentResponse struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
	CartID          string `json:"cart_id"`
	SeatCount       int    `json:"seat_count"`
}

type CompletePurchaseRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
	CartID          string `json:"cart_id"`
}

type PurchaseResponse struct {
	OrderID         string   `json:"order_id"`
	EventID         string   `json:"event_id"`
	TotalCents      int64    `json:"total_cents"`
	PaymentIntentID string   `json:"payment_intent_id,omitempty"`
	Tickets         []Ticket `json:"tickets"`
}

// SeatAvailabilityView is one seat on the public seat map with its logical
// availability and current pricing.
type SeatAvailabilityView struct {
	SeatID       string     `json:"seat_id"`
	Section      string     `json:"section"`
	RowLabel     string     `json:"row_label"`
	SeatNumber   int        `json:"seat_number"`
	Availability SeatStatus `json:"availability"`
	TierName     string     `json:"tier_name,omitempty"`
	PriceCents   int64      `json:"price_cents"`
}

// SectionInventory is the per-section availability summary. It never exposes
// who holds a seat.
type SectionInventory struct {
	Section    string `json:"section"`
	TotalSeats int    `json:"total_seats"`
	Available  int    `json:"available"`
	Held       int    `json:"held"`
	Sold       int    `json:"sold"`
	TierName   string `json:"tier_name,omitempty"`
	PriceCents int64  `json:"price_cents"`
}

type InventorySummary struct {
	EventID     string             `json:"event_id"`
	EventStatus EventStatus        `json:"event_status"`
	Sections    []SectionInventory `json:"sections"`
	TotalSeats  int                `json:"total_seats"`
	Available   int                `json:"available"`
	Held        int                `json:"held"`
	Sold        int                `json:"sold"`
}

// SweepResult reports what a reaper pass reclaimed.
type SweepResult struct {
	SeatsReleased int `json:"seats_released"`
	CartsExpired  int `json:"carts_expired"`
}
