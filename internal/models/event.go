package models

import (
	"time"

	"github.com/uptrace/bun"
)

type EventStatus string

const (
	EventScheduled EventStatus = "SCHEDULED"
	EventOnSale    EventStatus = "ON_SALE"
	EventClosed    EventStatus = "CLOSED"
	EventCancelled EventStatus = "CANCELLED"
)

// Sellable reports whether reservations are accepted for the event.
func (s EventStatus) Sellable() bool {
	return s == EventOnSale || s == EventScheduled
}

// Event is catalog data. The reservation core only reads it; authoring is
// owned by the catalog service.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	EventID   string      `bun:"event_id,pk" json:"event_id"`
	VenueID   string      `bun:"venue_id,notnull" json:"venue_id"`
	Name      string      `bun:"name,notnull" json:"name"`
	Status    EventStatus `bun:"status,notnull" json:"status"`
	StartsAt  time.Time   `bun:"starts_at,notnull" json:"starts_at"`
	CreatedAt time.Time   `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

type Seat struct {
	bun.BaseModel `bun:"table:seats"`

	SeatID     string `bun:"seat_id,pk" json:"seat_id"`
	VenueID    string `bun:"venue_id,notnull" json:"venue_id"`
	Section    string `bun:"section,notnull" json:"section"`
	RowLabel   string `bun:"row_label,notnull" json:"row_label"`
	SeatNumber int    `bun:"seat_number,notnull" json:"seat_number"`
}

type PriceTier struct {
	bun.BaseModel `bun:"table:price_tiers"`

	PriceTierID string `bun:"price_tier_id,pk" json:"price_tier_id"`
	TierName    string `bun:"tier_name,notnull" json:"tier_name"`
	PriceCents  int64  `bun:"price_cents,notnull" json:"price_cents"`
}

// SectionPricing maps a venue section to its price tier for one event.
type SectionPricing struct {
	bun.BaseModel `bun:"table:section_pricing"`

	EventID     string `bun:"event_id,pk" json:"event_id"`
	Section     string `bun:"section,pk" json:"section"`
	PriceTierID string `bun:"price_tier_id,notnull" json:"price_tier_id"`
}

// SeatPricing is the catalog's answer for one seat: its labels plus the
// current tier price. The hold manager snapshots PriceCents at reserve time.
type SeatPricing struct {
	SeatID     string `json:"seat_id"`
	Section    string `json:"section"`
	RowLabel   string `json:"row_label"`
	SeatNumber int    `json:"seat_number"`
	TierName   string `json:"tier_name"`
	PriceCents int64  `json:"price_cents"`
}
