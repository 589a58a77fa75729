package models

import (
	"time"

	"github.com/uptrace/bun"
)

type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatHeld      SeatStatus = "HELD"
	SeatSold      SeatStatus = "SOLD"
)

// SeatStatusRecord is the per (event, seat) source of truth. It is the only
// row mutated by more than one actor, so every write goes through a
// conditional UPDATE guarded by the stored status and holder fields.
type SeatStatusRecord struct {
	bun.BaseModel `bun:"table:event_seat_status"`

	EventID       string     `bun:"event_id,pk" json:"event_id"`
	SeatID        string     `bun:"seat_id,pk" json:"seat_id"`
	Status        SeatStatus `bun:"status,notnull" json:"status"`
	HoldingCartID string     `bun:"holding_cart_id,nullzero" json:"holding_cart_id,omitempty"`
	HoldExpiresAt time.Time  `bun:"hold_expires_at,nullzero" json:"hold_expires_at,omitempty"`
	Version       int64      `bun:"version,notnull,default:0" json:"version"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero" json:"updated_at"`
}

// EffectiveStatus computes the logical availability of a seat at a given
// instant. An expired hold counts as AVAILABLE even if no sweep has reclaimed
// the row yet; SOLD is terminal. Every component reads seat state through
// this function, never through the raw stored status.
func (r *SeatStatusRecord) EffectiveStatus(now time.Time) SeatStatus {
	if r == nil {
		return SeatAvailable
	}
	if r.Status == SeatHeld && !r.HoldExpiresAt.After(now) {
		return SeatAvailable
	}
	return r.Status
}

// HeldBy reports whether the seat is logically held by the given cart at the
// given instant.
func (r *SeatStatusRecord) HeldBy(cartID string, now time.Time) bool {
	return r != nil && r.EffectiveStatus(now) == SeatHeld && r.HoldingCartID == cartID
}
