package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketIssued  TicketStatus = "ISSUED"
	TicketScanned TicketStatus = "SCANNED"
	TicketVoided  TicketStatus = "VOIDED"
)

// Ticket is created only by the order finalizer. The barcode is an opaque,
// high-entropy, globally unique venue-entry credential.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID    string       `bun:"ticket_id,pk" json:"ticket_id"`
	OrderID     string       `bun:"order_id,notnull" json:"order_id"`
	OrderItemID string       `bun:"order_item_id,notnull" json:"order_item_id"`
	EventID     string       `bun:"event_id,notnull" json:"event_id"`
	SeatID      string       `bun:"seat_id,notnull" json:"seat_id"`
	UserID      string       `bun:"user_id,notnull" json:"user_id"`
	Barcode     string       `bun:"barcode,unique,notnull" json:"barcode"`
	Status      TicketStatus `bun:"status,notnull" json:"status"`
	QRCode      []byte       `bun:"qr_code,nullzero" json:"qr_code,omitempty"`
	PriceCents  int64        `bun:"price_cents,notnull" json:"price_cents"`
	IssuedAt    time.Time    `bun:"issued_at,notnull" json:"issued_at"`
	ScannedAt   time.Time    `bun:"scanned_at,nullzero" json:"scanned_at,omitempty"`
	VoidedAt    time.Time    `bun:"voided_at,nullzero" json:"voided_at,omitempty"`
}
