package storage

import (
	"context"
	"time"
)

// ReconciliationRecord captures a payment that succeeded at the provider but
// whose purchase could not be finalized. These rows are worked manually
// (refund or re-issue); the service never retries them on its own.
type ReconciliationRecord struct {
	RecordID        string    `json:"record_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	CartID          string    `json:"cart_id"`
	UserID          string    `json:"user_id"`
	EventID         string    `json:"event_id"`
	SeatIDs         string    `json:"seat_ids"`
	AmountCents     int64     `json:"amount_cents"`
	Reason          string    `json:"reason"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

const (
	ReconciliationOpen     = "OPEN"
	ReconciliationResolved = "RESOLVED"
)

type Store interface {
	// Reconciliation operations
	SaveRecord(ctx context.Context, record *ReconciliationRecord) error
	GetRecord(ctx context.Context, id string) (*ReconciliationRecord, error)
	GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*ReconciliationRecord, error)
	ListOpen(ctx context.Context, limit, offset int) ([]*ReconciliationRecord, error)
	Resolve(ctx context.Context, id string) error

	// Health and maintenance
	Close() error
	HealthCheck() error
}
