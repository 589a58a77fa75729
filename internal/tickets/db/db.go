package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-boxoffice/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// GetByID returns the ticket, or nil when it does not exist.
func (d *DB) GetByID(ctx context.Context, idb bun.IDB, ticketID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := idb.NewSelect().
		Model(&ticket).
		Where("ticket_id = ?", ticketID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetByBarcode looks a ticket up by its entry credential.
func (d *DB) GetByBarcode(ctx context.Context, idb bun.IDB, barcode string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := idb.NewSelect().
		Model(&ticket).
		Where("barcode = ?", barcode).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// SetScanned moves ISSUED -> SCANNED. Returns false when the ticket was not
// in ISSUED, so a double scan can never succeed twice.
func (d *DB) SetScanned(ctx context.Context, idb bun.IDB, ticketID string, now time.Time) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketScanned).
		Set("scanned_at = ?", now).
		Where("ticket_id = ? AND status = ?", ticketID, models.TicketIssued).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SetVoided moves ISSUED -> VOIDED under the same guard discipline.
func (d *DB) SetVoided(ctx context.Context, idb bun.IDB, ticketID string, now time.Time) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketVoided).
		Set("voided_at = ?", now).
		Where("ticket_id = ? AND status = ?", ticketID, models.TicketIssued).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (d *DB) ListByOrder(ctx context.Context, idb bun.IDB, orderID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := idb.NewSelect().
		Model(&tickets).
		Where("order_id = ?", orderID).
		Order("seat_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) ListByUser(ctx context.Context, idb bun.IDB, userID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := idb.NewSelect().
		Model(&tickets).
		Where("user_id = ?", userID).
		Order("issued_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}
