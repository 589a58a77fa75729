package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"ms-boxoffice/internal/models"
)

// DB is the order, order-item and ticket write store. Inserts only happen
// inside the finalizer's transaction, so every method takes the bun.IDB it
// should run against.
type DB struct {
	Bun *bun.DB
}

func (d *DB) InsertOrder(ctx context.Context, idb bun.IDB, order *models.Order) error {
	_, err := idb.NewInsert().Model(order).Exec(ctx)
	return err
}

func (d *DB) InsertItems(ctx context.Context, idb bun.IDB, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	_, err := idb.NewInsert().Model(&items).Exec(ctx)
	return err
}

func (d *DB) InsertTickets(ctx context.Context, idb bun.IDB, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	_, err := idb.NewInsert().Model(&tickets).Exec(ctx)
	return err
}

// GetByID returns the order, or nil when it does not exist.
func (d *DB) GetByID(ctx context.Context, idb bun.IDB, orderID string) (*models.Order, error) {
	var order models.Order
	err := idb.NewSelect().
		Model(&order).
		Where("order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ByPaymentIntent returns the order already finalized for a provider
// authorization, or nil. Used to make purchase completion replay-safe.
func (d *DB) ByPaymentIntent(ctx context.Context, idb bun.IDB, paymentIntentID string) (*models.Order, error) {
	var order models.Order
	err := idb.NewSelect().
		Model(&order).
		Where("payment_intent_id = ?", paymentIntentID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) TicketsByOrder(ctx context.Context, idb bun.IDB, orderID string) ([]models.Ticket, error) {
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

// BarcodeExists reports whether any ticket already carries the barcode. The
// finalizer checks this inside its transaction before inserting; the unique
// index on tickets.barcode remains the backstop.
func (d *DB) BarcodeExists(ctx context.Context, idb bun.IDB, barcode string) (bool, error) {
	return idb.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("barcode = ?", barcode).
		Exists(ctx)
}

// ListByUser returns the user's orders, newest first, each with its tickets.
func (d *DB) ListByUser(ctx context.Context, idb bun.IDB, userID string) ([]models.OrderWithTickets, error) {
	var orders []models.Order
	err := idb.NewSelect().
		Model(&orders).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]models.OrderWithTickets, 0, len(orders))
	for _, order := range orders {
		tickets, err := d.TicketsByOrder(ctx, idb, order.OrderID)
		if err != nil {
			return nil, err
		}
		result = append(result, models.OrderWithTickets{Order: order, Tickets: tickets})
	}
	return result, nil
}
