package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-boxoffice/internal/models"

	"github.com/uptrace/bun"
)

// DB is the cart and cart-seat store. Cart rows are only ever mutated by the
// owning user's requests plus the reaper, so no CAS is needed here; the seat
// rows carry the contention.
type DB struct {
	Bun *bun.DB
}

// FindOpen returns the single OPEN cart for (user, event), or nil.
func (d *DB) FindOpen(ctx context.Context, idb bun.IDB, userID, eventID string) (*models.Cart, error) {
	var cart models.Cart
	err := idb.NewSelect().
		Model(&cart).
		Where("user_id = ? AND event_id = ? AND status = ?", userID, eventID, models.CartOpen).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open cart: %w", err)
	}
	return &cart, nil
}

func (d *DB) GetByID(ctx context.Context, idb bun.IDB, cartID string) (*models.Cart, error) {
	var cart models.Cart
	err := idb.NewSelect().
		Model(&cart).
		Where("cart_id = ?", cartID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart %s: %w", cartID, err)
	}
	return &cart, nil
}

func (d *DB) Insert(ctx context.Context, idb bun.IDB, cart *models.Cart) error {
	_, err := idb.NewInsert().Model(cart).Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert cart: %w", err)
	}
	return nil
}

// UpdateExpiry resets the whole-cart TTL. Adding seats always goes through
// this, so every held seat of a cart shares one expiry.
func (d *DB) UpdateExpiry(ctx context.Context, idb bun.IDB, cartID string, expiresAt, now time.Time) error {
	_, err := idb.NewUpdate().
		Model((*models.Cart)(nil)).
		Set("expires_at = ?", expiresAt).
		Set("updated_at = ?", now).
		Where("cart_id = ?", cartID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update cart expiry: %w", err)
	}
	return nil
}

// ExpireIfLapsed moves a cart to EXPIRED only while it is still OPEN and its
// deadline has actually passed. A cart the buyer revived between the
// sweeper's read and this update keeps its new deadline.
func (d *DB) ExpireIfLapsed(ctx context.Context, idb bun.IDB, cartID string, now time.Time) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.Cart)(nil)).
		Set("status = ?", models.CartExpired).
		Set("updated_at = ?", now).
		Where("cart_id = ? AND status = ?", cartID, models.CartOpen).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("expire cart %s: %w", cartID, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ListExpiredOpen returns carts still marked OPEN past their deadline.
func (d *DB) ListExpiredOpen(ctx context.Context, now time.Time) ([]models.Cart, error) {
	var carts []models.Cart
	err := d.Bun.NewSelect().
		Model(&carts).
		Where("status = ?", models.CartOpen).
		Where("expires_at <= ?", now).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expired carts: %w", err)
	}
	return carts, nil
}

// SetStatus moves a cart out of OPEN. The status guard keeps a terminated
// cart terminated even under concurrent requests.
func (d *DB) SetStatus(ctx context.Context, idb bun.IDB, cartID string, status models.CartStatus, now time.Time) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.Cart)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", now).
		Where("cart_id = ? AND status = ?", cartID, models.CartOpen).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("set cart %s status %s: %w", cartID, status, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// SetPaymentIntent records the provider correlation for a cart along with
// the attempt number that produced it.
func (d *DB) SetPaymentIntent(ctx context.Context, idb bun.IDB, cartID, paymentIntentID string, attempt int64, now time.Time) error {
	_, err := idb.NewUpdate().
		Model((*models.Cart)(nil)).
		Set("payment_intent_id = ?", paymentIntentID).
		Set("payment_attempts = ?", attempt).
		Set("updated_at = ?", now).
		Where("cart_id = ?", cartID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set cart payment intent: %w", err)
	}
	return nil
}

func (d *DB) InsertSeats(ctx context.Context, idb bun.IDB, seats []models.CartSeat) error {
	if len(seats) == 0 {
		return nil
	}
	_, err := idb.NewInsert().
		Model(&seats).
		On("CONFLICT (cart_id, seat_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert cart seats: %w", err)
	}
	return nil
}

func (d *DB) DeleteSeats(ctx context.Context, idb bun.IDB, cartID string, seatIDs []string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	_, err := idb.NewDelete().
		Model((*models.CartSeat)(nil)).
		Where("cart_id = ?", cartID).
		Where("seat_id IN (?)", bun.In(seatIDs)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete cart seats: %w", err)
	}
	return nil
}

// DeleteStaleSeats drops the cart's rows for seats the cart no longer holds.
// A seat can slip away while the cart's deadline was lapsed; the row pointing
// at it must not survive, or the cart can never check out again.
func (d *DB) DeleteStaleSeats(ctx context.Context, idb bun.IDB, cartID, eventID string) error {
	held := idb.NewSelect().
		Model((*models.SeatStatusRecord)(nil)).
		Column("seat_id").
		Where("event_id = ?", eventID).
		Where("status = ? AND holding_cart_id = ?", models.SeatHeld, cartID)
	_, err := idb.NewDelete().
		Model((*models.CartSeat)(nil)).
		Where("cart_id = ?", cartID).
		Where("seat_id NOT IN (?)", held).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete stale cart seats: %w", err)
	}
	return nil
}

func (d *DB) DeleteAllSeats(ctx context.Context, idb bun.IDB, cartID string) error {
	_, err := idb.NewDelete().
		Model((*models.CartSeat)(nil)).
		Where("cart_id = ?", cartID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("clear cart seats: %w", err)
	}
	return nil
}

func (d *DB) SeatsByCart(ctx context.Context, idb bun.IDB, cartID string) ([]models.CartSeat, error) {
	var seats []models.CartSeat
	err := idb.NewSelect().
		Model(&seats).
		Where("cart_id = ?", cartID).
		Order("seat_id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cart seats: %w", err)
	}
	return seats, nil
}

// OpenCartsByUser lists a buyer's OPEN carts across events.
func (d *DB) OpenCartsByUser(ctx context.Context, userID string) ([]models.Cart, error) {
	var carts []models.Cart
	err := d.Bun.NewSelect().
		Model(&carts).
		Where("user_id = ? AND status = ?", userID, models.CartOpen).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open carts: %w", err)
	}
	return carts, nil
}
