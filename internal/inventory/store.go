package inventory

import (
	"context"
	"fmt"
	"time"

	"ms-boxoffice/internal/models"

	"github.com/uptrace/bun"
)

// Store owns every seat-state transition. Each transition is a single
// conditional UPDATE keyed by (event_id, seat_id), never a read-then-write
// pair, so two competing requests can never both win the same seat. Methods
// take a bun.IDB so callers can compose several seats (and their cart rows)
// into one all-or-nothing transaction.
type Store struct {
	Bun *bun.DB
}

func NewStore(bunDB *bun.DB) *Store {
	return &Store{Bun: bunDB}
}

// EnsureRecords inserts AVAILABLE rows for seats that have no status record
// yet. Catalog setup normally creates them, but a missing row means
// AVAILABLE, so the hold path upserts lazily.
func (s *Store) EnsureRecords(ctx context.Context, idb bun.IDB, eventID string, seatIDs []string, now time.Time) error {
	if len(seatIDs) == 0 {
		return nil
	}
	recs := make([]models.SeatStatusRecord, 0, len(seatIDs))
	for _, seatID := range seatIDs {
		recs = append(recs, models.SeatStatusRecord{
			EventID:   eventID,
			SeatID:    seatID,
			Status:    models.SeatAvailable,
			UpdatedAt: now,
		})
	}
	_, err := idb.NewInsert().
		Model(&recs).
		On("CONFLICT (event_id, seat_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ensure seat status records: %w", err)
	}
	return nil
}

// Hold moves seats to HELD for the given cart. A seat qualifies when its
// effective status is AVAILABLE: stored AVAILABLE, or stored HELD with an
// elapsed expiry. Returns the seat ids that failed the precondition; the
// caller must roll back the surrounding transaction when any are returned.
func (s *Store) Hold(ctx context.Context, idb bun.IDB, eventID string, seatIDs []string, cartID string, expiresAt, now time.Time) ([]string, error) {
	var conflicts []string
	for _, seatID := range seatIDs {
		res, err := idb.NewUpdate().
			Model((*models.SeatStatusRecord)(nil)).
			Set("status = ?", models.SeatHeld).
			Set("holding_cart_id = ?", cartID).
			Set("hold_expires_at = ?", expiresAt).
			Set("version = version + 1").
			Set("updated_at = ?", now).
			Where("event_id = ? AND seat_id = ?", eventID, seatID).
			Where("status = ? OR (status = ? AND hold_expires_at <= ?)",
				models.SeatAvailable, models.SeatHeld, now).
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("hold seat %s: %w", seatID, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			conflicts = append(conflicts, seatID)
		}
	}
	return conflicts, nil
}

// ExtendHolds moves every hold the cart owns to the new expiry. Reserve runs
// this after adding seats so the whole cart keeps a single deadline; a seat
// the cart lost to a newer holder no longer matches the guard and is left
// alone.
func (s *Store) ExtendHolds(ctx context.Context, idb bun.IDB, eventID, cartID string, expiresAt, now time.Time) error {
	_, err := idb.NewUpdate().
		Model((*models.SeatStatusRecord)(nil)).
		Set("hold_expires_at = ?", expiresAt).
		Set("version = version + 1").
		Set("updated_at = ?", now).
		Where("event_id = ?", eventID).
		Where("status = ? AND holding_cart_id = ?", models.SeatHeld, cartID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("extend holds for cart %s: %w", cartID, err)
	}
	return nil
}

// ReleaseHeld returns seats held by the given cart to AVAILABLE. Seats that
// are already available, sold, or held by someone else are skipped, which
// makes release idempotent. Returns the seat ids actually released.
func (s *Store) ReleaseHeld(ctx context.Context, idb bun.IDB, eventID string, seatIDs []string, cartID string, now time.Time) ([]string, error) {
	var released []string
	for _, seatID := range seatIDs {
		res, err := idb.NewUpdate().
			Model((*models.SeatStatusRecord)(nil)).
			Set("status = ?", models.SeatAvailable).
			Set("holding_cart_id = NULL").
			Set("hold_expires_at = NULL").
			Set("version = version + 1").
			Set("updated_at = ?", now).
			Where("event_id = ? AND seat_id = ?", eventID, seatID).
			Where("status = ? AND holding_cart_id = ?", models.SeatHeld, cartID).
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("release seat %s: %w", seatID, err)
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			released = append(released, seatID)
		}
	}
	return released, nil
}

// MarkSold converts seats held by the given cart to SOLD. The hold must
// still be live (not expired) at the given instant. Returns the seat ids
// whose hold was lost; the caller must roll back when any are returned.
func (s *Store) MarkSold(ctx context.Context, idb bun.IDB, eventID string, seatIDs []string, cartID string, now time.Time) ([]string, error) {
	var lost []string
	for _, seatID := range seatIDs {
		res, err := idb.NewUpdate().
			Model((*models.SeatStatusRecord)(nil)).
			Set("status = ?", models.SeatSold).
			Set("holding_cart_id = NULL").
			Set("hold_expires_at = NULL").
			Set("version = version + 1").
			Set("updated_at = ?", now).
			Where("event_id = ? AND seat_id = ?", eventID, seatID).
			Where("status = ? AND holding_cart_id = ? AND hold_expires_at > ?",
				models.SeatHeld, cartID, now).
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("mark seat %s sold: %w", seatID, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			lost = append(lost, seatID)
		}
	}
	return lost, nil
}

// VoidSold returns a SOLD seat to AVAILABLE when its ticket is voided.
func (s *Store) VoidSold(ctx context.Context, idb bun.IDB, eventID, seatID string, now time.Time) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.SeatStatusRecord)(nil)).
		Set("status = ?", models.SeatAvailable).
		Set("version = version + 1").
		Set("updated_at = ?", now).
		Where("event_id = ? AND seat_id = ?", eventID, seatID).
		Where("status = ?", models.SeatSold).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("void seat %s: %w", seatID, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ReclaimExpired releases one expired hold, but only if the row still points
// at the exact holder and expiry the sweeper observed. A seat that was
// re-held in the meantime (effectiveStatus already exposed it as available)
// no longer matches and is skipped.
func (s *Store) ReclaimExpired(ctx context.Context, idb bun.IDB, rec models.SeatStatusRecord, now time.Time) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.SeatStatusRecord)(nil)).
		Set("status = ?", models.SeatAvailable).
		Set("holding_cart_id = NULL").
		Set("hold_expires_at = NULL").
		Set("version = version + 1").
		Set("updated_at = ?", now).
		Where("event_id = ? AND seat_id = ?", rec.EventID, rec.SeatID).
		Where("status = ? AND holding_cart_id = ? AND version = ?",
			models.SeatHeld, rec.HoldingCartID, rec.Version).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("reclaim seat %s: %w", rec.SeatID, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// GetRecords fetches the status rows for the given seats. Seats without a
// row are simply absent from the result (logically AVAILABLE).
func (s *Store) GetRecords(ctx context.Context, idb bun.IDB, eventID string, seatIDs []string) ([]models.SeatStatusRecord, error) {
	var recs []models.SeatStatusRecord
	err := idb.NewSelect().
		Model(&recs).
		Where("event_id = ?", eventID).
		Where("seat_id IN (?)", bun.In(seatIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get seat status records: %w", err)
	}
	return recs, nil
}

// VerifyHeldBy re-checks that every given seat is logically HELD by the cart
// right now. Returns the seat ids that are not.
func (s *Store) VerifyHeldBy(ctx context.Context, idb bun.IDB, eventID string, seatIDs []string, cartID string, now time.Time) ([]string, error) {
	recs, err := s.GetRecords(ctx, idb, eventID, seatIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.SeatStatusRecord, len(recs))
	for i := range recs {
		byID[recs[i].SeatID] = &recs[i]
	}
	var lost []string
	for _, seatID := range seatIDs {
		if !byID[seatID].HeldBy(cartID, now) {
			lost = append(lost, seatID)
		}
	}
	return lost, nil
}

// ListExpiredHeld returns rows whose stored status is still HELD past their
// expiry. Only the sweeper uses the stored view; everything buyer-facing
// goes through EffectiveStatus.
func (s *Store) ListExpiredHeld(ctx context.Context, now time.Time) ([]models.SeatStatusRecord, error) {
	var recs []models.SeatStatusRecord
	err := s.Bun.NewSelect().
		Model(&recs).
		Where("status = ?", models.SeatHeld).
		Where("hold_expires_at <= ?", now).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expired holds: %w", err)
	}
	return recs, nil
}

// CountHeldByCart reports how many seats still point at the given cart as
// their holder.
func (s *Store) CountHeldByCart(ctx context.Context, idb bun.IDB, cartID string) (int, error) {
	count, err := idb.NewSelect().
		Model((*models.SeatStatusRecord)(nil)).
		Where("status = ? AND holding_cart_id = ?", models.SeatHeld, cartID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count held seats for cart %s: %w", cartID, err)
	}
	return count, nil
}

// ListByEvent returns every status row for an event, keyed by seat id.
func (s *Store) ListByEvent(ctx context.Context, eventID string) (map[string]*models.SeatStatusRecord, error) {
	var recs []models.SeatStatusRecord
	err := s.Bun.NewSelect().
		Model(&recs).
		Where("event_id = ?", eventID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list seat status for event %s: %w", eventID, err)
	}
	byID := make(map[string]*models.SeatStatusRecord, len(recs))
	for i := range recs {
		byID[recs[i].SeatID] = &recs[i]
	}
	return byID, nil
}
