package reaper

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	cartdb "ms-boxoffice/internal/cart/db"
	"ms-boxoffice/internal/inventory"
	"ms-boxoffice/internal/inventory/cache"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"

	"github.com/uptrace/bun"
)

type EventPublisher interface {
	SeatStatusChanged(eventID string, seatIDs []string, status models.SeatStatus) error
}

// Service reclaims storage for holds whose window has elapsed and marks
// drained carts EXPIRED for reporting. It is an optimization only: expiry is
// decided lazily by the effective-status view, so no buyer-facing guarantee
// depends on how often (or whether) a sweep runs.
type Service struct {
	Bun       *bun.DB
	Seats     *inventory.Store
	Carts     *cartdb.DB
	Publisher EventPublisher
	Cache     *cache.Cache
	Logger    *logger.Logger
}

func NewService(bunDB *bun.DB, seats *inventory.Store, carts *cartdb.DB, pub EventPublisher, summaryCache *cache.Cache, log *logger.Logger) *Service {
	return &Service{Bun: bunDB, Seats: seats, Carts: carts, Publisher: pub, Cache: summaryCache, Logger: log}
}

// Sweep reclaims expired state in two passes. First, whole carts past their
// deadline: the cart flips to EXPIRED, its still-lapsed holds are released,
// and all of its seat rows go, including rows for seats a newer cart has
// since claimed. Then any remaining seat row whose stored status is an
// expired HELD. Every release uses the same compare-and-swap discipline as a
// normal transition, pinned to the exact holder and version the sweep
// observed, so a seat that was re-held in the meantime is simply skipped.
func (s *Service) Sweep(ctx context.Context) (models.SweepResult, error) {
	now := time.Now().UTC()
	var result models.SweepResult

	lapsedCarts, err := s.Carts.ListExpiredOpen(ctx, now)
	if err != nil {
		return result, err
	}
	expired, err := s.Seats.ListExpiredHeld(ctx, now)
	if err != nil {
		return result, err
	}
	if len(lapsedCarts) == 0 && len(expired) == 0 {
		return result, nil
	}

	releasedByEvent := make(map[string][]string)
	touchedCarts := make(map[string]bool)
	err = s.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, cart := range lapsedCarts {
			released, err := s.expireCart(ctx, tx, cart, now)
			if err != nil {
				return err
			}
			if released == nil {
				continue
			}
			if len(released) > 0 {
				releasedByEvent[cart.EventID] = append(releasedByEvent[cart.EventID], released...)
				result.SeatsReleased += len(released)
			}
			result.CartsExpired++
		}

		for _, rec := range expired {
			reclaimed, err := s.Seats.ReclaimExpired(ctx, tx, rec, now)
			if err != nil {
				return err
			}
			if !reclaimed {
				continue
			}
			if err := s.Carts.DeleteSeats(ctx, tx, rec.HoldingCartID, []string{rec.SeatID}); err != nil {
				return err
			}
			releasedByEvent[rec.EventID] = append(releasedByEvent[rec.EventID], rec.SeatID)
			touchedCarts[rec.HoldingCartID] = true
			result.SeatsReleased++
		}

		for cartID := range touchedCarts {
			remaining, err := s.Seats.CountHeldByCart(ctx, tx, cartID)
			if err != nil {
				return err
			}
			if remaining > 0 {
				continue
			}
			expiredCart, err := s.Carts.SetStatus(ctx, tx, cartID, models.CartExpired, now)
			if err != nil {
				return err
			}
			if !expiredCart {
				continue
			}
			// The cart is done; whatever rows it still lists are stale.
			if err := s.Carts.DeleteAllSeats(ctx, tx, cartID); err != nil {
				return err
			}
			result.CartsExpired++
		}
		return nil
	})
	if err != nil {
		return models.SweepResult{}, err
	}

	for eventID, seatIDs := range releasedByEvent {
		if s.Cache != nil {
			s.Cache.Invalidate(ctx, eventID)
		}
		if s.Publisher != nil {
			if err := s.Publisher.SeatStatusChanged(eventID, seatIDs, models.SeatAvailable); err != nil {
				s.Logger.Error("KAFKA", fmt.Sprintf("publish reclaimed seats for event %s: %v", eventID, err))
			}
		}
	}

	if result.SeatsReleased > 0 || result.CartsExpired > 0 {
		s.Logger.LogSweep(fmt.Sprintf("reclaimed %d seat(s), expired %d cart(s)", result.SeatsReleased, result.CartsExpired))
	}
	return result, nil
}

// expireCart claims one lapsed cart, releases its still-lapsed holds and
// drops every one of its seat rows. Returns nil when the buyer revived the
// cart between the sweep's read and the claim; otherwise the seat ids
// actually released, possibly none.
func (s *Service) expireCart(ctx context.Context, tx bun.Tx, cart models.Cart, now time.Time) ([]string, error) {
	claimed, err := s.Carts.ExpireIfLapsed(ctx, tx, cart.CartID, now)
	if err != nil || !claimed {
		return nil, err
	}

	cartSeats, err := s.Carts.SeatsByCart(ctx, tx, cart.CartID)
	if err != nil {
		return nil, err
	}
	released := make([]string, 0, len(cartSeats))
	if len(cartSeats) > 0 {
		seatIDs := make([]string, len(cartSeats))
		for i, cs := range cartSeats {
			seatIDs[i] = cs.SeatID
		}
		recs, err := s.Seats.GetRecords(ctx, tx, cart.EventID, seatIDs)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			// A seat a newer cart claimed belongs to that cart now; only its
			// stale row goes.
			if rec.Status != models.SeatHeld || rec.HoldingCartID != cart.CartID || rec.HoldExpiresAt.After(now) {
				continue
			}
			reclaimed, err := s.Seats.ReclaimExpired(ctx, tx, rec, now)
			if err != nil {
				return nil, err
			}
			if reclaimed {
				released = append(released, rec.SeatID)
			}
		}
	}

	if err := s.Carts.DeleteAllSeats(ctx, tx, cart.CartID); err != nil {
		return nil, err
	}
	return released, nil
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.Logger.Error("SWEEP", fmt.Sprintf("sweep failed: %v", err))
			}
		}
	}
}
