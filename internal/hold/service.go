package hold

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	cartdb "ms-boxoffice/internal/cart/db"
	"ms-boxoffice/internal/catalog"
	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/inventory"
	"ms-boxoffice/internal/inventory/cache"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/utils"

	"github.com/uptrace/bun"
)

// EventPublisher streams committed seat transitions. Publishing is
// best-effort and happens after commit.
type EventPublisher interface {
	SeatStatusChanged(eventID string, seatIDs []string, status models.SeatStatus) error
}

// Service is the hold manager: it turns a buyer's seat selection into a
// time-boxed hold and owns the reserve/release protocol.
type Service struct {
	Bun       *bun.DB
	Seats     *inventory.Store
	Carts     *cartdb.DB
	Catalog   *catalog.Service
	Publisher EventPublisher
	Cache     *cache.Cache
	Logger    *logger.Logger
	TTL       time.Duration
}

func NewService(bunDB *bun.DB, seats *inventory.Store, carts *cartdb.DB, cat *catalog.Service, pub EventPublisher, summaryCache *cache.Cache, log *logger.Logger, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{
		Bun:       bunDB,
		Seats:     seats,
		Carts:     carts,
		Catalog:   cat,
		Publisher: pub,
		Cache:     summaryCache,
		Logger:    log,
		TTL:       ttl,
	}
}

// resolveSeatIDs expands a reserve request into explicit seat ids. Explicit
// ids win; otherwise best-available seats are picked per requested section.
func (s *Service) resolveSeatIDs(ctx context.Context, event *models.Event, req models.ReserveRequest, now time.Time) ([]string, error) {
	seatIDs := append([]string(nil), req.SeatIDs...)
	if len(seatIDs) == 0 && len(req.Sections) > 0 {
		sections := make([]string, 0, len(req.Sections))
		for section := range req.Sections {
			sections = append(sections, section)
		}
		sort.Strings(sections)
		for _, section := range sections {
			qty := req.Sections[section]
			if qty <= 0 {
				continue
			}
			picked, err := s.Catalog.BestAvailable(ctx, event, section, qty, now)
			if err != nil {
				return nil, err
			}
			seatIDs = append(seatIDs, picked...)
		}
	}
	if len(seatIDs) == 0 {
		return nil, errs.Validation("no seats specified for reservation")
	}
	seen := make(map[string]bool, len(seatIDs))
	deduped := seatIDs[:0]
	for _, seatID := range seatIDs {
		if seatID == "" {
			return nil, errs.Validation("empty seat id in request")
		}
		if !seen[seatID] {
			seen[seatID] = true
			deduped = append(deduped, seatID)
		}
	}
	// Fixed update order so overlapping batches touch rows in the same
	// sequence and cannot deadlock each other.
	sort.Strings(deduped)
	return deduped, nil
}

// Reserve places every requested seat under a hold backed by the buyer's
// single open cart for the event. The seat transitions and the cart rows
// commit in one transaction: if any seat is taken, nothing is reserved and
// the conflict lists the offending seats. A successful reserve resets the
// whole-cart TTL.
func (s *Service) Reserve(ctx context.Context, eventID, userID string, req models.ReserveRequest) (*models.ReserveResponse, error) {
	now := time.Now().UTC()

	event, err := s.Catalog.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.Status.Sellable() {
		return nil, &errs.NotSellableError{EventID: eventID, Status: string(event.Status)}
	}

	seatIDs, err := s.resolveSeatIDs(ctx, event, req, now)
	if err != nil {
		return nil, err
	}

	pricing, err := s.Catalog.SeatPricing(ctx, eventID, seatIDs)
	if err != nil {
		return nil, err
	}

	expiresAt := now.Add(s.TTL)
	var cartID string
	err = s.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		cart, err := s.Carts.FindOpen(ctx, tx, userID, eventID)
		if err != nil {
			return err
		}
		if cart == nil {
			cart = &models.Cart{
				CartID:    utils.GenerateID(),
				UserID:    userID,
				EventID:   eventID,
				Status:    models.CartOpen,
				ExpiresAt: expiresAt,
				CreatedAt: now,
			}
			if err := s.Carts.Insert(ctx, tx, cart); err != nil {
				return err
			}
		}
		cartID = cart.CartID

		if err := s.Seats.EnsureRecords(ctx, tx, eventID, seatIDs, now); err != nil {
			return err
		}
		conflicts, err := s.Seats.Hold(ctx, tx, eventID, seatIDs, cartID, expiresAt, now)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &errs.ConflictError{Msg: "some seats are not available", SeatIDs: conflicts}
		}

		// The cart's deadline applies to every seat it holds, not just the
		// ones added now, so the earlier holds move to the new expiry too.
		// Rows for seats the cart lost while its deadline was lapsed get
		// dropped here; the seats belong to whoever re-held them.
		if err := s.Seats.ExtendHolds(ctx, tx, eventID, cartID, expiresAt, now); err != nil {
			return err
		}
		if err := s.Carts.DeleteStaleSeats(ctx, tx, cartID, eventID); err != nil {
			return err
		}

		cartSeats := make([]models.CartSeat, 0, len(seatIDs))
		for _, seatID := range seatIDs {
			cartSeats = append(cartSeats, models.CartSeat{
				CartID:        cartID,
				SeatID:        seatID,
				PriceSnapshot: pricing[seatID].PriceCents,
				AddedAt:       now,
			})
		}
		if err := s.Carts.InsertSeats(ctx, tx, cartSeats); err != nil {
			return err
		}
		return s.Carts.UpdateExpiry(ctx, tx, cartID, expiresAt, now)
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, eventID, seatIDs, models.SeatHeld)
	s.Logger.LogHold("RESERVE", cartID, fmt.Sprintf("held %d seat(s) for event %s until %s", len(seatIDs), eventID, expiresAt.Format(time.RFC3339)))

	return &models.ReserveResponse{
		CartID:    cartID,
		EventID:   eventID,
		SeatIDs:   seatIDs,
		ExpiresAt: expiresAt,
	}, nil
}

// Release returns seats held by the buyer's open cart to AVAILABLE. It is
// idempotent: seats that are already available, sold, or held by another
// cart are skipped without error. An emptied cart stays OPEN so it can
// receive new selections.
func (s *Service) Release(ctx context.Context, eventID, userID string, seatIDs []string) ([]string, error) {
	if len(seatIDs) == 0 {
		return nil, errs.Validation("no seats specified for release")
	}
	now := time.Now().UTC()

	var released []string
	err := s.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		cart, err := s.Carts.FindOpen(ctx, tx, userID, eventID)
		if err != nil {
			return err
		}
		if cart == nil {
			// Nothing held, nothing to do.
			return nil
		}
		released, err = s.Seats.ReleaseHeld(ctx, tx, eventID, seatIDs, cart.CartID, now)
		if err != nil {
			return err
		}
		// Every requested row leaves the cart, including rows for seats the
		// cart no longer holds; only the actual transitions are reported.
		return s.Carts.DeleteSeats(ctx, tx, cart.CartID, seatIDs)
	})
	if err != nil {
		return nil, err
	}

	if len(released) > 0 {
		s.afterTransition(ctx, eventID, released, models.SeatAvailable)
		s.Logger.LogHold("RELEASE", userID, fmt.Sprintf("released %d seat(s) for event %s", len(released), eventID))
	}
	return released, nil
}

// afterTransition runs the post-commit side effects: cache invalidation and
// the seat-status event stream.
func (s *Service) afterTransition(ctx context.Context, eventID string, seatIDs []string, status models.SeatStatus) {
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, eventID)
	}
	if s.Publisher != nil {
		if err := s.Publisher.SeatStatusChanged(eventID, seatIDs, status); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("publish seat status for event %s: %v", eventID, err))
		}
	}
}
