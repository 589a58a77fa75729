package cart

import (
	"context"
	"time"

	cartdb "ms-boxoffice/internal/cart/db"
	"ms-boxoffice/internal/catalog"
	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/models"
)

// Aggregator is the single read model for what a cart holds and what it
// costs. The buyer-facing cart view and the payment orchestrator's amount
// computation both come through here, so the two can never diverge.
type Aggregator struct {
	DB      *cartdb.DB
	Catalog *catalog.Service
}

func NewAggregator(db *cartdb.DB, cat *catalog.Service) *Aggregator {
	return &Aggregator{DB: db, Catalog: cat}
}

// View assembles one cart: its seats with catalog labels, the hold-time
// price snapshots and their sum. Prices come from the snapshot, never from
// current tier pricing.
func (a *Aggregator) View(ctx context.Context, cart *models.Cart) (*models.CartView, error) {
	seats, err := a.DB.SeatsByCart(ctx, a.DB.Bun, cart.CartID)
	if err != nil {
		return nil, err
	}

	view := &models.CartView{
		CartID:    cart.CartID,
		UserID:    cart.UserID,
		EventID:   cart.EventID,
		Status:    cart.Status,
		ExpiresAt: cart.ExpiresAt,
		Seats:     []models.CartSeatView{},
	}
	if len(seats) == 0 {
		return view, nil
	}

	seatIDs := make([]string, len(seats))
	for i, seat := range seats {
		seatIDs[i] = seat.SeatID
	}
	labels, err := a.Catalog.SeatPricing(ctx, cart.EventID, seatIDs)
	if err != nil {
		return nil, err
	}

	for _, seat := range seats {
		label := labels[seat.SeatID]
		view.Seats = append(view.Seats, models.CartSeatView{
			SeatID:        seat.SeatID,
			Section:       label.Section,
			RowLabel:      label.RowLabel,
			SeatNumber:    label.SeatNumber,
			TierName:      label.TierName,
			PriceSnapshot: seat.PriceSnapshot,
		})
		view.TotalCents += seat.PriceSnapshot
	}
	return view, nil
}

// ViewByID loads and aggregates a cart owned by the given user.
func (a *Aggregator) ViewByID(ctx context.Context, cartID, userID string) (*models.CartView, error) {
	cart, err := a.DB.GetByID(ctx, a.DB.Bun, cartID)
	if err != nil {
		return nil, err
	}
	if cart == nil || cart.UserID != userID {
		return nil, &errs.NotFoundError{Kind: "cart", ID: cartID}
	}
	return a.View(ctx, cart)
}

// OpenForUser returns the buyer's open carts across events, aggregated.
// Carts whose TTL already elapsed are filtered out the same lazy way seat
// reads are: by comparing against now, not by waiting for the sweeper.
func (a *Aggregator) OpenForUser(ctx context.Context, userID string, now time.Time) ([]models.CartView, error) {
	carts, err := a.DB.OpenCartsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := []models.CartView{}
	for i := range carts {
		if carts[i].Expired(now) {
			continue
		}
		view, err := a.View(ctx, &carts[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}
