package payment

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ms-boxoffice/internal/cart"
	cartdb "ms-boxoffice/internal/cart/db"
	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/inventory"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
)

// Service is the payment orchestrator: it bridges an open cart to the
// external provider's authorization object. The provider call happens
// outside any seat-row transaction; seats are only re-verified, never
// locked, while waiting on the provider.
type Service struct {
	Carts      *cartdb.DB
	Seats      *inventory.Store
	Aggregator *cart.Aggregator
	Provider   Provider
	Logger     *logger.Logger
	Currency   string
}

func NewService(carts *cartdb.DB, seats *inventory.Store, agg *cart.Aggregator, provider Provider, log *logger.Logger, currency string) *Service {
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		Carts:      carts,
		Seats:      seats,
		Aggregator: agg,
		Provider:   provider,
		Logger:     log,
		Currency:   currency,
	}
}

// CreateAuthorization opens (or reuses) a payment authorization for the
// cart's total. The amount comes from the same aggregation the buyer sees,
// and the hold state is re-verified against the live rows rather than any
// cached cart view. The idempotency key is derived from (cart, attempt) so a
// retried client request can never double-authorize.
func (s *Service) CreateAuthorization(ctx context.Context, cartID, userID string) (*models.PaymentIntentResponse, error) {
	now := time.Now().UTC()

	cartRow, err := s.Carts.GetByID(ctx, s.Carts.Bun, cartID)
	if err != nil {
		return nil, err
	}
	if cartRow == nil || cartRow.UserID != userID {
		return nil, &errs.NotFoundError{Kind: "cart", ID: cartID}
	}
	if cartRow.Status != models.CartOpen {
		return nil, &errs.GoneError{Msg: "cart already processed"}
	}
	if cartRow.Expired(now) {
		// Tidy the row while we are here; correctness never depended on it.
		if _, err := s.Carts.SetStatus(ctx, s.Carts.Bun, cartID, models.CartExpired, now); err != nil {
			s.Logger.Warn("PAYMENT", fmt.Sprintf("mark expired cart %s: %v", cartID, err))
		}
		return nil, &errs.GoneError{Msg: "cart has expired, please reserve seats again"}
	}

	view, err := s.Aggregator.View(ctx, cartRow)
	if err != nil {
		return nil, err
	}
	if len(view.Seats) == 0 {
		return nil, errs.Validation("cart is empty")
	}
	seatIDs := make([]string, len(view.Seats))
	for i, seat := range view.Seats {
		seatIDs[i] = seat.SeatID
	}
	lost, err := s.Seats.VerifyHeldBy(ctx, s.Seats.Bun, cartRow.EventID, seatIDs, cartID, now)
	if err != nil {
		return nil, err
	}
	if len(lost) > 0 {
		return nil, &errs.GoneError{Msg: fmt.Sprintf("seats no longer reserved for this cart: %v", lost)}
	}
	if view.TotalCents <= 0 {
		return nil, errs.Validation("invalid total amount")
	}

	// Reuse a still-usable authorization from an earlier attempt.
	if cartRow.PaymentIntentID != "" {
		intent, err := s.Provider.GetIntent(ctx, cartRow.PaymentIntentID)
		if err == nil && intent.Status != "canceled" && intent.Status != StatusSucceeded && intent.AmountCents == view.TotalCents {
			s.Logger.Info("PAYMENT", fmt.Sprintf("reusing payment intent %s for cart %s", intent.ID, cartID))
			return s.response(intent, view), nil
		}
	}

	attempt := cartRow.PaymentAttempts + 1
	intent, err := s.Provider.CreateIntent(ctx, CreateIntentParams{
		AmountCents: view.TotalCents,
		Currency:    s.Currency,
		Metadata: map[string]string{
			"cart_id":    cartID,
			"user_id":    userID,
			"event_id":   cartRow.EventID,
			"seat_count": strconv.Itoa(len(view.Seats)),
		},
		IdempotencyKey: fmt.Sprintf("cart-%s-attempt-%d", cartID, attempt),
	})
	if err != nil {
		return nil, err
	}

	if err := s.Carts.SetPaymentIntent(ctx, s.Carts.Bun, cartID, intent.ID, attempt, now); err != nil {
		return nil, err
	}
	s.Logger.Info("PAYMENT", fmt.Sprintf("created payment intent %s for cart %s (%d %s)", intent.ID, cartID, view.TotalCents, s.Currency))
	return s.response(intent, view), nil
}

func (s *Service) response(intent *Intent, view *models.CartView) *models.PaymentIntentResponse {
	return &models.PaymentIntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		AmountCents:     view.TotalCents,
		Currency:        s.Currency,
		CartID:          view.CartID,
		SeatCount:       len(view.Seats),
	}
}
