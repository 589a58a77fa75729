package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"ms-boxoffice/internal/cart"
	cartdb "ms-boxoffice/internal/cart/db"
	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/inventory"
	"ms-boxoffice/internal/inventory/cache"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	orderdb "ms-boxoffice/internal/order/db"
	"ms-boxoffice/internal/payment"
	"ms-boxoffice/internal/payment/storage"
	"ms-boxoffice/internal/utils"
)

// barcodeAttempts bounds the regenerate-on-collision loop. The barcode space
// is 16 hex characters, so more than one retry is already extraordinary.
const barcodeAttempts = 5

type EventPublisher interface {
	SeatStatusChanged(eventID string, seatIDs []string, status models.SeatStatus) error
	OrderCreated(order models.Order) error
}

// ReconciliationLog records payments that succeeded at the provider but
// could not be finalized. It must be durable independently of the purchase
// transaction.
type ReconciliationLog interface {
	SaveRecord(ctx context.Context, record *storage.ReconciliationRecord) error
}

// BarcodeEncoder renders a ticket's scannable credential.
type BarcodeEncoder interface {
	Encode(ticket models.Ticket) ([]byte, error)
}

// Finalizer is the commit point of a sale. CompletePurchase either makes the
// order, items, tickets, SOLD seats and CONVERTED cart all visible, or none
// of them.
type Finalizer struct {
	Bun        *bun.DB
	Orders     *orderdb.DB
	Carts      *cartdb.DB
	Seats      *inventory.Store
	Aggregator *cart.Aggregator
	Provider   payment.Provider
	Recon      ReconciliationLog
	Encoder    BarcodeEncoder
	Publisher  EventPublisher
	Cache      *cache.Cache
	Logger     *logger.Logger

	// NewBarcode overrides barcode generation; nil means utils.GenerateBarcode.
	NewBarcode func() string
}

// CompletePurchase finalizes a paid cart. The provider is the sole authority
// on payment state; the caller's claim is only used to look the
// authorization up. Replaying a completed purchase returns the original
// order instead of failing.
func (f *Finalizer) CompletePurchase(ctx context.Context, userID string, req models.CompletePurchaseRequest) (*models.PurchaseResponse, error) {
	if req.PaymentIntentID == "" || req.CartID == "" {
		return nil, errs.Validation("payment_intent_id and cart_id are required")
	}
	now := time.Now().UTC()

	if resp, err := f.replay(ctx, userID, req.PaymentIntentID); resp != nil || err != nil {
		return resp, err
	}

	// Step 1: the provider decides whether money actually moved.
	intent, err := f.Provider.GetIntent(ctx, req.PaymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("verify payment %s: %w", req.PaymentIntentID, err)
	}
	if !intent.Succeeded() {
		return nil, &errs.PaymentNotSucceededError{Status: intent.Status}
	}

	// Step 2: the authorization must have been opened for this cart and user.
	if intent.Metadata["cart_id"] != req.CartID || intent.Metadata["user_id"] != userID {
		f.Logger.LogSecurity("METADATA_MISMATCH",
			fmt.Sprintf("payment %s presented for cart %s by user %s, metadata says cart %s user %s",
				intent.ID, req.CartID, userID, intent.Metadata["cart_id"], intent.Metadata["user_id"]))
		return nil, &errs.SecurityMismatchError{}
	}

	cartRow, err := f.Carts.GetByID(ctx, f.Bun, req.CartID)
	if err != nil {
		return nil, err
	}
	if cartRow == nil || cartRow.UserID != userID {
		return nil, &errs.NotFoundError{Kind: "cart", ID: req.CartID}
	}
	if cartRow.Status != models.CartOpen {
		return nil, &errs.GoneError{Msg: "cart already processed"}
	}

	view, err := f.Aggregator.View(ctx, cartRow)
	if err != nil {
		return nil, err
	}
	if len(view.Seats) == 0 {
		return nil, errs.Validation("cart has no seats")
	}
	if intent.AmountCents != view.TotalCents {
		f.Logger.LogSecurity("AMOUNT_MISMATCH",
			fmt.Sprintf("payment %s amount %d does not match cart %s total %d",
				intent.ID, intent.AmountCents, req.CartID, view.TotalCents))
		return nil, &errs.SecurityMismatchError{}
	}

	seatIDs := make([]string, len(view.Seats))
	for i, seat := range view.Seats {
		seatIDs[i] = seat.SeatID
	}

	order := models.Order{
		OrderID:         utils.GenerateID(),
		UserID:          userID,
		EventID:         cartRow.EventID,
		Status:          models.OrderPaid,
		TotalCents:      view.TotalCents,
		PaymentIntentID: intent.ID,
		CreatedAt:       now,
	}

	var tickets []models.Ticket
	err = f.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// Step 3: claim the cart. Losing this race means a concurrent
		// request (or the reaper) got there first.
		converted, err := f.Carts.SetStatus(ctx, tx, cartRow.CartID, models.CartConverted, now)
		if err != nil {
			return err
		}
		if !converted {
			return &errs.GoneError{Msg: "cart already processed"}
		}

		// Step 4: every seat must still be held by this cart, live. A lost
		// seat after a captured payment is the integrity condition; nothing
		// partial is ever committed.
		lost, err := f.Seats.MarkSold(ctx, tx, cartRow.EventID, seatIDs, cartRow.CartID, now)
		if err != nil {
			return err
		}
		if len(lost) > 0 {
			return &errs.IntegrityError{
				PaymentIntentID: intent.ID,
				CartID:          cartRow.CartID,
				SeatIDs:         lost,
				Reason:          "seats no longer held at finalization",
			}
		}

		// Step 5: order, items and tickets in one shot.
		if err := f.Orders.InsertOrder(ctx, tx, &order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		items := make([]models.OrderItem, len(view.Seats))
		tickets = make([]models.Ticket, len(view.Seats))
		for i, seat := range view.Seats {
			items[i] = models.OrderItem{
				OrderItemID: utils.GenerateID(),
				OrderID:     order.OrderID,
				SeatID:      seat.SeatID,
				PriceCents:  seat.PriceSnapshot,
			}
			ticket, err := f.issueTicket(ctx, tx, order, items[i], now)
			if err != nil {
				return err
			}
			tickets[i] = *ticket
		}
		if err := f.Orders.InsertItems(ctx, tx, items); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		if err := f.Orders.InsertTickets(ctx, tx, tickets); err != nil {
			return fmt.Errorf("insert tickets: %w", err)
		}

		return f.Carts.DeleteAllSeats(ctx, tx, cartRow.CartID)
	})
	if err != nil {
		f.recordIntegrity(ctx, err, userID, cartRow.EventID, seatIDs, view.TotalCents)
		return nil, err
	}

	f.afterFinalize(ctx, order, seatIDs)
	return &models.PurchaseResponse{
		OrderID:         order.OrderID,
		EventID:         order.EventID,
		TotalCents:      order.TotalCents,
		PaymentIntentID: order.PaymentIntentID,
		Tickets:         tickets,
	}, nil
}

// replay returns the already-finalized order for a payment intent, if one
// exists. Completion is idempotent per authorization.
func (f *Finalizer) replay(ctx context.Context, userID, paymentIntentID string) (*models.PurchaseResponse, error) {
	existing, err := f.Orders.ByPaymentIntent(ctx, f.Bun, paymentIntentID)
	if err != nil || existing == nil {
		return nil, err
	}
	if existing.UserID != userID {
		return nil, &errs.SecurityMismatchError{}
	}
	tickets, err := f.Orders.TicketsByOrder(ctx, f.Bun, existing.OrderID)
	if err != nil {
		return nil, err
	}
	f.Logger.LogOrder("REPLAY", existing.OrderID,
		fmt.Sprintf("purchase already finalized for payment %s", paymentIntentID))
	return &models.PurchaseResponse{
		OrderID:         existing.OrderID,
		EventID:         existing.EventID,
		TotalCents:      existing.TotalCents,
		PaymentIntentID: existing.PaymentIntentID,
		Tickets:         tickets,
	}, nil
}

func (f *Finalizer) issueTicket(ctx context.Context, tx bun.Tx, order models.Order, item models.OrderItem, now time.Time) (*models.Ticket, error) {
	generate := f.NewBarcode
	if generate == nil {
		generate = utils.GenerateBarcode
	}
	barcode := ""
	for attempt := 0; attempt < barcodeAttempts; attempt++ {
		candidate := generate()
		exists, err := f.Orders.BarcodeExists(ctx, tx, candidate)
		if err != nil {
			return nil, fmt.Errorf("check barcode: %w", err)
		}
		if !exists {
			barcode = candidate
			break
		}
	}
	if barcode == "" {
		return nil, fmt.Errorf("could not generate a unique barcode for order %s", order.OrderID)
	}

	ticket := models.Ticket{
		TicketID:    utils.GenerateID(),
		OrderID:     order.OrderID,
		OrderItemID: item.OrderItemID,
		EventID:     order.EventID,
		SeatID:      item.SeatID,
		UserID:      order.UserID,
		Barcode:     barcode,
		Status:      models.TicketIssued,
		PriceCents:  item.PriceCents,
		IssuedAt:    now,
	}
	if f.Encoder != nil {
		qr, err := f.Encoder.Encode(ticket)
		if err != nil {
			return nil, fmt.Errorf("encode ticket %s: %w", ticket.TicketID, err)
		}
		ticket.QRCode = qr
	}
	return &ticket, nil
}

// recordIntegrity persists the money-captured-but-not-finalized condition.
// The incident record must survive even though the purchase rolled back.
func (f *Finalizer) recordIntegrity(ctx context.Context, err error, userID, eventID string, seatIDs []string, amountCents int64) {
	var integrity *errs.IntegrityError
	if !errors.As(err, &integrity) {
		return
	}
	f.Logger.Error("INTEGRITY", integrity.Error())
	if f.Recon == nil {
		return
	}
	record := &storage.ReconciliationRecord{
		RecordID:        utils.GenerateID(),
		PaymentIntentID: integrity.PaymentIntentID,
		CartID:          integrity.CartID,
		UserID:          userID,
		EventID:         eventID,
		SeatIDs:         strings.Join(seatIDs, ","),
		AmountCents:     amountCents,
		Reason:          integrity.Reason,
		Status:          storage.ReconciliationOpen,
		CreatedAt:       time.Now().UTC(),
	}
	if saveErr := f.Recon.SaveRecord(ctx, record); saveErr != nil {
		f.Logger.Error("INTEGRITY",
			fmt.Sprintf("failed to record reconciliation entry for payment %s: %v",
				integrity.PaymentIntentID, saveErr))
	}
}

func (f *Finalizer) afterFinalize(ctx context.Context, order models.Order, seatIDs []string) {
	f.Logger.LogOrder("FINALIZED", order.OrderID,
		fmt.Sprintf("%d seats sold for event %s (%d cents)", len(seatIDs), order.EventID, order.TotalCents))
	if f.Cache != nil {
		f.Cache.Invalidate(ctx, order.EventID)
	}
	if f.Publisher != nil {
		if err := f.Publisher.SeatStatusChanged(order.EventID, seatIDs, models.SeatSold); err != nil {
			f.Logger.Warn("KAFKA", fmt.Sprintf("publish seat status for order %s: %v", order.OrderID, err))
		}
		if err := f.Publisher.OrderCreated(order); err != nil {
			f.Logger.Warn("KAFKA", fmt.Sprintf("publish order created %s: %v", order.OrderID, err))
		}
	}
}

// GetOrder returns one of the user's orders with its tickets.
func (f *Finalizer) GetOrder(ctx context.Context, orderID, userID string) (*models.OrderWithTickets, error) {
	order, err := f.Orders.GetByID(ctx, f.Bun, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.UserID != userID {
		return nil, &errs.NotFoundError{Kind: "order", ID: orderID}
	}
	tickets, err := f.Orders.TicketsByOrder(ctx, f.Bun, orderID)
	if err != nil {
		return nil, err
	}
	return &models.OrderWithTickets{Order: *order, Tickets: tickets}, nil
}

// ListOrders returns the user's purchase history, newest first.
func (f *Finalizer) ListOrders(ctx context.Context, userID string) ([]models.OrderWithTickets, error) {
	return f.Orders.ListByUser(ctx, f.Bun, userID)
}
