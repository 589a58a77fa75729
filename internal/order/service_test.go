package order_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-boxoffice/internal/cart"
	cartdb "ms-boxoffice/internal/cart/db"
	"ms-boxoffice/internal/catalog"
	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/hold"
	"ms-boxoffice/internal/inventory"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/order"
	orderdb "ms-boxoffice/internal/order/db"
	"ms-boxoffice/internal/payment"
	"ms-boxoffice/internal/payment/storage"
)

// fakeProvider serves intents from memory so the finalizer's verification
// path runs without the real payment backend.
type fakeProvider struct {
	intents map[string]*payment.Intent
	created int
}

func (p *fakeProvider) CreateIntent(ctx context.Context, params payment.CreateIntentParams) (*payment.Intent, error) {
	p.created++
	intent := &payment.Intent{
		ID:           fmt.Sprintf("pi_test_%d", p.created),
		ClientSecret: fmt.Sprintf("pi_test_%d_secret", p.created),
		Status:       "requires_payment_method",
		AmountCents:  params.AmountCents,
		Currency:     params.Currency,
		Metadata:     params.Metadata,
	}
	p.intents[intent.ID] = intent
	return intent, nil
}

func (p *fakeProvider) GetIntent(ctx context.Context, id string) (*payment.Intent, error) {
	intent, ok := p.intents[id]
	if !ok {
		return nil, fmt.Errorf("no such payment intent %s", id)
	}
	return intent, nil
}

type fakeReconLog struct {
	records []*storage.ReconciliationRecord
}

func (l *fakeReconLog) SaveRecord(ctx context.Context, record *storage.ReconciliationRecord) error {
	l.records = append(l.records, record)
	return nil
}

type fixture struct {
	bun       *bun.DB
	holds     *hold.Service
	finalizer *order.Finalizer
	provider  *fakeProvider
	recon     *fakeReconLog
	carts     *cartdb.DB
	seats     *inventory.Store
}

func setupFixture(t *testing.T) *fixture {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Event)(nil),
		(*models.Seat)(nil),
		(*models.PriceTier)(nil),
		(*models.SectionPricing)(nil),
		(*models.SeatStatusRecord)(nil),
		(*models.Cart)(nil),
		(*models.CartSeat)(nil),
		(*models.Order)(nil),
		(*models.OrderItem)(nil),
		(*models.Ticket)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}

	event := models.Event{EventID: "evt-1", VenueID: "venue-1", Name: "Test Concert", Status: models.EventOnSale, StartsAt: time.Now().UTC().Add(24 * time.Hour)}
	_, err = bunDB.NewInsert().Model(&event).Exec(ctx)
	require.NoError(t, err)
	seats := []models.Seat{
		{SeatID: "seat-101", VenueID: "venue-1", Section: "FLOOR", RowLabel: "A", SeatNumber: 1},
		{SeatID: "seat-102", VenueID: "venue-1", Section: "FLOOR", RowLabel: "A", SeatNumber: 2},
	}
	_, err = bunDB.NewInsert().Model(&seats).Exec(ctx)
	require.NoError(t, err)
	tier := models.PriceTier{PriceTierID: "tier-1", TierName: "Premium", PriceCents: 7500}
	_, err = bunDB.NewInsert().Model(&tier).Exec(ctx)
	require.NoError(t, err)
	pricing := models.SectionPricing{EventID: "evt-1", Section: "FLOOR", PriceTierID: "tier-1"}
	_, err = bunDB.NewInsert().Model(&pricing).Exec(ctx)
	require.NoError(t, err)

	seatStore := inventory.NewStore(bunDB)
	cartStore := &cartdb.DB{Bun: bunDB}
	cat := catalog.NewService(bunDB, seatStore, nil)
	agg := cart.NewAggregator(cartStore, cat)
	provider := &fakeProvider{intents: map[string]*payment.Intent{}}
	recon := &fakeReconLog{}

	holds := hold.NewService(bunDB, seatStore, cartStore, cat, nil, nil, logger.NewTestLogger(), 10*time.Minute)
	finalizer := &order.Finalizer{
		Bun:        bunDB,
		Orders:     &orderdb.DB{Bun: bunDB},
		Carts:      cartStore,
		Seats:      seatStore,
		Aggregator: agg,
		Provider:   provider,
		Recon:      recon,
		Logger:     logger.NewTestLogger(),
	}
	return &fixture{bun: bunDB, holds: holds, finalizer: finalizer, provider: provider, recon: recon, carts: cartStore, seats: seatStore}
}

// heldCart reserves the given seats and registers a succeeded authorization
// for the cart's total, the state a buyer is in right before completion.
func (f *fixture) heldCart(t *testing.T, userID string, seatIDs []string) (string, string) {
	t.Helper()
	ctx := context.Background()
	resp, err := f.holds.Reserve(ctx, "evt-1", userID, models.ReserveRequest{SeatIDs: seatIDs})
	require.NoError(t, err)

	intent, err := f.provider.CreateIntent(ctx, payment.CreateIntentParams{
		AmountCents: int64(len(seatIDs)) * 7500,
		Currency:    "usd",
		Metadata:    map[string]string{"cart_id": resp.CartID, "user_id": userID, "event_id": "evt-1"},
	})
	require.NoError(t, err)
	intent.Status = payment.StatusSucceeded
	return resp.CartID, intent.ID
}

func TestCompletePurchaseFinalizesCart(t *testing.T) {
	f := setupFixture(t)
	defer f.bun.Close()
	ctx := context.Background()

	cartID, intentID := f.heldCart(t, "user-a", []string{"seat-101", "seat-102"})

	resp, err := f.finalizer.CompletePurchase(ctx, "user-a", models.CompletePurchaseRequest{
		PaymentIntentID: intentID,
		CartID:          cartID,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.OrderID)
	assert.Equal(t, int64(15000), resp.TotalCents)
	assert.Equal(t, intentID, resp.PaymentIntentID)
	require.Len(t, resp.Tickets, 2)

	barcodes := map[string]bool{}
	for _, ticket := range resp.Tickets {
		assert.Equal(t, models.TicketIssued, ticket.Status)
		assert.Len(t, ticket.Barcode, 16)
		barcodes[ticket.Barcode] = true
	}
	assert.Len(t, barcodes, 2, "barcodes must be distinct")

	var records []models.SeatStatusRecord
	err = f.bun.NewSelect().Model(&records).Where("event_id = ?", "evt-1").Scan(ctx)
	require.NoError(t, err)
	for _, rec := range records {
		assert.Equal(t, models.SeatSold, rec.Status)
	}

	cartRow, err := f.carts.GetByID(ctx, f.bun, cartID)
	require.NoError(t, err)
	assert.Equal(t, models.CartConverted, cartRow.Status)

	cartSeats, err := f.carts.SeatsByCart(ctx, f.bun, cartID)
	require.NoError(t, err)
	assert.Empty(t, cartSeats)

	itemCount, err := f.bun.NewSelect().Model((*models.OrderItem)(nil)).Where("order_id = ?", resp.OrderID).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, itemCount)
}

func TestCompletePurchaseIsIdempotent(t *testing.T) {
	f := setupFixture(t)
	defer f.bun.Close()
	ctx := context.Background()

	cartID, intentID := f.heldCart(t, "user-a", []string{"seat-101"})
	req := models.CompletePurchaseRequest{PaymentIntentID: intentID, CartID: cartID}

	first, err := f.finalizer.CompletePurchase(ctx, "user-a", req)
	require.NoError(t, err)
	second, err := f.finalizer.CompletePurchase(ctx, "user-a", req)
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.TotalCents, second.TotalCents)
	require.Len(t, second.Tickets, 1)
	assert.Equal(t, first.Tickets[0].Barcode, second.Tickets[0].Barcode)

	orderCount, err := f.bun.NewSelect().Model((*models.Order)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, orderCount)
}

func TestCompletePurchaseRejectsUnpaidIntent(t *testing.T) {
	f := setupFixture(t)
	defer f.bun.Close()
	ctx := context.Background()

	cartID, intentID := f.heldCart(t, "user-a", []string{"seat-101"})
	f.provider.intents[intentID].Status = "requires_payment_method"

	_, err := f.finalizer.CompletePurchase(ctx, "user-a", models.CompletePurchaseRequest{
		PaymentIntentID: intentID,
		CartID:          cartID,
	})
	var notPaid *errs.PaymentNotSucceededError
	require.ErrorAs(t, err, &notPaid)
	assert.Equal(t, "requires_payment_method", notPaid.Status)
}

func TestCompletePurchaseRejectsForeignIntent(t *testing.T) {
	f := setupFixture(t)
	defer f.bun.Close()
	ctx := context.Background()

	cartID, _ := f.heldCart(t, "user-a", []string{"seat-101"})
	// An authorization opened for a different cart must not finalize this one.
	otherCartID, otherIntentID := f.heldCart(t, "user-b", []string{"seat-102"})

	_, err := f.finalizer.CompletePurchase(ctx, "user-a", models.CompletePurchaseRequest{
		PaymentIntentID: otherIntentID,
		CartID:          cartID,
	})
	var mismatch *errs.SecurityMismatchError
	require.ErrorAs(t, err, &mismatch)

	_, err = f.finalizer.CompletePurchase(ctx, "user-a", models.CompletePurchaseRequest{
		PaymentIntentID: otherIntentID,
		CartID:          otherCartID,
	})
	require.ErrorAs(t, err, &mismatch)
}

func TestCompletePurchaseRetriesCollidingBarcode(t *testing.T) {
	f := setupFixture(t)
	defer f.bun.Close()
	ctx := context.Background()

	// A ticket from an earlier sale already owns the first candidate.
	prior := models.Ticket{
		TicketID:    "tkt-prior",
		OrderID:     "ord-prior",
		OrderItemID: "itm-prior",
		EventID:     "evt-1",
		SeatID:      "seat-900",
		UserID:      "user-z",
		Barcode:     "AAAA1111BBBB2222",
		Status:      models.TicketIssued,
		PriceCents:  7500,
		IssuedAt:    time.Now().UTC(),
	}
	_, err := f.bun.NewInsert().Model(&prior).Exec(ctx)
	require.NoError(t, err)

	codes := []string{"AAAA1111BBBB2222", "CCCC3333DDDD4444"}
	f.finalizer.NewBarcode = func() string {
		next := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return next
	}

	cartID, intentID := f.heldCart(t, "user-a", []string{"seat-101"})
	resp, err := f.finalizer.CompletePurchase(ctx, "user-a", models.CompletePurchaseRequest{
		PaymentIntentID: intentID,
		CartID:          cartID,
	})
	require.NoError(t, err)
	require.Len(t, resp.Tickets, 1)
	assert.Equal(t, "CCCC3333DDDD4444", resp.Tickets[0].Barcode,
		"a taken barcode must be regenerated, not reused")
}

func TestCompletePurchaseRejectsAmountDrift(t *testing.T) {
	f := setupFixture(t)
	defer f.bun.Close()
	ctx := context.Background()

	cartID, intentID := f.heldCart(t, "user-a", []string{"seat-101"})
	f.provider.intents[intentID].AmountCents = 100

	_, err := f.finalizer.CompletePurchase(ctx, "user-a", models.CompletePurchaseRequest{
		PaymentIntentID: intentID,
		CartID:          cartID,
	})
	var mismatch *errs.SecurityMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestCompletePurchaseLostHoldRollsBackAndRecords(t *testing.T) {
	f := setupFixture(t)
	defer f.bun.Close()
	ctx := context.Background()

	cartID, intentID := f.heldCart(t, "user-a", []string{"seat-101", "seat-102"})

	// The hold lapses between payment capture and completion.
	past := time.Now().UTC().Add(-time.Minute)
	_, err := f.bun.NewUpdate().
		Model((*models.SeatStatusRecord)(nil)).
		Set("hold_expires_at = ?", past).
		Where("seat_id = ?", "seat-102").
		Exec(ctx)
	require.NoError(t, err)

	_, err = f.finalizer.CompletePurchase(ctx, "user-a", models.CompletePurchaseRequest{
		PaymentIntentID: intentID,
		CartID:          cartID,
	})
	var integrity *errs.IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, []string{"seat-102"}, integrity.SeatIDs)

	// Nothing partial committed: no order, no tickets, cart still open.
	orderCount, err := f.bun.NewSelect().Model((*models.Order)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, orderCount)
	ticketCount, err := f.bun.NewSelect().Model((*models.Ticket)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, ticketCount)

	cartRow, err := f.carts.GetByID(ctx, f.bun, cartID)
	require.NoError(t, err)
	assert.Equal(t, models.CartOpen, cartRow.Status)

	// The captured-but-unfinalized payment is durably flagged for manual
	// reconciliation.
	require.Len(t, f.recon.records, 1)
	rec := f.recon.records[0]
	assert.Equal(t, intentID, rec.PaymentIntentID)
	assert.Equal(t, cartID, rec.CartID)
	assert.Equal(t, int64(15000), rec.AmountCents)
	assert.Equal(t, storage.ReconciliationOpen, rec.Status)
}

func TestCompletePurchaseUnknownCart(t *testing.T) {
	f := setupFixture(t)
	defer f.bun.Close()
	ctx := context.Background()

	intent, err := f.provider.CreateIntent(ctx, payment.CreateIntentParams{
		AmountCents: 7500,
		Currency:    "usd",
		Metadata:    map[string]string{"cart_id": "cart-ghost", "user_id": "user-a"},
	})
	require.NoError(t, err)
	intent.Status = payment.StatusSucceeded

	_, err = f.finalizer.CompletePurchase(ctx, "user-a", models.CompletePurchaseRequest{
		PaymentIntentID: intent.ID,
		CartID:          "cart-ghost",
	})
	var notFound *errs.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestGetOrderChecksOwnership(t *testing.T) {
	f := setupFixture(t)
	defer f.bun.Close()
	ctx := context.Background()

	cartID, intentID := f.heldCart(t, "user-a", []string{"seat-101"})
	resp, err := f.finalizer.CompletePurchase(ctx, "user-a", models.CompletePurchaseRequest{
		PaymentIntentID: intentID,
		CartID:          cartID,
	})
	require.NoError(t, err)

	got, err := f.finalizer.GetOrder(ctx, resp.OrderID, "user-a")
	require.NoError(t, err)
	assert.Equal(t, resp.OrderID, got.Order.OrderID)
	require.Len(t, got.Tickets, 1)

	_, err = f.finalizer.GetOrder(ctx, resp.OrderID, "user-b")
	var notFound *errs.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestListOrdersNewestFirst(t *testing.T) {
	f := setupFixture(t)
	defer f.bun.Close()
	ctx := context.Background()

	cartID, intentID := f.heldCart(t, "user-a", []string{"seat-101"})
	first, err := f.finalizer.CompletePurchase(ctx, "user-a", models.CompletePurchaseRequest{
		PaymentIntentID: intentID,
		CartID:          cartID,
	})
	require.NoError(t, err)

	cartID2, intentID2 := f.heldCart(t, "user-a", []string{"seat-102"})
	second, err := f.finalizer.CompletePurchase(ctx, "user-a", models.CompletePurchaseRequest{
		PaymentIntentID: intentID2,
		CartID:          cartID2,
	})
	require.NoError(t, err)

	orders, err := f.finalizer.ListOrders(ctx, "user-a")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	got := []string{orders[0].Order.OrderID, orders[1].Order.OrderID}
	assert.ElementsMatch(t, []string{first.OrderID, second.OrderID}, got)
}
