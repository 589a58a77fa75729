package cart_test

import (
	"context"
	"database/sql"
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
	"ms-boxoffice/internal/inventory"
	"ms-boxoffice/internal/models"
)

func setupAggregator(t *testing.T) (*cart.Aggregator, *bun.DB) {
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
		(*models.Cart)(nil),
		(*models.CartSeat)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}

	event := models.Event{EventID: "evt-1", VenueID: "venue-1", Name: "Test", Status: models.EventOnSale, StartsAt: time.Now().UTC()}
	_, err = bunDB.NewInsert().Model(&event).Exec(ctx)
	require.NoError(t, err)
	seats := []models.Seat{
		{SeatID: "seat-101", VenueID: "venue-1", Section: "FLOOR", RowLabel: "A", SeatNumber: 1},
		{SeatID: "seat-102", VenueID: "venue-1", Section: "FLOOR", RowLabel: "A", SeatNumber: 2},
	}
	_, err = bunDB.NewInsert().Model(&seats).Exec(ctx)
	require.NoError(t, err)
	tier := models.PriceTier{PriceTierID: "tier-1", TierName: "Premium", PriceCents: 9000}
	_, err = bunDB.NewInsert().Model(&tier).Exec(ctx)
	require.NoError(t, err)
	pricing := models.SectionPricing{EventID: "evt-1", Section: "FLOOR", PriceTierID: "tier-1"}
	_, err = bunDB.NewInsert().Model(&pricing).Exec(ctx)
	require.NoError(t, err)

	store := &cartdb.DB{Bun: bunDB}
	cat := catalog.NewService(bunDB, inventory.NewStore(bunDB), nil)
	return cart.NewAggregator(store, cat), bunDB
}

func insertCartWithSeats(t *testing.T, bunDB *bun.DB, cartID, userID string, expiresAt time.Time, prices map[string]int64) *models.Cart {
	t.Helper()
	ctx := context.Background()
	row := &models.Cart{
		CartID:    cartID,
		UserID:    userID,
		EventID:   "evt-1",
		Status:    models.CartOpen,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	_, err := bunDB.NewInsert().Model(row).Exec(ctx)
	require.NoError(t, err)
	for seatID, price := range prices {
		cs := models.CartSeat{CartID: cartID, SeatID: seatID, PriceSnapshot: price, AddedAt: time.Now().UTC()}
		_, err = bunDB.NewInsert().Model(&cs).Exec(ctx)
		require.NoError(t, err)
	}
	return row
}

func TestViewSumsSnapshotPrices(t *testing.T) {
	agg, bunDB := setupAggregator(t)
	defer bunDB.Close()
	ctx := context.Background()

	// Snapshots deliberately differ from the current tier price (9000): the
	// view must report what was locked in at hold time.
	row := insertCartWithSeats(t, bunDB, "cart-1", "user-a", time.Now().UTC().Add(10*time.Minute),
		map[string]int64{"seat-101": 7500, "seat-102": 7500})

	view, err := agg.View(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), view.TotalCents)
	require.Len(t, view.Seats, 2)
	for _, seat := range view.Seats {
		assert.Equal(t, int64(7500), seat.PriceSnapshot)
		assert.Equal(t, "FLOOR", seat.Section)
		assert.Equal(t, "Premium", seat.TierName)
	}
}

func TestViewEmptyCart(t *testing.T) {
	agg, bunDB := setupAggregator(t)
	defer bunDB.Close()

	row := insertCartWithSeats(t, bunDB, "cart-1", "user-a", time.Now().UTC().Add(10*time.Minute), nil)

	view, err := agg.View(context.Background(), row)
	require.NoError(t, err)
	assert.Zero(t, view.TotalCents)
	assert.Empty(t, view.Seats)
}

func TestViewByIDChecksOwnership(t *testing.T) {
	agg, bunDB := setupAggregator(t)
	defer bunDB.Close()
	ctx := context.Background()

	insertCartWithSeats(t, bunDB, "cart-1", "user-a", time.Now().UTC().Add(10*time.Minute), nil)

	_, err := agg.ViewByID(ctx, "cart-1", "user-b")
	var notFound *errs.NotFoundError
	require.ErrorAs(t, err, &notFound)

	view, err := agg.ViewByID(ctx, "cart-1", "user-a")
	require.NoError(t, err)
	assert.Equal(t, "cart-1", view.CartID)
}

func TestOpenForUserFiltersExpiredCarts(t *testing.T) {
	agg, bunDB := setupAggregator(t)
	defer bunDB.Close()
	now := time.Now().UTC()

	insertCartWithSeats(t, bunDB, "cart-live", "user-a", now.Add(10*time.Minute), map[string]int64{"seat-101": 7500})
	insertCartWithSeats(t, bunDB, "cart-stale", "user-a", now.Add(-time.Minute), map[string]int64{"seat-102": 7500})

	views, err := agg.OpenForUser(context.Background(), "user-a", now)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "cart-live", views[0].CartID)
}
