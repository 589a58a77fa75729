package tickets_test

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

	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/inventory"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/tickets"
	ticketdb "ms-boxoffice/internal/tickets/db"
)

func setupService(t *testing.T) (*tickets.Service, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.SeatStatusRecord)(nil),
		(*models.Ticket)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}

	svc := &tickets.Service{
		Bun:    bunDB,
		DB:     &ticketdb.DB{Bun: bunDB},
		Seats:  inventory.NewStore(bunDB),
		Logger: logger.NewTestLogger(),
	}
	return svc, bunDB
}

func issueTicket(t *testing.T, bunDB *bun.DB, ticketID, barcode, userID string) models.Ticket {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	seat := models.SeatStatusRecord{
		EventID: "evt-1",
		SeatID:  "seat-" + ticketID,
		Status:  models.SeatSold,
		Version: 3,
	}
	_, err := bunDB.NewInsert().Model(&seat).Exec(ctx)
	require.NoError(t, err)

	ticket := models.Ticket{
		TicketID:    ticketID,
		OrderID:     "ord-1",
		OrderItemID: "item-" + ticketID,
		EventID:     "evt-1",
		SeatID:      seat.SeatID,
		UserID:      userID,
		Barcode:     barcode,
		Status:      models.TicketIssued,
		PriceCents:  7500,
		IssuedAt:    now,
	}
	_, err = bunDB.NewInsert().Model(&ticket).Exec(ctx)
	require.NoError(t, err)
	return ticket
}

func TestScanAdmitsIssuedTicketOnce(t *testing.T) {
	svc, bunDB := setupService(t)
	defer bunDB.Close()
	ctx := context.Background()

	issueTicket(t, bunDB, "tkt-1", "ABCDEF0123456789", "user-a")

	scanned, err := svc.Scan(ctx, "ABCDEF0123456789")
	require.NoError(t, err)
	assert.Equal(t, models.TicketScanned, scanned.Status)
	assert.False(t, scanned.ScannedAt.IsZero())

	_, err = svc.Scan(ctx, "ABCDEF0123456789")
	var conflict *errs.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Msg, "already scanned at")
	assert.Contains(t, conflict.Msg, scanned.ScannedAt.Format(time.RFC3339))
}

func TestScanUnknownBarcode(t *testing.T) {
	svc, bunDB := setupService(t)
	defer bunDB.Close()

	_, err := svc.Scan(context.Background(), "0000000000000000")
	var notFound *errs.NotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = svc.Scan(context.Background(), "")
	var validation *errs.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestScanRejectsVoidedTicket(t *testing.T) {
	svc, bunDB := setupService(t)
	defer bunDB.Close()
	ctx := context.Background()

	issueTicket(t, bunDB, "tkt-1", "ABCDEF0123456789", "user-a")
	_, err := svc.Void(ctx, "tkt-1")
	require.NoError(t, err)

	_, err = svc.Scan(ctx, "ABCDEF0123456789")
	var conflict *errs.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Msg, "voided")
}

func TestVoidReleasesSeat(t *testing.T) {
	svc, bunDB := setupService(t)
	defer bunDB.Close()
	ctx := context.Background()

	ticket := issueTicket(t, bunDB, "tkt-1", "ABCDEF0123456789", "user-a")

	voided, err := svc.Void(ctx, "tkt-1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketVoided, voided.Status)
	assert.False(t, voided.VoidedAt.IsZero())

	var seat models.SeatStatusRecord
	err = bunDB.NewSelect().Model(&seat).
		Where("event_id = ? AND seat_id = ?", "evt-1", ticket.SeatID).
		Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SeatAvailable, seat.Status)
	assert.Equal(t, int64(4), seat.Version)
}

func TestVoidRejectsScannedTicket(t *testing.T) {
	svc, bunDB := setupService(t)
	defer bunDB.Close()
	ctx := context.Background()

	issueTicket(t, bunDB, "tkt-1", "ABCDEF0123456789", "user-a")
	_, err := svc.Scan(ctx, "ABCDEF0123456789")
	require.NoError(t, err)

	_, err = svc.Void(ctx, "tkt-1")
	var conflict *errs.ConflictError
	require.ErrorAs(t, err, &conflict)

	// The seat stays sold: an admitted ticket's seat is not resellable.
	var seat models.SeatStatusRecord
	err = bunDB.NewSelect().Model(&seat).Where("seat_id = ?", "seat-tkt-1").Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SeatSold, seat.Status)
}

func TestVoidUnknownTicket(t *testing.T) {
	svc, bunDB := setupService(t)
	defer bunDB.Close()

	_, err := svc.Void(context.Background(), "tkt-ghost")
	var notFound *errs.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestGetTicketChecksOwnership(t *testing.T) {
	svc, bunDB := setupService(t)
	defer bunDB.Close()
	ctx := context.Background()

	issueTicket(t, bunDB, "tkt-1", "ABCDEF0123456789", "user-a")

	got, err := svc.GetTicket(ctx, "tkt-1", "user-a")
	require.NoError(t, err)
	assert.Equal(t, "ABCDEF0123456789", got.Barcode)

	_, err = svc.GetTicket(ctx, "tkt-1", "user-b")
	var notFound *errs.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestListByUser(t *testing.T) {
	svc, bunDB := setupService(t)
	defer bunDB.Close()
	ctx := context.Background()

	issueTicket(t, bunDB, "tkt-1", "ABCDEF0123456789", "user-a")
	issueTicket(t, bunDB, "tkt-2", "ABCDEF0123456780", "user-a")
	issueTicket(t, bunDB, "tkt-3", "ABCDEF0123456781", "user-b")

	list, err := svc.ListByUser(ctx, "user-a")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
