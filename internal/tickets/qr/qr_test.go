package qr_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/tickets/qr"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G'}

func TestEncodeProducesPNG(t *testing.T) {
	gen := qr.NewGenerator("test-secret")

	img, err := gen.Encode(models.Ticket{
		TicketID: "tkt-1",
		Barcode:  "ABCDEF0123456789",
		EventID:  "evt-1",
		SeatID:   "seat-101",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, pngHeader))
}

func TestEncodeEncryptsPerCall(t *testing.T) {
	gen := qr.NewGenerator("test-secret")
	ticket := models.Ticket{TicketID: "tkt-1", Barcode: "ABCDEF0123456789", EventID: "evt-1", SeatID: "seat-101"}

	first, err := gen.Encode(ticket)
	require.NoError(t, err)
	second, err := gen.Encode(ticket)
	require.NoError(t, err)

	// A fresh IV per call means the same ticket never produces the same image.
	assert.NotEqual(t, first, second)
}

func TestShortSecretIsNormalized(t *testing.T) {
	gen := qr.NewGenerator("x")

	_, err := gen.Encode(models.Ticket{TicketID: "tkt-1", Barcode: "ABCDEF0123456789"})
	require.NoError(t, err)
}
