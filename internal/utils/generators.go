package utils

import (
	"strings"

	"github.com/google/uuid"
)

// BarcodeLength is the number of characters in a ticket barcode.
const BarcodeLength = 16

// GenerateBarcode returns a 16-character uppercase hex barcode drawn from a
// random UUID. Collisions are possible and handled by the caller through the
// unique constraint on tickets.barcode: regenerate and retry.
func GenerateBarcode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:BarcodeLength])
}

// GenerateID returns a fresh UUID string for carts, orders and tickets.
func GenerateID() string {
	return uuid.NewString()
}
