package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/skip2/go-qrcode"

	"ms-boxoffice/internal/models"
)

// payload is what actually rides inside the QR image: just enough for the
// gate to verify a ticket, never the full row.
type payload struct {
	TicketID string `json:"ticket_id"`
	Barcode  string `json:"barcode"`
	EventID  string `json:"event_id"`
	SeatID   string `json:"seat_id"`
}

type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

// Encode renders the ticket's credential as an encrypted QR PNG.
func (g *Generator) Encode(ticket models.Ticket) ([]byte, error) {
	data, err := json.Marshal(payload{
		TicketID: ticket.TicketID,
		Barcode:  ticket.Barcode,
		EventID:  ticket.EventID,
		SeatID:   ticket.SeatID,
	})
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, g.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
