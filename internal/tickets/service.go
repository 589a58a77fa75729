package tickets

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/inventory"
	"ms-boxoffice/internal/inventory/cache"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	ticketdb "ms-boxoffice/internal/tickets/db"
)

type EventPublisher interface {
	SeatStatusChanged(eventID string, seatIDs []string, status models.SeatStatus) error
}

// Service owns the post-sale ticket lifecycle: buyers read their tickets,
// gate staff scan them, operators void them. Issuing stays with the order
// finalizer.
type Service struct {
	Bun       *bun.DB
	DB        *ticketdb.DB
	Seats     *inventory.Store
	Publisher EventPublisher
	Cache     *cache.Cache
	Logger    *logger.Logger
}

// GetTicket returns one of the user's tickets.
func (s *Service) GetTicket(ctx context.Context, ticketID, userID string) (*models.Ticket, error) {
	ticket, err := s.DB.GetByID(ctx, s.Bun, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil || ticket.UserID != userID {
		return nil, &errs.NotFoundError{Kind: "ticket", ID: ticketID}
	}
	return ticket, nil
}

// ListByUser returns all the user's tickets, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	return s.DB.ListByUser(ctx, s.Bun, userID)
}

// Scan admits a ticket at the gate. Only an ISSUED ticket admits; a second
// scan of the same barcode is rejected with the original scan time.
func (s *Service) Scan(ctx context.Context, barcode string) (*models.Ticket, error) {
	if barcode == "" {
		return nil, errs.Validation("barcode is required")
	}
	now := time.Now().UTC()

	ticket, err := s.DB.GetByBarcode(ctx, s.Bun, barcode)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, &errs.NotFoundError{Kind: "ticket", ID: barcode}
	}

	scanned, err := s.DB.SetScanned(ctx, s.Bun, ticket.TicketID, now)
	if err != nil {
		return nil, err
	}
	if !scanned {
		// Lost the guard: report the state we actually raced with.
		current, err := s.DB.GetByID(ctx, s.Bun, ticket.TicketID)
		if err != nil {
			return nil, err
		}
		switch current.Status {
		case models.TicketScanned:
			return nil, &errs.ConflictError{
				Msg: fmt.Sprintf("ticket already scanned at %s", current.ScannedAt.Format(time.RFC3339)),
			}
		case models.TicketVoided:
			return nil, &errs.ConflictError{Msg: "ticket has been voided"}
		default:
			return nil, &errs.ConflictError{Msg: "ticket cannot be scanned"}
		}
	}

	ticket.Status = models.TicketScanned
	ticket.ScannedAt = now
	s.Logger.Info("TICKET", fmt.Sprintf("ticket %s scanned for event %s seat %s", ticket.TicketID, ticket.EventID, ticket.SeatID))
	return ticket, nil
}

// Void cancels an ISSUED ticket and returns its seat to the open pool. The
// ticket flip and the seat release commit together.
func (s *Service) Void(ctx context.Context, ticketID string) (*models.Ticket, error) {
	now := time.Now().UTC()

	ticket, err := s.DB.GetByID(ctx, s.Bun, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, &errs.NotFoundError{Kind: "ticket", ID: ticketID}
	}

	err = s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		voided, err := s.DB.SetVoided(ctx, tx, ticketID, now)
		if err != nil {
			return err
		}
		if !voided {
			return &errs.ConflictError{
				Msg: fmt.Sprintf("ticket cannot be voided from status %s", ticket.Status),
			}
		}
		released, err := s.Seats.VoidSold(ctx, tx, ticket.EventID, ticket.SeatID, now)
		if err != nil {
			return err
		}
		if !released {
			return fmt.Errorf("seat %s for voided ticket %s was not SOLD", ticket.SeatID, ticketID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ticket.Status = models.TicketVoided
	ticket.VoidedAt = now
	s.afterVoid(ctx, ticket)
	return ticket, nil
}

func (s *Service) afterVoid(ctx context.Context, ticket *models.Ticket) {
	s.Logger.Info("TICKET", fmt.Sprintf("ticket %s voided, seat %s released for event %s", ticket.TicketID, ticket.SeatID, ticket.EventID))
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, ticket.EventID)
	}
	if s.Publisher != nil {
		if err := s.Publisher.SeatStatusChanged(ticket.EventID, []string{ticket.SeatID}, models.SeatAvailable); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("publish seat release for ticket %s: %v", ticket.TicketID, err))
		}
	}
}
