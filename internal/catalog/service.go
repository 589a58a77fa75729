package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/inventory"
	"ms-boxoffice/internal/inventory/cache"
	"ms-boxoffice/internal/models"

	"github.com/uptrace/bun"
)

// Service is the read-only Event/Catalog collaborator: sellability, seat
// labels and current tier pricing. The reservation core never writes catalog
// data.
type Service struct {
	Bun     *bun.DB
	Seats   *inventory.Store
	Summary *cache.Cache
}

func NewService(bunDB *bun.DB, seats *inventory.Store, summary *cache.Cache) *Service {
	return &Service{Bun: bunDB, Seats: seats, Summary: summary}
}

// GetEvent fetches one event or a NotFoundError.
func (s *Service) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := s.Bun.NewSelect().
		Model(&event).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &errs.NotFoundError{Kind: "event", ID: eventID}
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return &event, nil
}

type pricedSeat struct {
	SeatID     string `bun:"seat_id"`
	Section    string `bun:"section"`
	RowLabel   string `bun:"row_label"`
	SeatNumber int    `bun:"seat_number"`
	TierName   string `bun:"tier_name"`
	PriceCents int64  `bun:"price_cents"`
}

func (s *Service) pricedSeats(ctx context.Context, event *models.Event) ([]pricedSeat, error) {
	var rows []pricedSeat
	err := s.Bun.NewSelect().
		TableExpr("seats AS s").
		ColumnExpr("s.seat_id, s.section, s.row_label, s.seat_number").
		ColumnExpr("COALESCE(pt.tier_name, '') AS tier_name").
		ColumnExpr("COALESCE(pt.price_cents, 0) AS price_cents").
		Join("LEFT JOIN section_pricing AS sp ON sp.section = s.section AND sp.event_id = ?", event.EventID).
		Join("LEFT JOIN price_tiers AS pt ON pt.price_tier_id = sp.price_tier_id").
		Where("s.venue_id = ?", event.VenueID).
		OrderExpr("s.section, s.row_label, s.seat_number").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("load priced seats for event %s: %w", event.EventID, err)
	}
	return rows, nil
}

// SeatPricing resolves labels and the current tier price for the given
// seats. Every requested seat must exist in the event's venue.
func (s *Service) SeatPricing(ctx context.Context, eventID string, seatIDs []string) (map[string]models.SeatPricing, error) {
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	var rows []pricedSeat
	err = s.Bun.NewSelect().
		TableExpr("seats AS s").
		ColumnExpr("s.seat_id, s.section, s.row_label, s.seat_number").
		ColumnExpr("COALESCE(pt.tier_name, '') AS tier_name").
		ColumnExpr("COALESCE(pt.price_cents, 0) AS price_cents").
		Join("LEFT JOIN section_pricing AS sp ON sp.section = s.section AND sp.event_id = ?", eventID).
		Join("LEFT JOIN price_tiers AS pt ON pt.price_tier_id = sp.price_tier_id").
		Where("s.venue_id = ?", event.VenueID).
		Where("s.seat_id IN (?)", bun.In(seatIDs)).
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("load seat pricing: %w", err)
	}
	pricing := make(map[string]models.SeatPricing, len(rows))
	for _, row := range rows {
		pricing[row.SeatID] = models.SeatPricing{
			SeatID:     row.SeatID,
			Section:    row.Section,
			RowLabel:   row.RowLabel,
			SeatNumber: row.SeatNumber,
			TierName:   row.TierName,
			PriceCents: row.PriceCents,
		}
	}
	for _, seatID := range seatIDs {
		if _, ok := pricing[seatID]; !ok {
			return nil, errs.Validation("seat %s does not exist for event %s", seatID, eventID)
		}
	}
	return pricing, nil
}

// BestAvailable picks up to qty logically available seats from a section.
// The selection is only a candidate list: the hold transition decides who
// actually wins each seat.
func (s *Service) BestAvailable(ctx context.Context, event *models.Event, section string, qty int, now time.Time) ([]string, error) {
	var seats []models.Seat
	err := s.Bun.NewSelect().
		Model(&seats).
		Where("venue_id = ?", event.VenueID).
		Where("section = ?", section).
		Order("row_label", "seat_number").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load section %s: %w", section, err)
	}
	status, err := s.Seats.ListByEvent(ctx, event.EventID)
	if err != nil {
		return nil, err
	}
	picked := make([]string, 0, qty)
	for _, seat := range seats {
		if status[seat.SeatID].EffectiveStatus(now) == models.SeatAvailable {
			picked = append(picked, seat.SeatID)
			if len(picked) == qty {
				break
			}
		}
	}
	if len(picked) < qty {
		return nil, &errs.ConflictError{
			Msg: fmt.Sprintf("not enough available seats in %s (requested %d, available %d)", section, qty, len(picked)),
		}
	}
	return picked, nil
}

// SeatMap returns every seat of the event's venue with its logical
// availability and current pricing.
func (s *Service) SeatMap(ctx context.Context, eventID string, now time.Time) ([]models.SeatAvailabilityView, error) {
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	priced, err := s.pricedSeats(ctx, event)
	if err != nil {
		return nil, err
	}
	status, err := s.Seats.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	views := make([]models.SeatAvailabilityView, 0, len(priced))
	for _, row := range priced {
		views = append(views, models.SeatAvailabilityView{
			SeatID:       row.SeatID,
			Section:      row.Section,
			RowLabel:     row.RowLabel,
			SeatNumber:   row.SeatNumber,
			Availability: status[row.SeatID].EffectiveStatus(now),
			TierName:     row.TierName,
			PriceCents:   row.PriceCents,
		})
	}
	return views, nil
}

// InventorySummary aggregates availability per section. The result is cached
// in Redis; transitions invalidate the event's entry, and the summary never
// reveals holder identity. A stale entry within the TTL is acceptable for
// this endpoint.
func (s *Service) InventorySummary(ctx context.Context, eventID string, now time.Time) (*models.InventorySummary, error) {
	if s.Summary != nil {
		if cached, ok := s.Summary.Get(ctx, eventID); ok {
			return cached, nil
		}
	}
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	priced, err := s.pricedSeats(ctx, event)
	if err != nil {
		return nil, err
	}
	status, err := s.Seats.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	summary := &models.InventorySummary{EventID: eventID, EventStatus: event.Status}
	bySection := make(map[string]*models.SectionInventory)
	var order []string
	for _, row := range priced {
		section, ok := bySection[row.Section]
		if !ok {
			section = &models.SectionInventory{
				Section:    row.Section,
				TierName:   row.TierName,
				PriceCents: row.PriceCents,
			}
			bySection[row.Section] = section
			order = append(order, row.Section)
		}
		section.TotalSeats++
		switch status[row.SeatID].EffectiveStatus(now) {
		case models.SeatAvailable:
			section.Available++
		case models.SeatHeld:
			section.Held++
		case models.SeatSold:
			section.Sold++
		}
	}
	for _, name := range order {
		section := bySection[name]
		summary.Sections = append(summary.Sections, *section)
		summary.TotalSeats += section.TotalSeats
		summary.Available += section.Available
		summary.Held += section.Held
		summary.Sold += section.Sold
	}

	if s.Summary != nil {
		s.Summary.Set(ctx, eventID, summary)
	}
	return summary, nil
}
