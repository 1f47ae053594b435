package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"opinion-market/internal/metrics"
	"opinion-market/internal/models"
)

// EventService manages prediction market events: creation, reads, and the
// administrative override path. Administrative updates deliberately share no
// code with trade execution; they write whatever the operator asked for and
// do not maintain the constant-product relationship.
type EventService struct {
	db *gorm.DB
}

// NewEventService creates a new EventService
func NewEventService(db *gorm.DB) *EventService {
	return &EventService{db: db}
}

// CreateEventRequest carries the fields for a new event.
type CreateEventRequest struct {
	Title              string     `json:"title" binding:"required"`
	Description        string     `json:"description"`
	OutcomeType        string     `json:"outcome_type"`
	EventDateTime      time.Time  `json:"event_date_time" binding:"required"`
	SettlementDateTime *time.Time `json:"settlement_date_time" binding:"required"`
}

// Create creates an event together with its fixed "Yes" and "No" outcomes
// in one transaction. Pools start empty and both prices at 0.5.
func (s *EventService) Create(ctx context.Context, creatorID string, req *CreateEventRequest) (*models.Event, error) {
	half := decimal.NewFromFloat(0.5)
	event := &models.Event{
		ID:                 uuid.New(),
		Title:              req.Title,
		Description:        req.Description,
		OutcomeType:        req.OutcomeType,
		Status:             models.EventStatusOpen,
		TotalYesShares:     decimal.Zero,
		TotalNoShares:      decimal.Zero,
		CurrentYesPrice:    half,
		CurrentNoPrice:     half,
		EventDateTime:      req.EventDateTime,
		SettlementDateTime: req.SettlementDateTime,
		CreatorID:          strings.ToLower(creatorID),
		Outcomes: []models.Outcome{
			{ID: uuid.New(), Name: models.OutcomeNameYes, Description: "The event will happen."},
			{ID: uuid.New(), Name: models.OutcomeNameNo, Description: "The event will not happen."},
		},
	}
	if event.OutcomeType == "" {
		event.OutcomeType = "BINARY"
	}

	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	metrics.OpenMarkets.Inc()
	return event, nil
}

// Get retrieves an event with its outcomes. When forUserID is non-empty the
// caller's holdings for the event are attached as well.
func (s *EventService) Get(ctx context.Context, eventID uuid.UUID, forUserID string) (*models.Event, []models.Holding, error) {
	var event models.Event
	if err := s.db.WithContext(ctx).Preload("Outcomes").First(&event, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrEventNotFound
		}
		return nil, nil, err
	}

	if forUserID == "" {
		return &event, nil, nil
	}

	var holdings []models.Holding
	if err := s.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID, strings.ToLower(forUserID)).
		Find(&holdings).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load holdings: %w", err)
	}
	return &event, holdings, nil
}

// SeedOpenMarketsGauge sets the open-markets gauge from the number of OPEN
// events in the database. Called once at startup; the gauge is process-local
// and would otherwise restart at zero.
func (s *EventService) SeedOpenMarketsGauge(ctx context.Context) error {
	var open int64
	if err := s.db.WithContext(ctx).Model(&models.Event{}).
		Where("status = ?", models.EventStatusOpen).
		Count(&open).Error; err != nil {
		return fmt.Errorf("failed to count open events: %w", err)
	}
	metrics.OpenMarkets.Set(float64(open))
	return nil
}

// ListTradable retrieves events that can still be traded or are pending
// settlement, soonest first.
func (s *EventService) ListTradable(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	if err := s.db.WithContext(ctx).
		Where("status IN ?", []models.EventStatus{models.EventStatusOpen, models.EventStatusTradingClosed}).
		Order("event_date_time ASC").
		Preload("Outcomes").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// EventPatch enumerates the fields an administrator may overwrite. Only
// non-nil fields are applied; values are type-checked but no business rule
// beyond that is enforced — this is the operator escape hatch.
type EventPatch struct {
	Title              *string          `json:"title"`
	Description        *string          `json:"description"`
	Status             *string          `json:"status"`
	CurrentYesPrice    *decimal.Decimal `json:"current_yes_price"`
	CurrentNoPrice     *decimal.Decimal `json:"current_no_price"`
	TotalYesShares     *decimal.Decimal `json:"total_yes_shares"`
	TotalNoShares      *decimal.Decimal `json:"total_no_shares"`
	EventDateTime      *time.Time       `json:"event_date_time"`
	SettlementDateTime *time.Time       `json:"settlement_date_time"`
	WinningOutcomeName *string          `json:"winning_outcome_name"`
}

// AdminUpdate overwrites event fields outside the pricing engine. Requires
// the acting user's admin flag; backward status transitions are allowed on
// purpose so operators can reopen a mis-settled market.
func (s *EventService) AdminUpdate(ctx context.Context, actingUserID string, eventID uuid.UUID, patch *EventPatch) (*models.Event, error) {
	actingUserID = strings.ToLower(actingUserID)

	var acting models.User
	if err := s.db.WithContext(ctx).First(&acting, "id = ?", actingUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !acting.IsAdmin {
		return nil, ErrForbidden
	}

	updates := map[string]interface{}{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Status != nil {
		status := models.EventStatus(*patch.Status)
		if !models.ValidEventStatus(status) {
			return nil, fmt.Errorf("unknown event status %q", *patch.Status)
		}
		updates["status"] = status
	}
	if patch.CurrentYesPrice != nil {
		updates["current_yes_price"] = *patch.CurrentYesPrice
	}
	if patch.CurrentNoPrice != nil {
		updates["current_no_price"] = *patch.CurrentNoPrice
	}
	if patch.TotalYesShares != nil {
		updates["total_yes_shares"] = *patch.TotalYesShares
	}
	if patch.TotalNoShares != nil {
		updates["total_no_shares"] = *patch.TotalNoShares
	}
	if patch.EventDateTime != nil {
		updates["event_date_time"] = *patch.EventDateTime
	}
	if patch.SettlementDateTime != nil {
		updates["settlement_date_time"] = *patch.SettlementDateTime
	}
	if patch.WinningOutcomeName != nil {
		updates["winning_outcome_name"] = *patch.WinningOutcomeName
	}

	var event models.Event
	var prevStatus models.EventStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&event, "id = ?", eventID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return err
		}
		// Updates below writes the map values into the struct as well, so
		// the pre-update status has to be captured here.
		prevStatus = event.Status
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&event).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if patch.Status != nil {
		newStatus := models.EventStatus(*patch.Status)
		switch {
		case prevStatus == models.EventStatusOpen && newStatus != models.EventStatusOpen:
			metrics.OpenMarkets.Dec()
		case prevStatus != models.EventStatusOpen && newStatus == models.EventStatusOpen:
			metrics.OpenMarkets.Inc()
		}
	}

	if err := s.db.WithContext(ctx).Preload("Outcomes").First(&event, "id = ?", eventID).Error; err != nil {
		return nil, err
	}
	return &event, nil
}
