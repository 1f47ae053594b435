package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event status constants
type EventStatus string

const (
	EventStatusOpen          EventStatus = "OPEN"
	EventStatusTradingClosed EventStatus = "TRADING_CLOSED"
	EventStatusSettled       EventStatus = "SETTLED"
)

// ValidEventStatus reports whether s is one of the known lifecycle states.
func ValidEventStatus(s EventStatus) bool {
	switch s {
	case EventStatusOpen, EventStatusTradingClosed, EventStatusSettled:
		return true
	}
	return false
}

// Event represents a binary-outcome prediction market. The Yes/No share
// pools drive the constant-product pricing curve; the current prices are
// informational snapshots derived from the pools after each trade.
type Event struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Title              string          `gorm:"size:500;not null" json:"title"`
	Description        string          `gorm:"type:text" json:"description"`
	OutcomeType        string          `gorm:"size:50;not null;default:BINARY" json:"outcome_type"`
	Status             EventStatus     `gorm:"size:50;not null;default:OPEN;index" json:"status"`
	TotalYesShares     decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_yes_shares"`
	TotalNoShares      decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_no_shares"`
	CurrentYesPrice    decimal.Decimal `gorm:"type:decimal(10,6);not null;default:0.5" json:"current_yes_price"`
	CurrentNoPrice     decimal.Decimal `gorm:"type:decimal(10,6);not null;default:0.5" json:"current_no_price"`
	WinningOutcomeName *string         `gorm:"size:50" json:"winning_outcome_name,omitempty"`
	EventDateTime      time.Time       `gorm:"not null;index" json:"event_date_time"`
	SettlementDateTime *time.Time      `json:"settlement_date_time,omitempty"`
	CreatorID          string          `gorm:"size:255;index" json:"creator_id"`
	Outcomes           []Outcome       `gorm:"foreignKey:EventID" json:"outcomes,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Event model
func (Event) TableName() string {
	return "events"
}

// Outcome is one side of a binary event. Exactly two are created with the
// event, named "Yes" and "No", and never change afterwards.
type Outcome struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EventID     uuid.UUID `gorm:"type:uuid;not null;index" json:"event_id"`
	Name        string    `gorm:"size:50;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for Outcome model
func (Outcome) TableName() string {
	return "outcomes"
}

// OutcomeName constants fixed at event creation.
const (
	OutcomeNameYes = "Yes"
	OutcomeNameNo  = "No"
)
