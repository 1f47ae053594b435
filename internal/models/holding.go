package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Holding records a user's owned shares in one outcome of one event.
// Created lazily on the first BUY and kept as a zero row after the position
// is fully sold. SharesHeld must never go negative; the trade orchestrator
// rejects a SELL that would, before touching any state.
type Holding struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string          `gorm:"size:255;not null;uniqueIndex:idx_holding_user_event_outcome" json:"user_id"`
	EventID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_holding_user_event_outcome" json:"event_id"`
	OutcomeID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_holding_user_event_outcome" json:"outcome_id"`
	SharesHeld  decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"shares_held"`
	AverageCost decimal.Decimal `gorm:"type:decimal(10,6);not null;default:0" json:"average_cost"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Holding model
func (Holding) TableName() string {
	return "holdings"
}
