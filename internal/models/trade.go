package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade type constants
type TradeType string

const (
	TradeTypeBuy  TradeType = "BUY"
	TradeTypeSell TradeType = "SELL"
)

// Trade status constants. Trades either commit whole or not at all, so
// COMPLETED is the only status ever written.
type TradeStatus string

const (
	TradeStatusCompleted TradeStatus = "COMPLETED"
)

// Trade is the append-only record of a single executed trade. Rows are
// never updated or deleted once written.
type Trade struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        string          `gorm:"size:255;not null;index" json:"user_id"`
	EventID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"event_id"`
	OutcomeID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"outcome_id"`
	TradeType     TradeType       `gorm:"size:10;not null" json:"trade_type"`
	ShareQuantity decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"share_quantity"`
	PricePerShare decimal.Decimal `gorm:"type:decimal(10,6);not null" json:"price_per_share"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"total_amount"`
	Status        TradeStatus     `gorm:"size:50;not null;default:COMPLETED" json:"status"`
	CreatedAt     time.Time       `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for Trade model
func (Trade) TableName() string {
	return "trades"
}
