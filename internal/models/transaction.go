package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction type constants
type TransactionType string

const (
	TransactionTypeTradeBuy    TransactionType = "TRADE_BUY"
	TransactionTypeTradeSell   TransactionType = "TRADE_SELL"
	TransactionTypeSignupBonus TransactionType = "SIGNUP_BONUS"
	TransactionTypeReward      TransactionType = "REWARD"
)

// Transaction is the append-only ledger entry behind every balance change.
// Amount is signed: negative for debits (BUY), positive for credits (SELL,
// bonuses). Every mutation of a user's spendable balance writes exactly one
// of these rows.
type Transaction struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         string          `gorm:"size:255;not null;index" json:"user_id"`
	Type           TransactionType `gorm:"size:50;not null;index" json:"type"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	Currency       string          `gorm:"size:20;not null;default:USDC" json:"currency"`
	Description    string          `gorm:"type:text" json:"description"`
	RelatedTradeID *uuid.UUID      `gorm:"type:uuid;index" json:"related_trade_id,omitempty"`
	CreatedAt      time.Time       `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for Transaction model
func (Transaction) TableName() string {
	return "transactions"
}
