package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a trader account. The lower-cased wallet address doubles
// as the primary key, matching how callers identify themselves.
type User struct {
	ID               string          `gorm:"primaryKey;size:255" json:"id"`
	WalletAddress    string          `gorm:"uniqueIndex;not null;size:255" json:"wallet_address"`
	SpendableBalance decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"spendable_balance"`
	RewardPoints     int             `gorm:"not null;default:0" json:"reward_points"`
	IsAdmin          bool            `gorm:"not null;default:false" json:"is_admin"`
	IsFirstLogin     bool            `gorm:"not null;default:true" json:"is_first_login"`
	LastLoginAt      *time.Time      `json:"last_login_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}
