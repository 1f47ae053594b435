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
	"gorm.io/gorm/clause"

	"opinion-market/internal/models"
)

// UserService handles account sync and the transaction history reads the
// UI renders. Identity verification happens upstream; this service trusts
// the wallet address it is handed and only normalizes it.
type UserService struct {
	db             *gorm.DB
	initialBalance decimal.Decimal
	initialPoints  int
}

// NewUserService creates a new UserService. initialBalance is credited to
// accounts on first sync.
func NewUserService(db *gorm.DB, initialBalance decimal.Decimal, initialPoints int) *UserService {
	return &UserService{
		db:             db,
		initialBalance: initialBalance,
		initialPoints:  initialPoints,
	}
}

// Sync creates the account on first login or touches the login bookkeeping
// on subsequent ones. A freshly created account receives the signup bonus
// balance together with the ledger entry that justifies it.
func (s *UserService) Sync(ctx context.Context, walletAddress string) (*models.User, error) {
	walletAddress = strings.ToLower(strings.TrimSpace(walletAddress))
	if walletAddress == "" {
		return nil, fmt.Errorf("wallet address is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&user, "id = ?", walletAddress).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.User{
				ID:               walletAddress,
				WalletAddress:    walletAddress,
				SpendableBalance: s.initialBalance,
				RewardPoints:     s.initialPoints,
				IsFirstLogin:     true,
			}
			// Two first syncs of the same wallet can both miss the read
			// above. ON CONFLICT DO NOTHING lets the loser fall through to
			// the existing-account path instead of surfacing a
			// duplicate-key error.
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&user)
			if res.Error != nil {
				return fmt.Errorf("failed to create user: %w", res.Error)
			}
			if res.RowsAffected > 0 {
				if s.initialBalance.IsPositive() {
					bonus := &models.Transaction{
						ID:          uuid.New(),
						UserID:      walletAddress,
						Type:        models.TransactionTypeSignupBonus,
						Amount:      s.initialBalance,
						Currency:    "USDC",
						Description: "Signup bonus",
					}
					if err := tx.Create(bonus).Error; err != nil {
						return fmt.Errorf("failed to record signup bonus: %w", err)
					}
				}
				return nil
			}
			if err := tx.First(&user, "id = ?", walletAddress).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		now := time.Now()
		user.IsFirstLogin = false
		user.LastLoginAt = &now
		if err := tx.Model(&user).Updates(map[string]interface{}{
			"is_first_login": false,
			"last_login_at":  now,
		}).Error; err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByID retrieves a user by their normalized wallet address.
func (s *UserService) GetByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", strings.ToLower(userID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetTransactions retrieves a user's ledger entries, newest first.
func (s *UserService) GetTransactions(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	var transactions []models.Transaction
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", strings.ToLower(userID)).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&transactions).Error; err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return transactions, nil
}

// ListUsers retrieves all accounts for the admin panel; privileged only.
func (s *UserService) ListUsers(ctx context.Context, actingUserID string) ([]models.User, error) {
	if err := s.requireAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// SetAdmin toggles the target account's admin flag. Admins cannot change
// their own flag through this path.
func (s *UserService) SetAdmin(ctx context.Context, actingUserID, targetWalletAddress string, isAdmin bool) (*models.User, error) {
	actingUserID = strings.ToLower(actingUserID)
	target := strings.ToLower(targetWalletAddress)

	if err := s.requireAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}
	if target == actingUserID {
		return nil, ErrForbidden
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", target).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&user).Update("is_admin", isAdmin).Error; err != nil {
		return nil, fmt.Errorf("failed to update user role: %w", err)
	}
	user.IsAdmin = isAdmin
	return &user, nil
}

func (s *UserService) requireAdmin(ctx context.Context, userID string) error {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", strings.ToLower(userID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if !user.IsAdmin {
		return ErrForbidden
	}
	return nil
}
