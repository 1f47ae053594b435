package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"opinion-market/internal/amm"
	"opinion-market/internal/metrics"
	"opinion-market/internal/models"
)

// MarketPricing is the pricing snapshot of an event after a trade commits.
type MarketPricing struct {
	EventID         uuid.UUID       `json:"event_id"`
	CurrentYesPrice decimal.Decimal `json:"current_yes_price"`
	CurrentNoPrice  decimal.Decimal `json:"current_no_price"`
	TotalYesShares  decimal.Decimal `json:"total_yes_shares"`
	TotalNoShares   decimal.Decimal `json:"total_no_shares"`
}

// PriceBroadcaster pushes committed pricing snapshots to live subscribers.
type PriceBroadcaster interface {
	BroadcastPricing(p MarketPricing)
}

// TradeResult is returned to the caller after a committed trade.
type TradeResult struct {
	Trade          *models.Trade   `json:"trade"`
	UpdatedBalance decimal.Decimal `json:"updated_balance"`
	Pricing        MarketPricing   `json:"updated_event"`
}

// TradeService executes trades against the shared market and user records.
// Every trade runs as one database transaction: the user and event rows are
// locked up front, the pricing engine computes the result, and the pool,
// holding, balance, and audit writes all land together or not at all.
type TradeService struct {
	db  *gorm.DB
	hub PriceBroadcaster // optional, nil disables live broadcasts
}

// NewTradeService creates a new trade service. Pass nil for hub if live
// price broadcasting is not needed.
func NewTradeService(db *gorm.DB, hub PriceBroadcaster) *TradeService {
	return &TradeService{db: db, hub: hub}
}

// ExecuteTrade validates, prices, and applies one trade atomically.
//
// Failure of any step aborts the whole transaction with one of the typed
// errors from errors.go; a failed call leaves no trade row, no transaction
// row, and no pool, holding, or balance change behind.
func (s *TradeService) ExecuteTrade(
	ctx context.Context,
	userID string,
	eventID uuid.UUID,
	outcomeID uuid.UUID,
	tradeType models.TradeType,
	quantity decimal.Decimal,
) (*TradeResult, error) {
	if tradeType != models.TradeTypeBuy && tradeType != models.TradeTypeSell {
		return nil, ErrInvalidTradeType
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidQuantity
	}

	userID = strings.ToLower(userID)
	var result *TradeResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := lockForUpdate(tx).First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		var event models.Event
		if err := lockForUpdate(tx).Preload("Outcomes").First(&event, "id = ?", eventID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return err
		}
		if event.Status != models.EventStatusOpen {
			return ErrMarketClosed
		}

		var outcome *models.Outcome
		for i := range event.Outcomes {
			if event.Outcomes[i].ID == outcomeID {
				outcome = &event.Outcomes[i]
				break
			}
		}
		if outcome == nil {
			return ErrOutcomeNotFound
		}

		direction, err := amm.DirectionFor(tradeType == models.TradeTypeBuy, outcome.Name)
		if err != nil {
			return ErrInvalidTradeType
		}

		var holding models.Holding
		haveHolding := true
		if err := tx.Where("user_id = ? AND event_id = ? AND outcome_id = ?",
			userID, eventID, outcomeID).First(&holding).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			haveHolding = false
		}

		if tradeType == models.TradeTypeSell {
			if !haveHolding || holding.SharesHeld.LessThan(quantity) {
				return ErrInsufficientShares
			}
		}

		priced, err := amm.Price(event.TotalYesShares, event.TotalNoShares, quantity, direction)
		if err != nil {
			if errors.Is(err, amm.ErrInvalidQuantity) {
				return ErrInvalidQuantity
			}
			return ErrInvalidTradeType
		}

		if tradeType == models.TradeTypeBuy {
			if user.SpendableBalance.LessThan(priced.Consideration) {
				return ErrInsufficientFunds
			}
			user.SpendableBalance = user.SpendableBalance.Sub(priced.Consideration)
		} else {
			user.SpendableBalance = user.SpendableBalance.Add(priced.Consideration)
		}

		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("spendable_balance", user.SpendableBalance).Error; err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}

		if err := tx.Model(&models.Event{}).Where("id = ?", event.ID).Updates(map[string]interface{}{
			"total_yes_shares":  priced.NewPoolYes,
			"total_no_shares":   priced.NewPoolNo,
			"current_yes_price": priced.YesPrice,
			"current_no_price":  priced.NoPrice,
		}).Error; err != nil {
			return fmt.Errorf("failed to update event pools: %w", err)
		}

		if err := s.applyHolding(tx, &holding, haveHolding, userID, eventID, outcomeID,
			tradeType, quantity, priced.ExecPrice); err != nil {
			return err
		}

		trade := &models.Trade{
			ID:            uuid.New(),
			UserID:        userID,
			EventID:       event.ID,
			OutcomeID:     outcomeID,
			TradeType:     tradeType,
			ShareQuantity: quantity,
			PricePerShare: priced.ExecPrice,
			TotalAmount:   priced.Consideration,
			Status:        models.TradeStatusCompleted,
		}
		if err := tx.Create(trade).Error; err != nil {
			return fmt.Errorf("failed to record trade: %w", err)
		}

		amount := priced.Consideration
		txType := models.TransactionTypeTradeSell
		if tradeType == models.TradeTypeBuy {
			amount = priced.Consideration.Neg()
			txType = models.TransactionTypeTradeBuy
		}
		ledgerEntry := &models.Transaction{
			ID:             uuid.New(),
			UserID:         userID,
			Type:           txType,
			Amount:         amount,
			Currency:       "USDC",
			Description:    fmt.Sprintf("%s %s %s shares for Event: %s", tradeType, quantity.StringFixed(2), outcome.Name, event.Title),
			RelatedTradeID: &trade.ID,
		}
		if err := tx.Create(ledgerEntry).Error; err != nil {
			return fmt.Errorf("failed to record transaction: %w", err)
		}

		result = &TradeResult{
			Trade:          trade,
			UpdatedBalance: user.SpendableBalance,
			Pricing: MarketPricing{
				EventID:         event.ID,
				CurrentYesPrice: priced.YesPrice,
				CurrentNoPrice:  priced.NoPrice,
				TotalYesShares:  priced.NewPoolYes,
				TotalNoShares:   priced.NewPoolNo,
			},
		}
		return nil
	})

	if err != nil {
		metrics.TradeRejections.WithLabelValues(rejectionReason(err)).Inc()
		if isRetryableConflict(err) {
			return nil, fmt.Errorf("%w: %v", ErrConflictRetryable, err)
		}
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues(string(tradeType)).Inc()
	if s.hub != nil {
		s.hub.BroadcastPricing(result.Pricing)
	}
	return result, nil
}

// applyHolding mutates the caller's position for the traded outcome.
// AverageCost is set once, on the holding's creation, and left untouched by
// later buys.
func (s *TradeService) applyHolding(
	tx *gorm.DB,
	holding *models.Holding,
	exists bool,
	userID string,
	eventID, outcomeID uuid.UUID,
	tradeType models.TradeType,
	quantity, execPrice decimal.Decimal,
) error {
	if !exists {
		if tradeType != models.TradeTypeBuy {
			return ErrInsufficientShares
		}
		newHolding := &models.Holding{
			ID:          uuid.New(),
			UserID:      userID,
			EventID:     eventID,
			OutcomeID:   outcomeID,
			SharesHeld:  quantity,
			AverageCost: execPrice,
		}
		if err := tx.Create(newHolding).Error; err != nil {
			return fmt.Errorf("failed to create holding: %w", err)
		}
		return nil
	}

	if tradeType == models.TradeTypeBuy {
		holding.SharesHeld = holding.SharesHeld.Add(quantity)
	} else {
		holding.SharesHeld = holding.SharesHeld.Sub(quantity)
	}
	if err := tx.Model(&models.Holding{}).Where("id = ?", holding.ID).
		Update("shares_held", holding.SharesHeld).Error; err != nil {
		return fmt.Errorf("failed to update holding: %w", err)
	}
	return nil
}

// lockForUpdate locks the selected rows for the duration of the
// transaction on Postgres. SQLite has no row locks and serializes writers
// itself, so the clause is skipped there.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrEventNotFound), errors.Is(err, ErrOutcomeNotFound):
		return "not_found"
	case errors.Is(err, ErrMarketClosed):
		return "market_closed"
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidTradeType):
		return "invalid_request"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case isRetryableConflict(err):
		return "conflict"
	}
	return "internal"
}
