package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"opinion-market/internal/amm"
	"opinion-market/internal/models"
)

var testTolerance = decimal.NewFromFloat(1e-8)

func setupTestDB(t *testing.T) *gorm.DB {
	// One shared-cache memory DB per test so connections from the pool all
	// see the same data without tests leaking into each other.
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Event{},
		&models.Outcome{},
		&models.Holding{},
		&models.Trade{},
		&models.Transaction{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	return db
}

func createTestUser(t *testing.T, db *gorm.DB, id string, balance decimal.Decimal) *models.User {
	t.Helper()
	user := &models.User{
		ID:               id,
		WalletAddress:    id,
		SpendableBalance: balance,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func createTestEvent(t *testing.T, db *gorm.DB, poolYes, poolNo decimal.Decimal) *models.Event {
	t.Helper()
	settlement := time.Now().Add(48 * time.Hour)
	event := &models.Event{
		ID:                 uuid.New(),
		Title:              "Will it rain tomorrow?",
		Status:             models.EventStatusOpen,
		TotalYesShares:     poolYes,
		TotalNoShares:      poolNo,
		CurrentYesPrice:    decimal.NewFromFloat(0.5),
		CurrentNoPrice:     decimal.NewFromFloat(0.5),
		EventDateTime:      time.Now().Add(24 * time.Hour),
		SettlementDateTime: &settlement,
		CreatorID:          "0xcreator",
		Outcomes: []models.Outcome{
			{ID: uuid.New(), Name: models.OutcomeNameYes},
			{ID: uuid.New(), Name: models.OutcomeNameNo},
		},
	}
	if err := db.Create(event).Error; err != nil {
		t.Fatalf("failed to create test event: %v", err)
	}
	return event
}

func outcomeByName(t *testing.T, event *models.Event, name string) *models.Outcome {
	t.Helper()
	for i := range event.Outcomes {
		if event.Outcomes[i].Name == name {
			return &event.Outcomes[i]
		}
	}
	t.Fatalf("outcome %s not found", name)
	return nil
}

func assertDecimalNear(t *testing.T, got, want decimal.Decimal, label string) {
	t.Helper()
	if got.Sub(want).Abs().GreaterThan(testTolerance) {
		t.Errorf("%s: got %s, want %s", label, got, want)
	}
}

func TestBuyUpdatesPoolsBalanceAndAudit(t *testing.T) {
	db := setupTestDB(t)
	svc := NewTradeService(db, nil)
	ctx := context.Background()

	hundred := decimal.NewFromInt(100)
	user := createTestUser(t, db, "0xalice", decimal.NewFromInt(1000))
	event := createTestEvent(t, db, hundred, hundred)
	yes := outcomeByName(t, event, models.OutcomeNameYes)
	quantity := decimal.NewFromInt(10)

	expected, err := amm.Price(hundred, hundred, quantity, amm.BuyYes)
	if err != nil {
		t.Fatalf("pricing expectation failed: %v", err)
	}

	result, err := svc.ExecuteTrade(ctx, user.ID, event.ID, yes.ID, models.TradeTypeBuy, quantity)
	if err != nil {
		t.Fatalf("ExecuteTrade failed: %v", err)
	}

	assertDecimalNear(t, result.UpdatedBalance, decimal.NewFromInt(1000).Sub(expected.Consideration), "updated balance")
	assertDecimalNear(t, result.Pricing.TotalYesShares, expected.NewPoolYes, "pool yes")
	assertDecimalNear(t, result.Pricing.TotalNoShares, expected.NewPoolNo, "pool no")

	var storedEvent models.Event
	if err := db.First(&storedEvent, "id = ?", event.ID).Error; err != nil {
		t.Fatalf("failed to reload event: %v", err)
	}
	assertDecimalNear(t, storedEvent.TotalYesShares, expected.NewPoolYes, "stored pool yes")
	assertDecimalNear(t, storedEvent.TotalNoShares, expected.NewPoolNo, "stored pool no")
	assertDecimalNear(t, storedEvent.CurrentYesPrice, expected.YesPrice, "stored yes price")
	assertDecimalNear(t, storedEvent.CurrentNoPrice, expected.NoPrice, "stored no price")

	var storedUser models.User
	if err := db.First(&storedUser, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	assertDecimalNear(t, storedUser.SpendableBalance, decimal.NewFromInt(1000).Sub(expected.Consideration), "stored balance")

	var holding models.Holding
	if err := db.First(&holding, "user_id = ? AND outcome_id = ?", user.ID, yes.ID).Error; err != nil {
		t.Fatalf("holding not created: %v", err)
	}
	assertDecimalNear(t, holding.SharesHeld, quantity, "shares held")
	assertDecimalNear(t, holding.AverageCost, expected.ExecPrice, "average cost")

	var tradeCount, txCount int64
	db.Model(&models.Trade{}).Where("user_id = ?", user.ID).Count(&tradeCount)
	db.Model(&models.Transaction{}).Where("user_id = ?", user.ID).Count(&txCount)
	if tradeCount != 1 || txCount != 1 {
		t.Fatalf("audit pairing broken: %d trades, %d transactions", tradeCount, txCount)
	}

	var entry models.Transaction
	if err := db.First(&entry, "user_id = ?", user.ID).Error; err != nil {
		t.Fatalf("failed to load transaction: %v", err)
	}
	if entry.Type != models.TransactionTypeTradeBuy {
		t.Errorf("transaction type: got %s, want %s", entry.Type, models.TransactionTypeTradeBuy)
	}
	if !entry.Amount.IsNegative() {
		t.Errorf("buy transaction amount must be negative, got %s", entry.Amount)
	}
	assertDecimalNear(t, entry.Amount.Abs(), expected.Consideration, "transaction magnitude")
	if entry.RelatedTradeID == nil || *entry.RelatedTradeID != result.Trade.ID {
		t.Errorf("transaction not linked to trade")
	}
}

func TestSellExactHoldingThenOverSell(t *testing.T) {
	db := setupTestDB(t)
	svc := NewTradeService(db, nil)
	ctx := context.Background()

	user := createTestUser(t, db, "0xbob", decimal.NewFromInt(100))
	event := createTestEvent(t, db, decimal.NewFromInt(100), decimal.NewFromInt(100))
	yes := outcomeByName(t, event, models.OutcomeNameYes)

	five := decimal.NewFromInt(5)
	holding := &models.Holding{
		ID:          uuid.New(),
		UserID:      user.ID,
		EventID:     event.ID,
		OutcomeID:   yes.ID,
		SharesHeld:  five,
		AverageCost: decimal.NewFromFloat(0.5),
	}
	if err := db.Create(holding).Error; err != nil {
		t.Fatalf("failed to seed holding: %v", err)
	}

	result, err := svc.ExecuteTrade(ctx, user.ID, event.ID, yes.ID, models.TradeTypeSell, five)
	if err != nil {
		t.Fatalf("selling the exact holding must succeed: %v", err)
	}
	if !result.Trade.TotalAmount.IsPositive() {
		t.Errorf("sell consideration must be positive, got %s", result.Trade.TotalAmount)
	}

	var stored models.Holding
	if err := db.First(&stored, "id = ?", holding.ID).Error; err != nil {
		t.Fatalf("failed to reload holding: %v", err)
	}
	if !stored.SharesHeld.IsZero() {
		t.Errorf("shares held after selling out: got %s, want 0", stored.SharesHeld)
	}

	_, err = svc.ExecuteTrade(ctx, user.ID, event.ID, yes.ID, models.TradeTypeSell, decimal.NewFromFloat(5.000001))
	if !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("over-sell: got %v, want ErrInsufficientShares", err)
	}
}

func TestInsufficientFundsLeavesStateUntouched(t *testing.T) {
	db := setupTestDB(t)
	svc := NewTradeService(db, nil)
	ctx := context.Background()

	user := createTestUser(t, db, "0xcarol", decimal.NewFromFloat(50.00))
	event := createTestEvent(t, db, decimal.NewFromInt(100), decimal.NewFromInt(100))
	yes := outcomeByName(t, event, models.OutcomeNameYes)

	var before models.Event
	if err := db.First(&before, "id = ?", event.ID).Error; err != nil {
		t.Fatalf("failed to load event: %v", err)
	}

	// Buying 101 Yes costs 100 - 10000/201 ≈ 50.25, just over the balance.
	_, err := svc.ExecuteTrade(ctx, user.ID, event.ID, yes.ID, models.TradeTypeBuy, decimal.NewFromInt(101))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}

	var after models.Event
	if err := db.First(&after, "id = ?", event.ID).Error; err != nil {
		t.Fatalf("failed to reload event: %v", err)
	}
	if !after.TotalYesShares.Equal(before.TotalYesShares) ||
		!after.TotalNoShares.Equal(before.TotalNoShares) ||
		!after.CurrentYesPrice.Equal(before.CurrentYesPrice) ||
		!after.CurrentNoPrice.Equal(before.CurrentNoPrice) {
		t.Errorf("market state changed by a rejected trade")
	}

	var storedUser models.User
	if err := db.First(&storedUser, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if !storedUser.SpendableBalance.Equal(decimal.NewFromFloat(50.00)) {
		t.Errorf("balance changed by a rejected trade: %s", storedUser.SpendableBalance)
	}

	var tradeCount, txCount, holdingCount int64
	db.Model(&models.Trade{}).Count(&tradeCount)
	db.Model(&models.Transaction{}).Count(&txCount)
	db.Model(&models.Holding{}).Count(&holdingCount)
	if tradeCount != 0 || txCount != 0 || holdingCount != 0 {
		t.Errorf("rejected trade left rows behind: %d trades, %d transactions, %d holdings",
			tradeCount, txCount, holdingCount)
	}
}

func TestConcurrentBuysSerialize(t *testing.T) {
	db := setupTestDB(t)
	svc := NewTradeService(db, nil)

	hundred := decimal.NewFromInt(100)
	quantity := decimal.NewFromInt(10)
	createTestUser(t, db, "0xfirst", decimal.NewFromInt(1000))
	createTestUser(t, db, "0xsecond", decimal.NewFromInt(1000))
	event := createTestEvent(t, db, hundred, hundred)
	yes := outcomeByName(t, event, models.OutcomeNameYes)

	// Both trades are identical, so applying them in either order yields
	// the same final pool state.
	first, err := amm.Price(hundred, hundred, quantity, amm.BuyYes)
	if err != nil {
		t.Fatalf("pricing expectation failed: %v", err)
	}
	second, err := amm.Price(first.NewPoolYes, first.NewPoolNo, quantity, amm.BuyYes)
	if err != nil {
		t.Fatalf("pricing expectation failed: %v", err)
	}

	var wg sync.WaitGroup
	for _, userID := range []string{"0xfirst", "0xsecond"} {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			for attempt := 0; attempt < 50; attempt++ {
				_, err := svc.ExecuteTrade(context.Background(), userID, event.ID, yes.ID, models.TradeTypeBuy, quantity)
				if err == nil {
					return
				}
				if errors.Is(err, ErrConflictRetryable) {
					time.Sleep(10 * time.Millisecond)
					continue
				}
				t.Errorf("trade for %s failed: %v", userID, err)
				return
			}
			t.Errorf("trade for %s never committed", userID)
		}(userID)
	}
	wg.Wait()

	var stored models.Event
	if err := db.First(&stored, "id = ?", event.ID).Error; err != nil {
		t.Fatalf("failed to reload event: %v", err)
	}
	assertDecimalNear(t, stored.TotalYesShares, second.NewPoolYes, "final pool yes")
	assertDecimalNear(t, stored.TotalNoShares, second.NewPoolNo, "final pool no")

	var tradeCount int64
	db.Model(&models.Trade{}).Count(&tradeCount)
	if tradeCount != 2 {
		t.Errorf("expected 2 committed trades, got %d", tradeCount)
	}
}

func TestAverageCostFixedAtFirstBuy(t *testing.T) {
	db := setupTestDB(t)
	svc := NewTradeService(db, nil)
	ctx := context.Background()

	user := createTestUser(t, db, "0xdave", decimal.NewFromInt(1000))
	event := createTestEvent(t, db, decimal.NewFromInt(100), decimal.NewFromInt(100))
	yes := outcomeByName(t, event, models.OutcomeNameYes)
	quantity := decimal.NewFromInt(10)

	firstResult, err := svc.ExecuteTrade(ctx, user.ID, event.ID, yes.ID, models.TradeTypeBuy, quantity)
	if err != nil {
		t.Fatalf("first buy failed: %v", err)
	}
	if _, err := svc.ExecuteTrade(ctx, user.ID, event.ID, yes.ID, models.TradeTypeBuy, quantity); err != nil {
		t.Fatalf("second buy failed: %v", err)
	}

	var holding models.Holding
	if err := db.First(&holding, "user_id = ? AND outcome_id = ?", user.ID, yes.ID).Error; err != nil {
		t.Fatalf("failed to load holding: %v", err)
	}
	assertDecimalNear(t, holding.SharesHeld, decimal.NewFromInt(20), "shares held")
	// The cost basis is pinned at the first execution price; later buys do
	// not move it.
	assertDecimalNear(t, holding.AverageCost, firstResult.Trade.PricePerShare, "average cost")
}

func TestTradeValidationFailures(t *testing.T) {
	db := setupTestDB(t)
	svc := NewTradeService(db, nil)
	ctx := context.Background()

	user := createTestUser(t, db, "0xeve", decimal.NewFromInt(1000))
	event := createTestEvent(t, db, decimal.NewFromInt(100), decimal.NewFromInt(100))
	yes := outcomeByName(t, event, models.OutcomeNameYes)
	one := decimal.NewFromInt(1)

	if _, err := svc.ExecuteTrade(ctx, "0xnobody", event.ID, yes.ID, models.TradeTypeBuy, one); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user: got %v, want ErrUserNotFound", err)
	}
	if _, err := svc.ExecuteTrade(ctx, user.ID, uuid.New(), yes.ID, models.TradeTypeBuy, one); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("unknown event: got %v, want ErrEventNotFound", err)
	}
	if _, err := svc.ExecuteTrade(ctx, user.ID, event.ID, uuid.New(), models.TradeTypeBuy, one); !errors.Is(err, ErrOutcomeNotFound) {
		t.Errorf("unknown outcome: got %v, want ErrOutcomeNotFound", err)
	}
	if _, err := svc.ExecuteTrade(ctx, user.ID, event.ID, yes.ID, models.TradeTypeBuy, decimal.Zero); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("zero quantity: got %v, want ErrInvalidQuantity", err)
	}
	if _, err := svc.ExecuteTrade(ctx, user.ID, event.ID, yes.ID, models.TradeTypeBuy, decimal.NewFromInt(-3)); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("negative quantity: got %v, want ErrInvalidQuantity", err)
	}
	if _, err := svc.ExecuteTrade(ctx, user.ID, event.ID, yes.ID, models.TradeType("SHORT"), one); !errors.Is(err, ErrInvalidTradeType) {
		t.Errorf("bad trade type: got %v, want ErrInvalidTradeType", err)
	}

	if err := db.Model(&models.Event{}).Where("id = ?", event.ID).
		Update("status", models.EventStatusTradingClosed).Error; err != nil {
		t.Fatalf("failed to close event: %v", err)
	}
	if _, err := svc.ExecuteTrade(ctx, user.ID, event.ID, yes.ID, models.TradeTypeBuy, one); !errors.Is(err, ErrMarketClosed) {
		t.Errorf("closed market: got %v, want ErrMarketClosed", err)
	}
}

func TestSellCreditsBalanceWithPositiveLedgerEntry(t *testing.T) {
	db := setupTestDB(t)
	svc := NewTradeService(db, nil)
	ctx := context.Background()

	user := createTestUser(t, db, "0xfrank", decimal.NewFromInt(10))
	event := createTestEvent(t, db, decimal.NewFromInt(100), decimal.NewFromInt(100))
	no := outcomeByName(t, event, models.OutcomeNameNo)

	holding := &models.Holding{
		ID:          uuid.New(),
		UserID:      user.ID,
		EventID:     event.ID,
		OutcomeID:   no.ID,
		SharesHeld:  decimal.NewFromInt(10),
		AverageCost: decimal.NewFromFloat(0.5),
	}
	if err := db.Create(holding).Error; err != nil {
		t.Fatalf("failed to seed holding: %v", err)
	}

	result, err := svc.ExecuteTrade(ctx, user.ID, event.ID, no.ID, models.TradeTypeSell, decimal.NewFromInt(4))
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	if result.UpdatedBalance.LessThanOrEqual(decimal.NewFromInt(10)) {
		t.Errorf("sell must credit the balance, got %s", result.UpdatedBalance)
	}

	var entry models.Transaction
	if err := db.First(&entry, "user_id = ?", user.ID).Error; err != nil {
		t.Fatalf("failed to load transaction: %v", err)
	}
	if entry.Type != models.TransactionTypeTradeSell {
		t.Errorf("transaction type: got %s, want %s", entry.Type, models.TransactionTypeTradeSell)
	}
	if !entry.Amount.IsPositive() {
		t.Errorf("sell transaction amount must be positive, got %s", entry.Amount)
	}
	assertDecimalNear(t, entry.Amount, result.Trade.TotalAmount, "ledger amount matches consideration")
}
