package services

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// Typed failures surfaced by the trading core. Handlers discriminate on
// these with errors.Is; none of them are retried inside the core.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEventNotFound   = errors.New("event not found")
	ErrOutcomeNotFound = errors.New("outcome not found for this event")

	ErrMarketClosed     = errors.New("event not open for trading")
	ErrInvalidQuantity  = errors.New("quantity must be greater than 0")
	ErrInvalidTradeType = errors.New("invalid trade type, must be BUY or SELL")

	ErrInsufficientShares = errors.New("insufficient shares to sell")
	ErrInsufficientFunds  = errors.New("insufficient balance")

	ErrForbidden = errors.New("admin access required")

	// ErrConflictRetryable signals that the transactional unit of work lost
	// a serialization conflict with a concurrent trade. The attempt left no
	// partial state behind and is safe to resubmit.
	ErrConflictRetryable = errors.New("concurrent update conflict, retry the trade")
)

// isRetryableConflict reports whether err is a storage-level contention
// failure worth resubmitting: Postgres serialization (40001) or deadlock
// (40P01) aborts, or SQLite's in-test busy/locked states.
func isRetryableConflict(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
