// Package amm implements the constant-product pricing curve for a binary
// Yes/No prediction market.
//
// The curve holds k = poolYes * poolNo fixed across a trade. Fresh markets
// start with empty pools, so a fixed base k of 10000 stands in whenever
// either pool is zero, giving the first trade a well-defined slope.
//
// All quantities use shopspring/decimal. The functions here are pure: they
// know nothing about users, holdings, or storage.
package amm

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// Direction identifies which side of the pool a trade moves.
type Direction string

const (
	BuyYes  Direction = "BUY_YES"
	BuyNo   Direction = "BUY_NO"
	SellYes Direction = "SELL_YES"
	SellNo  Direction = "SELL_NO"
)

var (
	// ErrInvalidQuantity is returned for a zero or negative share quantity.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrInvalidDirection is returned for an unrecognized trade direction.
	ErrInvalidDirection = errors.New("invalid trade direction")
)

var (
	// baseK replaces the pool product while either pool is empty.
	baseK = decimal.NewFromInt(10000)
	// epsilon guards divisions when a sell empties a pool.
	epsilon = decimal.NewFromFloat(1e-10)

	one      = decimal.NewFromInt(1)
	minPrice = decimal.NewFromFloat(0.01)
	maxPrice = decimal.NewFromFloat(0.99)
)

// Result is the outcome of pricing one trade.
//
// ExecPrice is the realized per-share price (the computed price of "No",
// clamped to the display band) and Consideration = ExecPrice * quantity is
// the currency the trade moves: debited from the buyer or credited to the
// seller. NewPoolYes/NewPoolNo are the pool totals the market should carry
// afterwards, and YesPrice/NoPrice the display prices derived from the
// trade, both clamped to [0.01, 0.99].
type Result struct {
	ExecPrice     decimal.Decimal
	Consideration decimal.Decimal
	NewPoolYes    decimal.Decimal
	NewPoolNo     decimal.Decimal
	YesPrice      decimal.Decimal
	NoPrice       decimal.Decimal
}

// Price computes the result of trading quantity shares against the given
// pool totals. A sell larger than the pool is clamped to drain the pool
// rather than drive it negative; the caller is responsible for rejecting
// sells that exceed the user's recorded holding before calling here.
func Price(poolYes, poolNo, quantity decimal.Decimal, direction Direction) (*Result, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidQuantity
	}

	k := baseK
	if !poolYes.IsZero() && !poolNo.IsZero() {
		k = poolYes.Mul(poolNo)
	}

	var (
		newYes, newNo decimal.Decimal
		cost          decimal.Decimal
		effectiveQty  = quantity
	)

	switch direction {
	case BuyYes:
		newYes = poolYes.Add(quantity)
		newNo = k.Div(newYes)
		cost = poolNo.Sub(newNo)
	case BuyNo:
		newNo = poolNo.Add(quantity)
		newYes = k.Div(newNo)
		cost = poolYes.Sub(newYes)
	case SellYes:
		newYes = poolYes.Sub(quantity)
		if newYes.IsNegative() {
			// Cannot drain more than the pool holds.
			effectiveQty = poolYes
			newYes = decimal.Zero
		}
		newNo = k.Div(nonZero(newYes))
		cost = newNo.Sub(poolNo)
	case SellNo:
		newNo = poolNo.Sub(quantity)
		if newNo.IsNegative() {
			effectiveQty = poolNo
			newNo = decimal.Zero
		}
		newYes = k.Div(nonZero(newNo))
		cost = newYes.Sub(poolYes)
	default:
		return nil, ErrInvalidDirection
	}

	// The raw per-share price is denominated in "No" terms: the price of No
	// is the computed value, the price of Yes its complement. On the
	// zero-pool bootstrap the raw value can leave (0, 1) entirely, so the
	// executed price and both display prices are clamped to the band.
	rawPrice := cost.Div(nonZero(effectiveQty))
	execPrice := clamp(rawPrice)
	yesPrice := clamp(one.Sub(rawPrice))
	noPrice := clamp(rawPrice)

	consideration := execPrice.Mul(effectiveQty)

	// Reconcile the opposite pool from the clamped price and sqrt(k) so the
	// stored pools stay consistent with the displayed band. The traded side
	// keeps its direct arithmetic (floored at zero for sells).
	sqrtK := decimalSqrt(k)
	result := &Result{
		ExecPrice:     execPrice,
		Consideration: consideration,
		YesPrice:      yesPrice,
		NoPrice:       noPrice,
	}

	switch direction {
	case BuyYes, SellYes:
		result.NewPoolYes = newYes
		result.NewPoolNo = noPrice.Mul(sqrtK)
	case BuyNo, SellNo:
		result.NewPoolNo = newNo
		result.NewPoolYes = yesPrice.Mul(sqrtK)
	}

	return result, nil
}

// DirectionFor maps a trade type and outcome name onto the pool direction.
func DirectionFor(isBuy bool, outcomeName string) (Direction, error) {
	switch {
	case isBuy && outcomeName == "Yes":
		return BuyYes, nil
	case isBuy && outcomeName == "No":
		return BuyNo, nil
	case !isBuy && outcomeName == "Yes":
		return SellYes, nil
	case !isBuy && outcomeName == "No":
		return SellNo, nil
	}
	return "", ErrInvalidDirection
}

func clamp(p decimal.Decimal) decimal.Decimal {
	if p.LessThan(minPrice) {
		return minPrice
	}
	if p.GreaterThan(maxPrice) {
		return maxPrice
	}
	return p
}

func nonZero(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return epsilon
	}
	return d
}

// decimalSqrt computes the square root through float64. The result only
// feeds the display-band pool reconciliation, so float precision is
// acceptable here; money amounts never pass through it.
func decimalSqrt(d decimal.Decimal) decimal.Decimal {
	f, _ := d.Float64()
	if f <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(math.Sqrt(f))
}
