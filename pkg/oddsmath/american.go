// Package oddsmath converts between American odds, decimal odds and implied
// probabilities.
package oddsmath

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// HeavyFavoriteOdds is the conventional cutoff for a heavy favorite.
const HeavyFavoriteOdds = -250

// AmericanToDecimal converts American odds to decimal odds.
// American +150 → Decimal 2.50
// American -150 → Decimal 1.67
func AmericanToDecimal(american int) (float64, error) {
	if american == 0 {
		return 0, fmt.Errorf("invalid American odds: cannot be 0")
	}
	if american > 0 {
		return float64(american)/100.0 + 1.0, nil
	}
	return 100.0/float64(-american) + 1.0, nil
}

// DecimalToAmerican converts decimal odds to American odds.
func DecimalToAmerican(dec float64) (int, error) {
	if dec <= 1.0 || math.IsNaN(dec) || math.IsInf(dec, 0) {
		return 0, fmt.Errorf("invalid decimal odds: must be > 1.0")
	}
	if dec >= 2.0 {
		return int(math.Round((dec - 1.0) * 100.0)), nil
	}
	return int(math.Round(-100.0 / (dec - 1.0))), nil
}

// ImpliedProbability converts American odds to the implied win probability
// (vig included).
func ImpliedProbability(american int) (float64, error) {
	dec, err := AmericanToDecimal(american)
	if err != nil {
		return 0, err
	}
	return 1.0 / dec, nil
}

// NoVigTwoWay removes the bookmaker margin from a two-way market using the
// multiplicative method and returns the fair probability of each side.
func NoVigTwoWay(a, b int) (fairA, fairB float64, err error) {
	pa, err := ImpliedProbability(a)
	if err != nil {
		return 0, 0, fmt.Errorf("side a: %w", err)
	}
	pb, err := ImpliedProbability(b)
	if err != nil {
		return 0, 0, fmt.Errorf("side b: %w", err)
	}
	total := pa + pb
	return pa / total, pb / total, nil
}

// IsHeavyFavorite reports whether a price is at or beyond the threshold
// (e.g. -300 is heavier than -250).
func IsHeavyFavorite(american, threshold int) bool {
	return american != 0 && american <= threshold
}

// ToWin returns the profit of a winning stake of units at the given price.
// -150 for 3 units wins 2 units; +130 for 1 unit wins 1.3 units.
func ToWin(american int, units decimal.Decimal) (decimal.Decimal, error) {
	if american == 0 {
		return decimal.Zero, fmt.Errorf("invalid American odds: cannot be 0")
	}
	hundred := decimal.NewFromInt(100)
	price := decimal.NewFromInt(int64(american))
	if american > 0 {
		return units.Mul(price).Div(hundred).Round(2), nil
	}
	return units.Mul(hundred).Div(price.Neg()).Round(2), nil
}

// BetterPrice reports whether a pays more than b for the same selection.
// A zero price is never better.
func BetterPrice(a, b int) bool {
	if a == 0 {
		return false
	}
	if b == 0 {
		return true
	}
	da, _ := AmericanToDecimal(a)
	db, _ := AmericanToDecimal(b)
	return da > db
}
