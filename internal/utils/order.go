package utils

import (
	"math"

	"github.com/rxtech-lab/argo-backtree/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/shopspring/decimal"
)

// FractionalPrecision disables quantity rounding.
const FractionalPrecision = -1

// guardDigits absorbs float noise such as 2.9999999999999996 before truncation.
const guardDigits = 10

// RoundQuantity truncates quantity toward zero at the given number of decimal places.
// A negative precision returns the quantity unchanged.
func RoundQuantity(quantity float64, precision int) float64 {
	if precision < 0 || quantity == 0 || math.IsNaN(quantity) || math.IsInf(quantity, 0) {
		return quantity
	}

	rounded, _ := decimal.NewFromFloat(quantity).
		Round(guardDigits).
		Truncate(int32(precision)).
		Float64()

	return rounded
}

// LotSize is the smallest tradable quantity step for a precision, 0 when fractional.
func LotSize(precision int) float64 {
	if precision < 0 {
		return 0
	}

	return math.Pow10(-precision)
}

// CalculateMaxQuantity calculates the maximum quantity that can be bought with the given balance,
// paying price*multiplier per unit plus the commission fee.
func CalculateMaxQuantity(balance float64, price float64, multiplier float64, commissionFee commission_fee.CommissionFee) float64 {
	unitCost := price * multiplier
	// Handle edge cases
	if unitCost <= 0 || balance <= 0 {
		return 0
	}

	// Initial rough estimate (ignoring fees)
	maxQty := balance / unitCost

	// Iteratively refine by accounting for fees
	for i := 0; i < 20; i++ {
		totalCost := maxQty*unitCost + commissionFee.Calculate(maxQty, price)
		if totalCost <= balance {
			break
		}
		// Adjust quantity down proportionally
		adjustment := balance / totalCost
		maxQty = maxQty * adjustment
	}

	return maxQty
}

// CalculateMaxAffordableQuantity returns the largest quantity at the given precision whose
// cost including fees does not exceed balance by more than tolerance.
func CalculateMaxAffordableQuantity(
	balance float64,
	price float64,
	multiplier float64,
	precision int,
	tolerance float64,
	commissionFee commission_fee.CommissionFee,
) float64 {
	qty := RoundQuantity(CalculateMaxQuantity(balance, price, multiplier, commissionFee), precision)
	lot := LotSize(precision)

	for qty > 0 {
		cost := qty*price*multiplier + commissionFee.Calculate(qty, price)
		if cost <= balance+tolerance {
			return qty
		}

		if lot == 0 {
			// fractional: shrink proportionally until the fee-inclusive cost fits
			qty *= balance / cost
			if qty*price*multiplier < tolerance {
				return 0
			}

			continue
		}

		qty = RoundQuantity(qty-lot, precision)
	}

	return 0
}
