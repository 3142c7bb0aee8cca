package services

import (
	"math"

	"github.com/shopspring/decimal"
)

// totalEpsilon is the tolerance when comparing a stored order total with the
// sum of its items.
const totalEpsilon = 1e-6

func lineTotal(unitPrice float64, quantity int) float64 {
	return decimal.NewFromFloat(unitPrice).Mul(decimal.NewFromInt(int64(quantity))).InexactFloat64()
}

func sumAmounts(amounts ...float64) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromFloat(a))
	}
	return total.InexactFloat64()
}

// roundAmount converts an order total to the integer amount sent to gateways.
func roundAmount(total float64) int64 {
	return decimal.NewFromFloat(total).Round(0).IntPart()
}

func totalsDiffer(a, b float64) bool {
	return math.Abs(a-b) > totalEpsilon
}
