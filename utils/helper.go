package utils

import (
	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// PercentOf returns amount * pct / 100.
func PercentOf(amount decimal.Decimal, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(oneHundred)
}

// DecimalMax returns the larger of a and b.
func DecimalMax(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// ClampScore forces a match score into [0, 100].
func ClampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func Contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
