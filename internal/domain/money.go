package domain

import "github.com/shopspring/decimal"

// Subtotal is price × quantity without binary float drift.
func Subtotal(price float64, quantity int) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(quantity)))
}

// Amount rounds d to cents.
func Amount(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
