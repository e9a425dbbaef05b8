package alerts

import "github.com/shopspring/decimal"

// Crossed reports whether price moved across the alert's target in the alert's
// direction between the previous and current observation. Without a previous
// observation nothing can have crossed.
func Crossed(alert Alert, previous decimal.NullDecimal, current decimal.Decimal) bool {
	if !previous.Valid {
		return false
	}
	target := alert.TargetPrice
	switch alert.Direction {
	case Below:
		return current.LessThanOrEqual(target) && previous.Decimal.GreaterThan(target)
	case Above:
		return current.GreaterThanOrEqual(target) && previous.Decimal.LessThan(target)
	default:
		return false
	}
}
