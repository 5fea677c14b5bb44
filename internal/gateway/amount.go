package gateway

import "github.com/shopspring/decimal"

// DefaultAmountTolerance absorbs rounding drift between the provider's
// amount formatting and the stored invoice amount. One cent, no more: the
// tolerance exists for representational drift, not to allow underpayment.
var DefaultAmountTolerance = decimal.NewFromFloat(0.01)

// AmountsMatch reports whether the notified gross amount reconciles with the
// expected invoice amount within the tolerance. Pure function over fixed-point
// decimals; binary floats must never reach this comparison.
func AmountsMatch(expected, notifiedGross, tolerance decimal.Decimal) bool {
	return expected.Sub(notifiedGross).Abs().LessThanOrEqual(tolerance)
}
