package gateway

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAmountsMatch(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		gross    string
		want     bool
	}{
		{"exact match", "499.00", "499.00", true},
		{"one cent under, boundary", "499.00", "498.99", true},
		{"one cent over, boundary", "499.00", "499.01", true},
		{"two cents under", "499.00", "498.98", false},
		{"two cents over", "499.00", "499.02", false},
		{"gross zero against nonzero invoice", "499.00", "0.00", false},
		{"fractional drift inside tolerance", "499.005", "499.00", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AmountsMatch(dec(tt.expected), dec(tt.gross), DefaultAmountTolerance)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmountsMatch_CustomTolerance(t *testing.T) {
	// A stricter tolerance turns the one-cent boundary into a failure.
	assert.False(t, AmountsMatch(dec("499.00"), dec("499.01"), dec("0.001")))
	assert.True(t, AmountsMatch(dec("499.00"), dec("499.00"), dec("0.001")))
}
