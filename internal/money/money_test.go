package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestUSD(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"1000", "$1,000.00"},
		{"1234.5", "$1,234.50"},
		{"0.125", "$0.13"},
		{"0", "$0.00"},
		{"950.6", "$950.60"},
		{"1234567.891", "$1,234,567.89"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got := USD(decimal.RequireFromString(tt.amount))
			if got != tt.want {
				t.Errorf("USD(%s) = %q, want %q", tt.amount, got, tt.want)
			}
		})
	}
}
