// Package money formats decimal amounts for display.
package money

import (
	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// USD formats an amount of dollars as "$1,234.56", rounding half away from
// zero to the cent.
func USD(amount decimal.Decimal) string {
	cents := amount.Shift(2).Round(0).IntPart()
	return gomoney.New(cents, gomoney.USD).Display()
}
