// Package validate checks form input before it reaches the trading engine.
package validate

import (
	"context"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xtrntr/papertrade/internal/models"
)

const (
	minPasswordLen   = 8
	maxPasswordLen   = 20
	maxPasswordBytes = 72 // bcrypt input limit

	// maxUsernameLen matches the username column width.
	maxUsernameLen = 80

	// maxSymbolLen matches the ticker column width.
	maxSymbolLen = 10
)

// QuoteFinder reports the current quote for a symbol, or false when none exists.
type QuoteFinder interface {
	Find(ctx context.Context, symbol string) (*models.Quote, bool)
}

// Shares parses a share count, which must be a positive integer.
func Shares(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, models.ErrInvalidShares
	}
	if n <= 0 {
		return 0, models.NewUserError(models.InvalidShares, "number of shares must be positive")
	}
	return n, nil
}

// Ticker looks the symbol up and fails with UnknownTicker when there is no quote.
func Ticker(ctx context.Context, quotes QuoteFinder, symbol string) (*models.Quote, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" || len(symbol) > maxSymbolLen {
		return nil, models.ErrUnknownTicker
	}
	q, ok := quotes.Find(ctx, symbol)
	if !ok {
		return nil, models.ErrUnknownTicker
	}
	return q, nil
}

// TickerShares validates a buy or sell request. Checks run in order: shares
// parse, shares positive, ticker found. The quote is only fetched once the
// share count is valid.
func TickerShares(ctx context.Context, quotes QuoteFinder, symbol, shares string) (*models.Quote, int, error) {
	n, err := Shares(shares)
	if err != nil {
		return nil, 0, err
	}
	q, err := Ticker(ctx, quotes, symbol)
	if err != nil {
		return nil, 0, err
	}
	return q, n, nil
}

// Username rejects names longer than the username column.
func Username(name string) error {
	if utf8.RuneCountInString(name) > maxUsernameLen {
		return models.ErrInvalidUsername
	}
	return nil
}

// Password enforces the password policy: 8 to 20 characters and at most 72
// bytes, with at least one uppercase letter, one lowercase letter, one digit
// and one symbol.
func Password(pw string) error {
	if n := utf8.RuneCountInString(pw); n < minPasswordLen || n > maxPasswordLen {
		return models.ErrWeakPassword
	}
	if len(pw) > maxPasswordBytes {
		return models.ErrWeakPassword
	}

	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case !isWordRune(r):
			symbol = true
		}
	}
	if !(upper && lower && digit && symbol) {
		return models.ErrWeakPassword
	}
	return nil
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
