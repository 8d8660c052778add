package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StartingCash is the balance every account opens with.
var StartingCash = decimal.RequireFromString("1000.00")

// User represents a registered user
type User struct {
	ID           int             `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	Cash         decimal.Decimal `json:"cash"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Position is a user's holding of one ticker. Shares is always positive;
// a position that is sold down to zero is deleted.
type Position struct {
	ID     int    `json:"id"`
	UserID int    `json:"user_id"`
	Ticker string `json:"ticker"`
	Shares int    `json:"shares"`
}

// TransactionType is either BUY or SELL.
type TransactionType string

const (
	Buy  TransactionType = "BUY"
	Sell TransactionType = "SELL"
)

// Transaction is an immutable ledger entry for a completed buy or sell
type Transaction struct {
	ID        int             `json:"id"`
	UserID    int             `json:"user_id"`
	Type      TransactionType `json:"type"`
	Ticker    string          `json:"ticker"`
	Shares    int             `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

// Quote is a point-in-time price for a symbol
type Quote struct {
	Name   string          `json:"name"`
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}
