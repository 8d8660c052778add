package quote

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xtrntr/papertrade/internal/models"

	"github.com/shopspring/decimal"
)

// Static serves prices from an in-memory table.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStatic creates a Static provider. Symbols are normalized.
func NewStatic(prices map[string]decimal.Decimal) *Static {
	s := &Static{prices: make(map[string]decimal.Decimal, len(prices))}
	for symbol, price := range prices {
		s.prices[Normalize(symbol)] = price
	}
	return s
}

// ParseStatic builds a Static provider from "AAPL=190.12,MSFT=410.5".
func ParseStatic(table string) (*Static, error) {
	prices := make(map[string]decimal.Decimal)
	for _, entry := range strings.Split(table, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		symbol, raw, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(symbol) == "" {
			return nil, fmt.Errorf("invalid static quote %q: want SYMBOL=PRICE", entry)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid price for %s: %w", symbol, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("price for %s must be positive", symbol)
		}
		prices[symbol] = price
	}
	return NewStatic(prices), nil
}

// Set changes or adds the price of a symbol.
func (s *Static) Set(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[Normalize(symbol)] = price
}

func (s *Static) Name() string { return "static" }

func (s *Static) Lookup(ctx context.Context, symbol string) Result {
	if err := ctx.Err(); err != nil {
		return transient(err)
	}
	s.mu.RLock()
	price, ok := s.prices[symbol]
	s.mu.RUnlock()
	if !ok {
		return notFound()
	}
	return found(&models.Quote{Name: symbol, Symbol: symbol, Price: price})
}
