// Package trading implements buying, selling and valuing a simulated portfolio.
package trading

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/xtrntr/papertrade/internal/db"
	"github.com/xtrntr/papertrade/internal/metrics"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/validate"

	"github.com/shopspring/decimal"
)

// Engine executes trades against the store at current quotes
type Engine struct {
	store  db.Store
	quotes validate.QuoteFinder
}

// NewEngine creates a new trading engine
func NewEngine(store db.Store, quotes validate.QuoteFinder) *Engine {
	return &Engine{store: store, quotes: quotes}
}

// Buy purchases shares of symbol at the current price. The ledger entry,
// the position change and the cash debit commit together or not at all.
func (e *Engine) Buy(ctx context.Context, userID int, symbol, shares string) (*models.Transaction, error) {
	q, n, err := validate.TickerShares(ctx, e.quotes, symbol, shares)
	if err != nil {
		rejected(models.Buy, err)
		return nil, err
	}
	cost := q.Price.Mul(decimal.NewFromInt(int64(n)))

	var rec *models.Transaction
	err = e.store.InTx(ctx, func(tx db.Tx) error {
		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		if cost.GreaterThan(user.Cash) {
			return models.ErrInsufficientFunds
		}

		rec, err = tx.CreateTransaction(ctx, &models.Transaction{
			UserID: userID,
			Type:   models.Buy,
			Ticker: q.Symbol,
			Shares: n,
			Price:  q.Price,
		})
		if err != nil {
			return err
		}

		pos, err := tx.GetPosition(ctx, userID, q.Symbol)
		switch {
		case errors.Is(err, db.ErrNotFound):
			if _, err := tx.CreatePosition(ctx, userID, q.Symbol, n); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := tx.UpdatePositionShares(ctx, pos.ID, pos.Shares+n); err != nil {
				return err
			}
		}

		return tx.UpdateCash(ctx, userID, user.Cash.Sub(cost))
	})
	if err != nil {
		rejected(models.Buy, err)
		return nil, err
	}

	metrics.Trades.WithLabelValues(string(models.Buy)).Inc()
	return rec, nil
}

// Sell disposes of shares of symbol at the current price. A position sold
// down to zero is deleted.
func (e *Engine) Sell(ctx context.Context, userID int, symbol, shares string) (*models.Transaction, error) {
	q, n, err := validate.TickerShares(ctx, e.quotes, symbol, shares)
	if err != nil {
		rejected(models.Sell, err)
		return nil, err
	}
	proceeds := q.Price.Mul(decimal.NewFromInt(int64(n)))

	var rec *models.Transaction
	err = e.store.InTx(ctx, func(tx db.Tx) error {
		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}

		pos, err := tx.GetPosition(ctx, userID, q.Symbol)
		if errors.Is(err, db.ErrNotFound) {
			return models.ErrInsufficientShares
		}
		if err != nil {
			return err
		}
		if pos.Shares < n {
			return models.ErrInsufficientShares
		}

		rec, err = tx.CreateTransaction(ctx, &models.Transaction{
			UserID: userID,
			Type:   models.Sell,
			Ticker: q.Symbol,
			Shares: n,
			Price:  q.Price,
		})
		if err != nil {
			return err
		}

		if pos.Shares == n {
			err = tx.DeletePosition(ctx, pos.ID)
		} else {
			err = tx.UpdatePositionShares(ctx, pos.ID, pos.Shares-n)
		}
		if err != nil {
			return err
		}

		return tx.UpdateCash(ctx, userID, user.Cash.Add(proceeds))
	})
	if err != nil {
		rejected(models.Sell, err)
		return nil, err
	}

	metrics.Trades.WithLabelValues(string(models.Sell)).Inc()
	return rec, nil
}

func rejected(side models.TransactionType, err error) {
	var uerr *models.UserError
	if errors.As(err, &uerr) {
		metrics.TradeRejections.WithLabelValues(string(side), string(uerr.Kind)).Inc()
	}
}

// Holding is a position valued at the current price. Price and Value are
// zero when Priced is false.
type Holding struct {
	Ticker string          `json:"ticker"`
	Shares int             `json:"shares"`
	Price  decimal.Decimal `json:"price"`
	Value  decimal.Decimal `json:"value"`
	Priced bool            `json:"priced"`
}

// Valuation is a user's portfolio at current prices. Total is cash plus the
// value of every priced holding; holdings whose quote could not be fetched
// are counted in Unpriced and left out of Total.
type Valuation struct {
	Holdings []Holding       `json:"holdings"`
	Cash     decimal.Decimal `json:"cash"`
	Total    decimal.Decimal `json:"total"`
	Unpriced int             `json:"unpriced"`
}

// Portfolio values every position of the user at the current price.
func (e *Engine) Portfolio(ctx context.Context, userID int) (*Valuation, error) {
	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	positions, err := e.store.GetPositions(ctx, userID)
	if err != nil {
		return nil, err
	}

	v := &Valuation{
		Holdings: make([]Holding, 0, len(positions)),
		Cash:     user.Cash,
		Total:    user.Cash,
	}
	for _, p := range positions {
		h := Holding{Ticker: p.Ticker, Shares: p.Shares}
		if q, ok := e.quotes.Find(ctx, p.Ticker); ok {
			h.Price = q.Price
			h.Value = q.Price.Mul(decimal.NewFromInt(int64(p.Shares)))
			h.Priced = true
			v.Total = v.Total.Add(h.Value)
		} else {
			v.Unpriced++
		}
		v.Holdings = append(v.Holdings, h)
	}
	return v, nil
}

// History returns the user's transactions in the order they happened.
func (e *Engine) History(ctx context.Context, userID int) ([]models.Transaction, error) {
	transactions, err := e.store.GetTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return transactions, nil
}

// HeldTickers returns the tickers the user currently holds, sorted.
func (e *Engine) HeldTickers(ctx context.Context, userID int) ([]string, error) {
	positions, err := e.store.GetPositions(ctx, userID)
	if err != nil {
		return nil, err
	}
	tickers := make([]string, 0, len(positions))
	for _, p := range positions {
		tickers = append(tickers, p.Ticker)
	}
	sort.Strings(tickers)
	return tickers, nil
}
