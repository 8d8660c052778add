package trading

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/papertrade/internal/db"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/quote"
)

// flakyProvider fails transiently for the symbols in down and otherwise
// serves from a static table.
type flakyProvider struct {
	*quote.Static
	mu   sync.Mutex
	down map[string]bool
}

func (f *flakyProvider) Lookup(ctx context.Context, symbol string) quote.Result {
	f.mu.Lock()
	isDown := f.down[symbol]
	f.mu.Unlock()
	if isDown {
		return quote.Result{Status: quote.TransientError, Err: errors.New("connection reset")}
	}
	return f.Static.Lookup(ctx, symbol)
}

func (f *flakyProvider) setDown(symbol string, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down[symbol] = down
}

type fixture struct {
	engine *Engine
	store  db.Store
	prices *flakyProvider
	user   *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := db.Open(ctx, "sqlite:///"+filepath.Join(t.TempDir(), "trading.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	static, err := quote.ParseStatic("AAPL=10.00,MSFT=333.33,NFLX=0.01")
	require.NoError(t, err)
	prices := &flakyProvider{Static: static, down: map[string]bool{}}

	user, err := store.CreateUser(ctx, "alice", "hash", models.StartingCash)
	require.NoError(t, err)

	return &fixture{
		engine: NewEngine(store, quote.NewService(prices, 0)),
		store:  store,
		prices: prices,
		user:   user,
	}
}

func (f *fixture) cash(t *testing.T) decimal.Decimal {
	t.Helper()
	u, err := f.store.GetUserByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	return u.Cash
}

func (f *fixture) shares(t *testing.T, ticker string) int {
	t.Helper()
	positions, err := f.store.GetPositions(context.Background(), f.user.ID)
	require.NoError(t, err)
	for _, p := range positions {
		if p.Ticker == ticker {
			return p.Shares
		}
	}
	return 0
}

func (f *fixture) ledger(t *testing.T) []models.Transaction {
	t.Helper()
	transactions, err := f.store.GetTransactions(context.Background(), f.user.ID)
	require.NoError(t, err)
	return transactions
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func TestEngine_Buy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.engine.Buy(ctx, f.user.ID, "aapl", "5")
	require.NoError(t, err)
	assert.Equal(t, models.Buy, rec.Type)
	assert.Equal(t, "AAPL", rec.Ticker)
	assert.Equal(t, 5, rec.Shares)
	assertDecimal(t, "10", rec.Price)

	assertDecimal(t, "950", f.cash(t))
	assert.Equal(t, 5, f.shares(t, "AAPL"))

	// A second buy of the same ticker increments the existing position.
	_, err = f.engine.Buy(ctx, f.user.ID, "AAPL", " 3 ")
	require.NoError(t, err)
	assertDecimal(t, "920", f.cash(t))
	assert.Equal(t, 8, f.shares(t, "AAPL"))

	positions, err := f.store.GetPositions(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, positions, 1)

	ledger := f.ledger(t)
	require.Len(t, ledger, 2)
	assert.Equal(t, 5, ledger[0].Shares)
	assert.Equal(t, 3, ledger[1].Shares)
}

func TestEngine_Buy_Rejected(t *testing.T) {
	tests := []struct {
		name        string
		symbol      string
		shares      string
		expectError error
	}{
		{"NotAnInteger", "AAPL", "1.5", models.ErrInvalidShares},
		{"Blank", "AAPL", "", models.ErrInvalidShares},
		{"Zero", "AAPL", "0", models.ErrInvalidShares},
		{"Negative", "AAPL", "-3", models.ErrInvalidShares},
		{"UnknownTicker", "ZZZZ", "1", models.ErrUnknownTicker},
		{"EmptyTicker", "", "1", models.ErrUnknownTicker},
		{"InsufficientFunds", "MSFT", "4", models.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.engine.Buy(context.Background(), f.user.ID, tt.symbol, tt.shares)
			assert.ErrorIs(t, err, tt.expectError)

			assertDecimal(t, "1000", f.cash(t))
			assert.Empty(t, f.ledger(t))
			assert.Zero(t, f.shares(t, "AAPL"))
			assert.Zero(t, f.shares(t, "MSFT"))
		})
	}
}

func TestEngine_Buy_ExactCash(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Buy(context.Background(), f.user.ID, "AAPL", "100")
	require.NoError(t, err)
	assertDecimal(t, "0", f.cash(t))

	_, err = f.engine.Buy(context.Background(), f.user.ID, "NFLX", "1")
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	assertDecimal(t, "0", f.cash(t))
}

func TestEngine_Buy_TransientQuoteFailure(t *testing.T) {
	f := newFixture(t)
	f.prices.setDown("AAPL", true)

	_, err := f.engine.Buy(context.Background(), f.user.ID, "AAPL", "1")
	assert.ErrorIs(t, err, models.ErrUnknownTicker)
	assertDecimal(t, "1000", f.cash(t))
}

func TestEngine_Sell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Buy(ctx, f.user.ID, "AAPL", "10")
	require.NoError(t, err)

	// Price moves up before the sale.
	f.prices.Set("AAPL", decimal.RequireFromString("12.50"))

	rec, err := f.engine.Sell(ctx, f.user.ID, "AAPL", "4")
	require.NoError(t, err)
	assert.Equal(t, models.Sell, rec.Type)
	assert.Equal(t, 4, rec.Shares)
	assertDecimal(t, "12.5", rec.Price)

	assertDecimal(t, "950", f.cash(t))
	assert.Equal(t, 6, f.shares(t, "AAPL"))

	// Selling the rest deletes the position.
	_, err = f.engine.Sell(ctx, f.user.ID, "aapl", "6")
	require.NoError(t, err)
	assertDecimal(t, "1025", f.cash(t))

	positions, err := f.store.GetPositions(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, positions)

	ledger := f.ledger(t)
	require.Len(t, ledger, 3)
	assert.Equal(t, models.Buy, ledger[0].Type)
	assert.Equal(t, models.Sell, ledger[1].Type)
	assert.Equal(t, models.Sell, ledger[2].Type)
}

func TestEngine_Sell_Rejected(t *testing.T) {
	tests := []struct {
		name        string
		symbol      string
		shares      string
		expectError error
	}{
		{"MoreThanHeld", "AAPL", "6", models.ErrInsufficientShares},
		{"NoPosition", "MSFT", "1", models.ErrInsufficientShares},
		{"NotAnInteger", "AAPL", "abc", models.ErrInvalidShares},
		{"Zero", "AAPL", "0", models.ErrInvalidShares},
		{"UnknownTicker", "ZZZZ", "1", models.ErrUnknownTicker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			_, err := f.engine.Buy(ctx, f.user.ID, "AAPL", "5")
			require.NoError(t, err)

			_, err = f.engine.Sell(ctx, f.user.ID, tt.symbol, tt.shares)
			assert.ErrorIs(t, err, tt.expectError)

			assertDecimal(t, "950", f.cash(t))
			assert.Equal(t, 5, f.shares(t, "AAPL"))
			assert.Len(t, f.ledger(t), 1)
		})
	}
}

func TestEngine_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.cash(t)

	_, err := f.engine.Buy(ctx, f.user.ID, "MSFT", "2")
	require.NoError(t, err)
	assertDecimal(t, "333.34", f.cash(t))

	_, err = f.engine.Sell(ctx, f.user.ID, "MSFT", "2")
	require.NoError(t, err)
	assert.True(t, before.Equal(f.cash(t)), "cash %s after round trip, want %s", f.cash(t), before)
	assert.Zero(t, f.shares(t, "MSFT"))
}

func TestEngine_Buy_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 20 buys of 10 AAPL at 10.00 against 1000 cash: exactly 10 can succeed.
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Buy(ctx, f.user.ID, "AAPL", "10")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	}
	assert.Equal(t, 10, succeeded)
	assertDecimal(t, "0", f.cash(t))
	assert.Equal(t, 100, f.shares(t, "AAPL"))
	assert.Len(t, f.ledger(t), 10)
}

func TestEngine_Portfolio(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Buy(ctx, f.user.ID, "MSFT", "1")
	require.NoError(t, err)
	_, err = f.engine.Buy(ctx, f.user.ID, "AAPL", "5")
	require.NoError(t, err)

	f.prices.Set("AAPL", decimal.RequireFromString("11"))

	v, err := f.engine.Portfolio(ctx, f.user.ID)
	require.NoError(t, err)
	assertDecimal(t, "616.67", v.Cash)
	assert.Zero(t, v.Unpriced)
	require.Len(t, v.Holdings, 2)

	assert.Equal(t, "AAPL", v.Holdings[0].Ticker)
	assert.True(t, v.Holdings[0].Priced)
	assertDecimal(t, "11", v.Holdings[0].Price)
	assertDecimal(t, "55", v.Holdings[0].Value)

	assert.Equal(t, "MSFT", v.Holdings[1].Ticker)
	assertDecimal(t, "333.33", v.Holdings[1].Value)

	assertDecimal(t, "1005", v.Total)
}

func TestEngine_Portfolio_PriceUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Buy(ctx, f.user.ID, "AAPL", "5")
	require.NoError(t, err)
	_, err = f.engine.Buy(ctx, f.user.ID, "MSFT", "1")
	require.NoError(t, err)

	f.prices.setDown("MSFT", true)

	v, err := f.engine.Portfolio(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Unpriced)
	require.Len(t, v.Holdings, 2)

	msft := v.Holdings[1]
	assert.Equal(t, "MSFT", msft.Ticker)
	assert.Equal(t, 1, msft.Shares)
	assert.False(t, msft.Priced)
	assert.True(t, msft.Value.IsZero())

	// Total covers cash and the priced holding only.
	assertDecimal(t, "666.67", v.Total)
}

func TestEngine_Portfolio_Empty(t *testing.T) {
	f := newFixture(t)

	v, err := f.engine.Portfolio(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, v.Holdings)
	assertDecimal(t, "1000", v.Total)

	_, err = f.engine.Portfolio(context.Background(), f.user.ID+100)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestEngine_HistoryAndHeldTickers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, trade := range []struct{ symbol, shares string }{
		{"MSFT", "1"}, {"AAPL", "2"}, {"NFLX", "3"},
	} {
		_, err := f.engine.Buy(ctx, f.user.ID, trade.symbol, trade.shares)
		require.NoError(t, err)
	}
	_, err := f.engine.Sell(ctx, f.user.ID, "NFLX", "3")
	require.NoError(t, err)

	tickers, err := f.engine.HeldTickers(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, tickers)

	history, err := f.engine.History(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	got := make([]string, 0, len(history))
	for _, tx := range history {
		got = append(got, string(tx.Type)+" "+tx.Ticker)
	}
	assert.Equal(t, []string{"BUY MSFT", "BUY AAPL", "BUY NFLX", "SELL NFLX"}, got)

	// Another user sees none of it.
	bob, err := f.store.CreateUser(ctx, "bob", "hash", models.StartingCash)
	require.NoError(t, err)
	tickers, err = f.engine.HeldTickers(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, tickers)
	history, err = f.engine.History(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}
