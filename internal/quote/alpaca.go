package quote

import (
	"context"
	"strings"

	"github.com/xtrntr/papertrade/internal/models"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// Alpaca uses the latest trade from the Alpaca market data API as the quote.
type Alpaca struct {
	client *marketdata.Client
}

// NewAlpaca creates an Alpaca provider. Empty credentials fall back to the
// APCA_* environment variables read by the client library.
func NewAlpaca(apiKey, apiSecret, baseURL string) *Alpaca {
	return &Alpaca{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
	}
}

func (a *Alpaca) Name() string { return "alpaca" }

func (a *Alpaca) Lookup(ctx context.Context, symbol string) Result {
	type reply struct {
		trade *marketdata.Trade
		err   error
	}

	// The client has no context support, so the call is abandoned rather
	// than cancelled when ctx ends.
	ch := make(chan reply, 1)
	go func() {
		trade, err := a.client.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
		ch <- reply{trade: trade, err: err}
	}()

	var r reply
	select {
	case <-ctx.Done():
		return transient(ctx.Err())
	case r = <-ch:
	}

	if r.err != nil {
		if strings.Contains(strings.ToLower(r.err.Error()), "not found") {
			return notFound()
		}
		return transient(r.err)
	}
	if r.trade == nil || r.trade.Price <= 0 {
		return notFound()
	}
	return found(&models.Quote{
		Name:   symbol,
		Symbol: symbol,
		Price:  decimal.NewFromFloat(r.trade.Price),
	})
}
