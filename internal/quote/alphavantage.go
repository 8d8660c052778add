package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/xtrntr/papertrade/internal/models"

	"github.com/shopspring/decimal"
)

const alphaVantageURL = "https://www.alphavantage.co/query"

// AlphaVantage fetches quotes from the Alpha Vantage GLOBAL_QUOTE endpoint.
type AlphaVantage struct {
	Client  *http.Client
	APIKey  string
	BaseURL string
}

// NewAlphaVantage creates a provider for the public Alpha Vantage API.
func NewAlphaVantage(apiKey string) *AlphaVantage {
	return &AlphaVantage{
		Client:  &http.Client{},
		APIKey:  apiKey,
		BaseURL: alphaVantageURL,
	}
}

type globalQuoteResponse struct {
	GlobalQuote struct {
		Symbol string `json:"01. symbol"`
		Price  string `json:"05. price"`
	} `json:"Global Quote"`
	// Rate limiting and bad keys are reported with a 200 and one of these.
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

func (a *AlphaVantage) Name() string { return "alphavantage" }

func (a *AlphaVantage) Lookup(ctx context.Context, symbol string) Result {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	params.Set("apikey", a.APIKey)

	var body globalQuoteResponse
	if err := getJSON(ctx, a.Client, a.BaseURL+"?"+params.Encode(), &body); err != nil {
		return transient(err)
	}

	switch {
	case body.Note != "":
		return transient(fmt.Errorf("alphavantage: %s", body.Note))
	case body.Information != "":
		return transient(fmt.Errorf("alphavantage: %s", body.Information))
	case body.ErrorMessage != "", body.GlobalQuote.Price == "":
		return notFound()
	}

	price, err := decimal.NewFromString(body.GlobalQuote.Price)
	if err != nil {
		return transient(fmt.Errorf("alphavantage: invalid price %q: %w", body.GlobalQuote.Price, err))
	}
	if !price.IsPositive() {
		return notFound()
	}

	sym := body.GlobalQuote.Symbol
	if sym == "" {
		sym = symbol
	}
	return found(&models.Quote{Name: sym, Symbol: sym, Price: price})
}

// getJSON performs a GET request and decodes the JSON response into data.
func getJSON(ctx context.Context, client *http.Client, addr string, data interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("cannot http GET %v%v: %v", resp.Request.URL.Host, resp.Request.URL.Path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(data)
}
