package quote

import (
	"errors"
	"fmt"
)

// Options carries the credentials of every provider; only the selected
// provider's fields are read.
type Options struct {
	AlphaVantageAPIKey string
	AlpacaAPIKey       string
	AlpacaAPISecret    string
	AlpacaDataURL      string
	StaticQuotes       string
}

// NewProvider builds the provider called name ("alphavantage", "alpaca" or "static").
func NewProvider(name string, o Options) (Provider, error) {
	switch name {
	case "alphavantage":
		if o.AlphaVantageAPIKey == "" {
			return nil, errors.New("alphavantage needs an API key")
		}
		return NewAlphaVantage(o.AlphaVantageAPIKey), nil
	case "alpaca":
		if o.AlpacaAPIKey == "" || o.AlpacaAPISecret == "" {
			return nil, errors.New("alpaca needs an API key and secret")
		}
		return NewAlpaca(o.AlpacaAPIKey, o.AlpacaAPISecret, o.AlpacaDataURL), nil
	case "static":
		return ParseStatic(o.StaticQuotes)
	default:
		return nil, fmt.Errorf("unknown quote provider %q", name)
	}
}
