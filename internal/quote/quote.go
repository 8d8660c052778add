// Package quote looks up current prices from a market-data provider.
package quote

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/xtrntr/papertrade/internal/metrics"
	"github.com/xtrntr/papertrade/internal/models"
)

// Status is the outcome of a lookup.
type Status int

const (
	Found Status = iota
	NotFound
	TransientError
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "transient_error"
	}
}

// Result is a tagged lookup result. Quote is set only when Status is Found;
// Err carries the cause of a TransientError.
type Result struct {
	Status Status
	Quote  *models.Quote
	Err    error
}

func found(q *models.Quote) Result { return Result{Status: Found, Quote: q} }
func notFound() Result             { return Result{Status: NotFound} }
func transient(err error) Result   { return Result{Status: TransientError, Err: err} }

// Provider is a remote source of prices. Implementations receive an already
// normalized symbol and must honour ctx cancellation.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, symbol string) Result
}

// Normalize uppercases and trims a ticker symbol.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Service wraps a Provider with symbol normalization, a per-lookup timeout,
// logging and metrics.
type Service struct {
	provider Provider
	timeout  time.Duration
}

// NewService creates a quote service. A zero timeout disables the deadline.
func NewService(provider Provider, timeout time.Duration) *Service {
	return &Service{provider: provider, timeout: timeout}
}

// Lookup returns the current quote for symbol.
func (s *Service) Lookup(ctx context.Context, symbol string) Result {
	symbol = Normalize(symbol)
	if symbol == "" {
		return notFound()
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res := s.provider.Lookup(ctx, symbol)
	if res.Status == Found && res.Quote == nil {
		res = transient(errors.New("provider returned no quote"))
	}
	if res.Status != TransientError && ctx.Err() != nil {
		res = transient(ctx.Err())
	}

	if res.Status == TransientError {
		log.Printf("quote: %s lookup for %s failed: %v", s.provider.Name(), symbol, res.Err)
	}
	metrics.QuoteLookups.WithLabelValues(s.provider.Name(), res.Status.String()).Inc()
	return res
}

// Find collapses every outcome other than Found into "not found".
func (s *Service) Find(ctx context.Context, symbol string) (*models.Quote, bool) {
	res := s.Lookup(ctx, symbol)
	if res.Status != Found {
		return nil, false
	}
	return res.Quote, true
}
