package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xtrntr/papertrade/internal/auth"
	"github.com/xtrntr/papertrade/internal/config"
	"github.com/xtrntr/papertrade/internal/db"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/money"
	"github.com/xtrntr/papertrade/internal/quote"
	"github.com/xtrntr/papertrade/internal/session"
	"github.com/xtrntr/papertrade/internal/trading"

	"github.com/google/subcommands"
)

var commands = []subcommands.Command{
	&migrateCmd{},
	&createUserCmd{},
	&seedCmd{},
	&quoteCmd{},
	&portfolioCmd{},
}

var stdout io.Writer = os.Stdout

func openStore(ctx context.Context) (*config.Config, db.Store, error) {
	cfg, err := config.LoadTools()
	if err != nil {
		return nil, nil, err
	}
	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func quoteService(cfg *config.Config) (*quote.Service, error) {
	provider, err := quote.NewProvider(cfg.QuoteProvider, quote.Options{
		AlphaVantageAPIKey: cfg.AlphaVantageAPIKey,
		AlpacaAPIKey:       cfg.AlpacaAPIKey,
		AlpacaAPISecret:    cfg.AlpacaAPISecret,
		AlpacaDataURL:      cfg.AlpacaDataURL,
		StaticQuotes:       cfg.StaticQuotes,
	})
	if err != nil {
		return nil, err
	}
	return quote.NewService(provider, cfg.QuoteTimeout), nil
}

// accounts creates users without ever issuing sessions.
func accounts(store db.Store) *auth.AuthService {
	return auth.NewAuthService(store, session.NewMemoryStore(), nil, 0)
}

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "create or update the database schema" }
func (*migrateCmd) Usage() string {
	return `migrate

  Applies the schema to DATABASE_URL. Safe to run repeatedly.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, store, err := openStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer store.Close()
	fmt.Fprintf(stdout, "Schema is up to date (%s)\n", dbScheme(cfg.DatabaseURL))
	return subcommands.ExitSuccess
}

func dbScheme(url string) string {
	scheme, _, _ := strings.Cut(url, "://")
	return scheme
}

type createUserCmd struct {
	username string
	password string
}

func (*createUserCmd) Name() string     { return "create-user" }
func (*createUserCmd) Synopsis() string { return "register an account with the starting cash balance" }
func (*createUserCmd) Usage() string {
	return `create-user -username <name> -password <password>

  Registers an account exactly as the /register form does.
`
}

func (c *createUserCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.username, "username", "", "Account name (required)")
	f.StringVar(&c.password, "password", "", "Password, 8 to 20 characters with upper, lower, digit and symbol (required)")
}

func (c *createUserCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.username == "" || c.password == "" {
		fmt.Fprintln(os.Stderr, "Error: -username and -password are required.")
		return subcommands.ExitUsageError
	}
	_, store, err := openStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer store.Close()

	user, err := accounts(store).Register(ctx, c.username, c.password, c.password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating user: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "Created user %s (id %d) with %s\n", user.Username, user.ID, money.USD(user.Cash))
	return subcommands.ExitSuccess
}

// seedTrades are replayed for every seeded account.
var seedTrades = []struct {
	side   models.TransactionType
	symbol string
	shares string
}{
	{models.Buy, "AAPL", "1"},
	{models.Buy, "MSFT", "1"},
	{models.Buy, "NVDA", "3"},
	{models.Sell, "NVDA", "1"},
}

type seedCmd struct {
	users    string
	password string
	prices   string
}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "create demo accounts with a few trades" }
func (*seedCmd) Usage() string {
	return `seed [-users trader1,trader2] [-password <password>] [-prices AAPL=190.12,...]

  Creates each missing demo account and replays a short trade history at
  the given fixed prices. Existing accounts are left alone. An account whose
  trades fail is removed again.
`
}

func (c *seedCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.users, "users", "trader1,trader2", "Comma-separated account names")
	f.StringVar(&c.password, "password", "Trader#2024", "Password for every seeded account")
	f.StringVar(&c.prices, "prices", "AAPL=190.12,MSFT=410.50,NVDA=120.00", "Fixed prices used for the seeded trades")
}

func (c *seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	prices, err := quote.ParseStatic(c.prices)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	_, store, err := openStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer store.Close()

	engine := trading.NewEngine(store, quote.NewService(prices, 0))
	svc := accounts(store)

	for _, name := range strings.Split(c.users, ",") {
		name = auth.NormalizeUsername(name)
		if name == "" {
			continue
		}

		user, err := svc.Register(ctx, name, c.password, c.password)
		if errors.Is(err, models.ErrUsernameTaken) {
			fmt.Fprintf(stdout, "User %s already exists. No need to seed.\n", name)
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating user %s: %v\n", name, err)
			return subcommands.ExitFailure
		}

		if err := replayTrades(ctx, engine, user.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Error seeding %s: %v\n", name, err)
			// Seeded accounts are all or nothing.
			if err := store.DeleteUser(ctx, user.ID); err != nil {
				fmt.Fprintf(os.Stderr, "Error removing partially seeded user %s: %v\n", name, err)
			}
			return subcommands.ExitFailure
		}
		fmt.Fprintf(stdout, "Seeded %s with %d trades\n", name, len(seedTrades))
	}
	return subcommands.ExitSuccess
}

func replayTrades(ctx context.Context, engine *trading.Engine, userID int) error {
	for _, tr := range seedTrades {
		var err error
		if tr.side == models.Buy {
			_, err = engine.Buy(ctx, userID, tr.symbol, tr.shares)
		} else {
			_, err = engine.Sell(ctx, userID, tr.symbol, tr.shares)
		}
		if err != nil {
			return fmt.Errorf("%s %s %s: %w", tr.side, tr.shares, tr.symbol, err)
		}
	}
	return nil
}

type quoteCmd struct{}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "look up symbols with the configured provider" }
func (*quoteCmd) Usage() string {
	return `quote <symbol> [<symbol>...]

  Prints the lookup outcome for each symbol: found, not_found or
  transient_error. Uses QUOTE_PROVIDER and its credentials.
`
}
func (*quoteCmd) SetFlags(*flag.FlagSet) {}

func (*quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one symbol is required.")
		return subcommands.ExitUsageError
	}
	cfg, err := config.LoadTools()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	quotes, err := quoteService(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	status := subcommands.ExitSuccess
	for _, symbol := range f.Args() {
		res := quotes.Lookup(ctx, symbol)
		switch res.Status {
		case quote.Found:
			fmt.Fprintf(stdout, "%-8s %-15s %s\n", res.Quote.Symbol, res.Status, money.USD(res.Quote.Price))
		case quote.TransientError:
			fmt.Fprintf(stdout, "%-8s %-15s %v\n", quote.Normalize(symbol), res.Status, res.Err)
			status = subcommands.ExitFailure
		default:
			fmt.Fprintf(stdout, "%-8s %s\n", quote.Normalize(symbol), res.Status)
		}
	}
	return status
}

type portfolioCmd struct {
	username string
}

func (*portfolioCmd) Name() string     { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "print an account's holdings at current prices" }
func (*portfolioCmd) Usage() string {
	return `portfolio -username <name>

  Values the account the same way the home page does.
`
}

func (c *portfolioCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.username, "username", "", "Account name (required)")
}

func (c *portfolioCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.username == "" {
		fmt.Fprintln(os.Stderr, "Error: -username is required.")
		return subcommands.ExitUsageError
	}
	cfg, store, err := openStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer store.Close()

	user, err := store.GetUserByUsername(ctx, auth.NormalizeUsername(c.username))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error finding user %s: %v\n", c.username, err)
		return subcommands.ExitFailure
	}
	quotes, err := quoteService(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	v, err := trading.NewEngine(store, quotes).Portfolio(ctx, user.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error valuing portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	for _, h := range v.Holdings {
		if !h.Priced {
			fmt.Fprintf(stdout, "%-8s %6d  price unavailable\n", h.Ticker, h.Shares)
			continue
		}
		fmt.Fprintf(stdout, "%-8s %6d  %12s  %12s\n", h.Ticker, h.Shares, money.USD(h.Price), money.USD(h.Value))
	}
	fmt.Fprintf(stdout, "%-8s %6s  %12s  %12s\n", "CASH", "", "", money.USD(v.Cash))
	fmt.Fprintf(stdout, "%-8s %6s  %12s  %12s\n", "TOTAL", "", "", money.USD(v.Total))
	return subcommands.ExitSuccess
}
