package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtrntr/papertrade/internal/api"
	"github.com/xtrntr/papertrade/internal/auth"
	"github.com/xtrntr/papertrade/internal/config"
	"github.com/xtrntr/papertrade/internal/db"
	"github.com/xtrntr/papertrade/internal/logger"
	"github.com/xtrntr/papertrade/internal/quote"
	"github.com/xtrntr/papertrade/internal/session"
	"github.com/xtrntr/papertrade/internal/trading"

	"github.com/go-redis/redis/v8"
)

// Main entry point: sets up storage, sessions, quotes and the HTTP server
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if rotator := logger.Setup(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups); rotator != nil {
		defer rotator.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection and schema
	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	sessions, closeSessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to set up sessions: %v", err)
	}
	defer closeSessions()

	provider, err := newQuoteProvider(cfg)
	if err != nil {
		log.Fatalf("Failed to set up quotes: %v", err)
	}
	quotes := quote.NewService(provider, cfg.QuoteTimeout)

	authService := auth.NewAuthService(store, sessions, []byte(cfg.SessionSecret), cfg.SessionTTL)
	engine := trading.NewEngine(store, quotes)
	handler := api.NewHandler(authService, engine, quotes, cfg.StreamInterval)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(handler, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown failed: %v", err)
		}
	}()

	log.Printf("Starting server on %s (quotes: %s)", cfg.ListenAddr, provider.Name())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Server stopped")
}

func newSessionStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	if cfg.RedisAddr == "" {
		log.Println("Using in-memory sessions")
		return session.NewMemoryStore(), func() {}, nil
	}

	rs, err := session.NewRedisStore(ctx, &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Using redis sessions at %s", cfg.RedisAddr)
	return rs, func() { rs.Close() }, nil
}

func newQuoteProvider(cfg *config.Config) (quote.Provider, error) {
	return quote.NewProvider(cfg.QuoteProvider, quote.Options{
		AlphaVantageAPIKey: cfg.AlphaVantageAPIKey,
		AlpacaAPIKey:       cfg.AlpacaAPIKey,
		AlpacaAPISecret:    cfg.AlpacaAPISecret,
		AlpacaDataURL:      cfg.AlpacaDataURL,
		StaticQuotes:       cfg.StaticQuotes,
	})
}
