package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Quote providers selectable with QUOTE_PROVIDER.
const (
	ProviderAlphaVantage = "alphavantage"
	ProviderAlpaca       = "alpaca"
	ProviderStatic       = "static"
)

// Config holds the server settings read from the environment.
type Config struct {
	DatabaseURL string
	ListenAddr  string

	SessionSecret string
	SessionTTL    time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	QuoteProvider      string
	QuoteTimeout       time.Duration
	AlphaVantageAPIKey string
	AlpacaAPIKey       string
	AlpacaAPISecret    string
	AlpacaDataURL      string
	StaticQuotes       string

	StreamInterval time.Duration
	CORSOrigins    []string

	LogFile       string
	LogMaxSizeMB  int64
	LogMaxBackups int
}

// secretVars are masked when the .env file is echoed at startup.
var secretVars = map[string]bool{
	"SESSION_SECRET":       true,
	"REDIS_PASSWORD":       true,
	"ALPHAVANTAGE_API_KEY": true,
	"APCA_API_KEY_ID":      true,
	"APCA_API_SECRET_KEY":  true,
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	return load(true)
}

// LoadTools is Load without the SESSION_SECRET and provider credential
// checks. The admin CLI only needs the parts it touches.
func LoadTools() (*Config, error) {
	return load(false)
}

func load(server bool) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: No .env file found, using system environment variables")
	} else {
		logEnvFile()
	}

	cfg := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", "sqlite:///finance.db"),
		ListenAddr:         getEnv("LISTEN_ADDR", ":8080"),
		SessionSecret:      os.Getenv("SESSION_SECRET"),
		SessionTTL:         getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvAsInt("REDIS_DB", 0),
		QuoteProvider:      strings.ToLower(getEnv("QUOTE_PROVIDER", ProviderAlphaVantage)),
		QuoteTimeout:       getEnvAsDuration("QUOTE_TIMEOUT", 5*time.Second),
		AlphaVantageAPIKey: os.Getenv("ALPHAVANTAGE_API_KEY"),
		AlpacaAPIKey:       os.Getenv("APCA_API_KEY_ID"),
		AlpacaAPISecret:    os.Getenv("APCA_API_SECRET_KEY"),
		AlpacaDataURL:      os.Getenv("APCA_DATA_URL"),
		StaticQuotes:       os.Getenv("STATIC_QUOTES"),
		StreamInterval:     getEnvAsDuration("STREAM_INTERVAL", 10*time.Second),
		CORSOrigins:        getEnvAsList("CORS_ORIGINS"),
		LogFile:            os.Getenv("LOG_FILE"),
		LogMaxSizeMB:       int64(getEnvAsInt("LOG_MAX_SIZE_MB", 10)),
		LogMaxBackups:      getEnvAsInt("LOG_MAX_BACKUPS", 3),
	}

	if err := cfg.validate(server); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate(server bool) error {
	if server {
		if missing := c.missingServerVars(); len(missing) > 0 {
			return fmt.Errorf("missing required environment variables: %v", missing)
		}
	}
	switch c.QuoteProvider {
	case ProviderAlphaVantage, ProviderAlpaca, ProviderStatic:
	default:
		return fmt.Errorf("unknown QUOTE_PROVIDER %q", c.QuoteProvider)
	}
	if c.SessionTTL <= 0 || c.StreamInterval <= 0 {
		return errors.New("SESSION_TTL and STREAM_INTERVAL must be positive")
	}
	return nil
}

// missingServerVars lists the variables the server cannot start without:
// the session secret and the selected provider's credentials.
func (c *Config) missingServerVars() []string {
	var missing []string
	if c.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	switch c.QuoteProvider {
	case ProviderAlphaVantage:
		if c.AlphaVantageAPIKey == "" {
			missing = append(missing, "ALPHAVANTAGE_API_KEY")
		}
	case ProviderAlpaca:
		if c.AlpacaAPIKey == "" {
			missing = append(missing, "APCA_API_KEY_ID")
		}
		if c.AlpacaAPISecret == "" {
			missing = append(missing, "APCA_API_SECRET_KEY")
		}
	case ProviderStatic:
		if c.StaticQuotes == "" {
			missing = append(missing, "STATIC_QUOTES")
		}
	}
	return missing
}

// logEnvFile prints the variables defined in .env with secrets masked.
func logEnvFile() {
	envMap, err := godotenv.Read()
	if err != nil {
		return
	}
	log.Println("--- .env File Variables ---")
	for key, val := range envMap {
		log.Printf("%s=%s", key, mask(key, val))
	}
	log.Println("---------------------------")
}

func mask(key, val string) string {
	if !secretVars[key] {
		return val
	}
	if len(val) > 4 {
		return "***" + val[len(val)-4:]
	}
	return "***"
}
