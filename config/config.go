// Package config loads terminal settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/multierr"
)

// ErrInconsistentRates means TOTAL_MULTIPLIER is not 1 + VAT_RATE, so the
// displayed VAT and grand total would disagree.
var ErrInconsistentRates = errors.New("total multiplier must equal 1 + vat rate")

type Config struct {
	AppEnv     string
	LogLevel   string
	TerminalID string

	APIBaseURL     string
	APIToken       string
	RequestTimeout time.Duration
	RemoteWorkers  int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CartQueryTTL  time.Duration

	NATSURL     string
	DatabaseDSN string

	VATRate         decimal.Decimal
	TotalMultiplier decimal.Decimal
	Currency        stripe.Currency

	BarcodeMaxLength    int
	ScannerMaxLength    int
	AutoSubmitMinLength int
	AutoSubmitDebounce  time.Duration
}

// Load reads .env files when present, then the process environment.
// Variables already set in the environment win over the files.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var errs error
	envInt := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		errs = multierr.Append(errs, err)
		return v
	}
	envDuration := func(key string, def time.Duration) time.Duration {
		v, err := getEnvDuration(key, def)
		errs = multierr.Append(errs, err)
		return v
	}

	vat, err := getEnvDecimal("VAT_RATE", decimal.RequireFromString("0.15"))
	errs = multierr.Append(errs, err)
	multiplier, err := getEnvDecimal("TOTAL_MULTIPLIER", decimal.NewFromInt(1).Add(vat))
	errs = multierr.Append(errs, err)

	cfg := Config{
		AppEnv:     getEnv("APP_ENV", "dev"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		TerminalID: getEnv("TERMINAL_ID", hostname()),

		APIBaseURL:     getEnv("POS_API_BASE_URL", "http://localhost:8080/api"),
		APIToken:       getEnv("POS_API_TOKEN", ""),
		RequestTimeout: envDuration("POS_REQUEST_TIMEOUT", 10*time.Second),
		RemoteWorkers:  envInt("REMOTE_WORKERS", 4),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),
		CartQueryTTL:  envDuration("CART_QUERY_TTL", 30*time.Second),

		NATSURL:     getEnv("NATS_URL", ""),
		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		VATRate:         vat,
		TotalMultiplier: multiplier,
		Currency:        stripe.Currency(strings.ToLower(getEnv("CURRENCY", string(stripe.CurrencySAR)))),

		BarcodeMaxLength:    envInt("BARCODE_MAX_LENGTH", 20),
		ScannerMaxLength:    envInt("SCANNER_MAX_LENGTH", 40),
		AutoSubmitMinLength: envInt("AUTO_SUBMIT_MIN_LENGTH", 13),
		AutoSubmitDebounce:  envDuration("AUTO_SUBMIT_DEBOUNCE", 100*time.Millisecond),
	}
	if errs != nil {
		return Config{}, errs
	}

	if err = cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs error
	if c.APIBaseURL == "" {
		errs = multierr.Append(errs, errors.New("POS_API_BASE_URL is required"))
	}
	if c.DatabaseDSN == "" {
		errs = multierr.Append(errs, errors.New("DATABASE_DSN is required"))
	}
	if c.RemoteWorkers <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("REMOTE_WORKERS must be positive, got %d", c.RemoteWorkers))
	}
	if c.BarcodeMaxLength <= 0 || c.ScannerMaxLength <= 0 {
		errs = multierr.Append(errs, errors.New("barcode max lengths must be positive"))
	}
	if c.AutoSubmitMinLength <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("AUTO_SUBMIT_MIN_LENGTH must be positive, got %d", c.AutoSubmitMinLength))
	}
	// normalized input never grows past the max length, so auto-submit could not fire
	if c.AutoSubmitMinLength > c.BarcodeMaxLength || c.AutoSubmitMinLength > c.ScannerMaxLength {
		errs = multierr.Append(errs, fmt.Errorf("AUTO_SUBMIT_MIN_LENGTH %d exceeds BARCODE_MAX_LENGTH %d or SCANNER_MAX_LENGTH %d",
			c.AutoSubmitMinLength, c.BarcodeMaxLength, c.ScannerMaxLength))
	}
	if c.AutoSubmitDebounce <= 0 {
		errs = multierr.Append(errs, errors.New("AUTO_SUBMIT_DEBOUNCE must be positive"))
	}
	if c.VATRate.IsNegative() {
		errs = multierr.Append(errs, fmt.Errorf("VAT_RATE must not be negative, got %s", c.VATRate))
	}
	if !c.TotalMultiplier.Equal(decimal.NewFromInt(1).Add(c.VATRate)) {
		errs = multierr.Append(errs, fmt.Errorf("%w: vat %s, multiplier %s", ErrInconsistentRates, c.VATRate, c.TotalMultiplier))
	}
	if len(c.Currency) != 3 {
		errs = multierr.Append(errs, fmt.Errorf("CURRENCY must be an ISO 4217 code, got %q", c.Currency))
	}
	return errs
}

func (c Config) IsDev() bool {
	return c.AppEnv == "dev"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}

	return n, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

// getEnvDecimal fails on malformed values instead of falling back to def.
func getEnvDecimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}

	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "terminal"
	}
	return h
}
