package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"goflare.io/pos"
	"goflare.io/pos/barcode"
	"goflare.io/pos/cache"
	"goflare.io/pos/catalog"
	"goflare.io/pos/client"
	"goflare.io/pos/config"
	"goflare.io/pos/driver"
	"goflare.io/pos/logger"
	"goflare.io/pos/models"
	"goflare.io/pos/pricing"
)

func main() {
	os.Exit(start(os.Args[1:]))
}

// start returns the process exit code once every deferred cleanup has run.
func start(args []string) int {
	fs := flag.NewFlagSet("pos-terminal", flag.ContinueOnError)
	envFile := fs.String("env", ".env", "optional .env file")
	scanner := fs.Bool("scanner", false, "accept the longer codes of a generic scanner")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}

	log, err := logger.New(logger.Options{Service: "pos-terminal", Env: cfg.AppEnv, Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err = run(ctx, cfg, *scanner, log); err != nil {
		log.Error("Terminal stopped", zap.Error(err))
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg config.Config, scanner bool, log *zap.Logger) error {
	db, err := driver.ConnectSQL(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	// the terminal keeps selling without the query cache or the event bus
	var queryCache cache.QueryCache
	rdb, err := driver.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Warn("Running without cart query cache", zap.Error(err))
	} else {
		defer rdb.Close()
		queryCache = cache.NewRedisQueryCache(rdb, cfg.CartQueryTTL)
	}

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = driver.ConnectNATS(cfg.NATSURL, "pos-"+cfg.TerminalID, log)
		if err != nil {
			log.Warn("Running without NATS", zap.Error(err))
		} else {
			defer nc.Drain()
		}
	}

	maxLength := cfg.BarcodeMaxLength
	if scanner {
		maxLength = cfg.ScannerMaxLength
	}

	sessionID := pos.NewSessionID()
	cartClient := client.New(client.Options{
		BaseURL:   cfg.APIBaseURL,
		Token:     cfg.APIToken,
		SessionID: sessionID,
		Timeout:   cfg.RequestTimeout,
	}, queryCache, log)

	events := pos.NewEventManager(nc, cfg.TerminalID, log)
	events.RegisterHandler(func(n models.Notification) {
		fmt.Fprintf(os.Stdout, "[%s] %s\n", n.Level, n.Message)
	})

	session, err := pos.NewSession(pos.SessionOptions{
		ID:          sessionID,
		Workers:     cfg.RemoteWorkers,
		TaskTimeout: cfg.RequestTimeout,
		Dispatcher: barcode.DispatcherOptions{
			MaxLength:        maxLength,
			AutoSubmitLength: cfg.AutoSubmitMinLength,
			Debounce:         cfg.AutoSubmitDebounce,
		},
		Calculator: pricing.NewCalculator(cfg.VATRate, cfg.TotalMultiplier, cfg.Currency),
	}, cartClient, catalog.NewLookup(catalog.NewRepository(db, log)), events, log)
	if err != nil {
		return err
	}
	defer session.Close()

	log.Info("Terminal ready",
		zap.String("terminal_id", cfg.TerminalID),
		zap.String("session_id", session.ID()))

	return newTerminal(session, os.Stdin, os.Stdout).Run(ctx)
}
