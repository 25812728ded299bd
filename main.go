package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	flag "github.com/spf13/pflag"

	"telegram-store-bot/bot"
	"telegram-store-bot/catalog"
	"telegram-store-bot/config"
	"telegram-store-bot/health"
	"telegram-store-bot/locale"
	"telegram-store-bot/logging"
	"telegram-store-bot/metrics"
	"telegram-store-bot/orders"
	"telegram-store-bot/store"
	"telegram-store-bot/telegram"
	"telegram-store-bot/tickets"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "storebot: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) > 0 && args[0] == "seed" {
		return runSeed(args[1:])
	}

	flags := flag.NewFlagSet("storebot", flag.ContinueOnError)
	configPath := flags.String("config", os.Getenv("STOREBOT_CONFIG"), "path to the YAML config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, os.Getenv)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Catalog.File != "" {
		if err := importCatalog(ctx, db, cfg.Catalog.File, logger); err != nil {
			return err
		}
	}

	bundle, err := locale.Load(cfg.Locale.Default)
	if err != nil {
		return err
	}
	policy, err := orders.ParseSweepPolicy(cfg.Sweep.Policy)
	if err != nil {
		return err
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	api.Debug = cfg.Telegram.Debug
	logger.Info("authorized", "account", api.Self.UserName, "admin_id", cfg.AdminID)

	tg, err := telegram.New(telegram.Config{
		Client:      api,
		Store:       db,
		Catalog:     db,
		Locales:     bundle,
		AdminID:     cfg.AdminID,
		PollTimeout: cfg.Telegram.PollTimeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	m := metrics.New()
	orderEngine := orders.NewEngine(db, db, tg, cfg.AdminID,
		orders.WithPaymentInstructions(cfg.Payment.Instructions),
		orders.WithMetrics(m))
	ticketEngine := tickets.NewEngine(db, tg, cfg.AdminID, tickets.WithMetrics(m))

	languages := make([]string, 0, len(bundle.Locales()))
	for _, l := range bundle.Locales() {
		languages = append(languages, l.Code)
	}
	dispatcher := bot.New(bot.Config{
		Orders:      orderEngine,
		Tickets:     ticketEngine,
		Catalog:     db,
		Notifier:    tg,
		Preferences: db,
		Languages:   languages,
		AdminID:     cfg.AdminID,
		Metrics:     m,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           health.NewRouter(db, m.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	if cfg.Sweep.Enabled {
		sweeper := &orders.Sweeper{
			Engine:   orderEngine,
			Interval: cfg.Sweep.Interval,
			MaxAge:   cfg.Sweep.MaxAge,
			Policy:   policy,
		}
		go sweeper.Run(ctx)
	}

	runErr := tg.Run(ctx, dispatcher)
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	return runErr
}

// runSeed imports a products file into the database and exits.
func runSeed(args []string) error {
	flags := flag.NewFlagSet("seed", flag.ContinueOnError)
	from := flags.String("from", "products.json", "products file (JSON or YAML)")
	dbPath := flags.String("db", "", "database path (defaults to the configured one)")
	configPath := flags.String("config", os.Getenv("STOREBOT_CONFIG"), "path to the YAML config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, os.Getenv)
	if err != nil {
		return err
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	return importCatalog(context.Background(), db, *from, logger)
}

func importCatalog(ctx context.Context, db *store.SQLite, path string, logger *slog.Logger) error {
	products, err := catalog.LoadFile(path)
	if err != nil {
		return err
	}
	res, err := db.SeedCatalog(ctx, products)
	if err != nil {
		return err
	}
	for _, name := range res.Skipped {
		logger.Info("product already exists, skipped", "product", name)
	}
	logger.Info("catalog imported", "file", path, "added", len(res.Added), "skipped", len(res.Skipped))
	return nil
}
