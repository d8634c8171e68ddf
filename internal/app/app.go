package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"tour-price-tracker/internal/alerting"
	"tour-price-tracker/internal/config"
	"tour-price-tracker/internal/fetcher"
	"tour-price-tracker/internal/ratelimit"
	"tour-price-tracker/internal/scheduler"
	"tour-price-tracker/internal/storage"
	"tour-price-tracker/internal/syncer"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn not configured")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newFetcher() *fetcher.Client {
	limiter := ratelimit.New(a.Config.Scraper.MinDelay)
	return fetcher.NewClient(fetcher.Options{
		UserAgent:   a.Config.Scraper.UserAgent,
		Headless:    a.Config.Scraper.Headless,
		NavTimeout:  a.Config.Scraper.NavTimeout,
		SettleDelay: a.Config.Scraper.SettleDelay,
		MaxAttempts: a.Config.Scraper.MaxRetries,
	}, limiter, a.Logger)
}

func (a *App) newAlertEngine(store *storage.Store) *alerting.Engine {
	engine := alerting.New(store, store, a.Logger)
	if a.Config.Alerts.TelegramEnabled() {
		cfg := a.Config.Alerts
		engine.Register(alerting.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, cfg.TelegramBaseURL, cfg.TelegramTimeout, a.Logger))
	}
	return engine
}

func (a *App) newSyncEngine(store *storage.Store, client *fetcher.Client) *syncer.Engine {
	return syncer.New(syncer.Deps{
		Store:   store,
		Tx:      store,
		Fetcher: client,
		Alerts:  a.newAlertEngine(store),
		Scraper: a.Config.Scraper,
		Sync:    a.Config.Sync,
		Logger:  a.Logger,
	})
}

// Run executes the long-running tracking service: the periodic price
// sync plus the daily history cleanup, until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	client := a.newFetcher()
	defer client.Close()

	engine := a.newSyncEngine(store, client)

	sched := scheduler.New(engine, store, scheduler.Options{
		SyncInterval:  a.Config.Sync.Interval,
		CleanupSpec:   a.Config.Cleanup.CronSpec,
		RetentionDays: a.Config.Cleanup.RetentionDays,
	}, a.Logger)

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	a.Logger.Info().Msg("tracking service started")

	// First pass right away so a fresh deployment has data before the
	// first scheduled tick.
	if err := sched.RunPriceSync(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("initial sync failed")
	}

	<-ctx.Done()
	a.Logger.Info().Msg("tracking service stopping")
	return nil
}

// SyncOptions configure a one-shot sync run.
type SyncOptions struct {
	Destinations []string
	ActiveOnly   bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting one tour's price history.
type ExportOptions struct {
	TourSourceID int64
	From         *time.Time
	To           *time.Time
	CSVPath      string
	PNGPath      string
	MaxPoints    int
}

// AddAlertOptions configure alert rule creation.
type AddAlertOptions struct {
	TourSourceID        int64
	SubscriberID        int64
	Type                string
	ThresholdPrice      string
	ThresholdPercentage string
}
