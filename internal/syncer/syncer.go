package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tour-price-tracker/internal/config"
	"tour-price-tracker/internal/extractor"
	"tour-price-tracker/internal/fetcher"
	"tour-price-tracker/internal/storage"
)

// AlertChecker evaluates alert rules for one tour after a price change
// has been committed.
type AlertChecker interface {
	CheckAlertsForTour(ctx context.Context, tour *storage.Tour, oldPrice, newPrice decimal.Decimal) error
}

// Stats summarises one sync pass.
type Stats struct {
	Found        int
	Created      int
	Updated      int
	PriceChanges int
	Errors       int
}

func (s *Stats) add(other Stats) {
	s.Found += other.Found
	s.Created += other.Created
	s.Updated += other.Updated
	s.PriceChanges += other.PriceChanges
	s.Errors += other.Errors
}

// priceChange is a committed change queued for alert evaluation.
type priceChange struct {
	tour     storage.Tour
	oldPrice decimal.Decimal
	newPrice decimal.Decimal
}

// Deps are the collaborators one sync engine runs against.
type Deps struct {
	Store   storage.SyncStore
	Tx      storage.TxRunner
	Fetcher fetcher.Fetcher
	Alerts  AlertChecker
	Scraper config.ScraperConfig
	Sync    config.SyncConfig
	Logger  zerolog.Logger
}

// Engine turns scraped listing pages into tour rows, price history, and
// queued alert checks. One destination is one partition: its writes
// commit or roll back together, alert bookkeeping commits on its own.
type Engine struct {
	store   storage.SyncStore
	tx      storage.TxRunner
	fetcher fetcher.Fetcher
	alerts  AlertChecker
	scraper config.ScraperConfig
	sync    config.SyncConfig
	logger  zerolog.Logger
	now     func() time.Time
}

// New constructs a sync engine.
func New(deps Deps) *Engine {
	return &Engine{
		store:   deps.Store,
		tx:      deps.Tx,
		fetcher: deps.Fetcher,
		alerts:  deps.Alerts,
		scraper: deps.Scraper,
		sync:    deps.Sync,
		logger:  deps.Logger.With().Str("component", "syncer").Logger(),
		now:     time.Now,
	}
}

// SyncAll syncs every configured destination in order. A destination
// failure is logged and counted without stopping the remaining ones.
func (e *Engine) SyncAll(ctx context.Context) (Stats, error) {
	return e.syncDestinations(ctx, e.sync.Destinations)
}

// SyncActiveTours syncs only the destinations that currently hold active
// tours, so known listings refresh without a full catalogue crawl.
func (e *Engine) SyncActiveTours(ctx context.Context) (Stats, error) {
	destinations, err := e.store.ListActiveDestinations(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list active destinations: %w", err)
	}
	if len(destinations) == 0 {
		e.logger.Info().Msg("no active destinations to refresh")
		return Stats{}, nil
	}
	return e.syncDestinations(ctx, destinations)
}

func (e *Engine) syncDestinations(ctx context.Context, destinations []string) (Stats, error) {
	total := Stats{}
	for _, destination := range destinations {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		stats, err := e.SyncDestination(ctx, destination)
		if err != nil {
			e.logger.Error().Err(err).Str("destination", destination).Msg("destination sync failed")
			total.Errors++
			continue
		}
		total.add(stats)
	}

	e.logger.Info().
		Int("destinations", len(destinations)).
		Int("found", total.Found).
		Int("created", total.Created).
		Int("updated", total.Updated).
		Int("price_changes", total.PriceChanges).
		Int("errors", total.Errors).
		Msg("sync pass finished")
	return total, nil
}

// SyncDestination fetches one destination's listing page and reconciles
// every snapshot on it inside a single transaction. Per-snapshot failures
// are counted and skipped; only partition-level failures roll back.
func (e *Engine) SyncDestination(ctx context.Context, destination string) (Stats, error) {
	url := e.destinationURL(destination)
	logger := e.logger.With().Str("destination", destination).Logger()

	html, displayed, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return Stats{}, fmt.Errorf("fetch %s: %w", destination, err)
	}

	snapshots, err := extractor.Extract(html, displayed, extractor.ScrapeContext{Destination: destination})
	if err != nil {
		if errors.Is(err, extractor.ErrNoAnalyticsBlock) {
			logger.Warn().Msg("no analytics payload on page, skipping destination")
			return Stats{}, nil
		}
		return Stats{}, fmt.Errorf("extract %s: %w", destination, err)
	}

	stats := Stats{Found: len(snapshots)}
	changes := make([]priceChange, 0)

	txErr := e.tx.WithTx(ctx, func(store storage.SyncStore) error {
		for _, snap := range snapshots {
			created, change, err := e.applySnapshot(ctx, store, snap)
			if err != nil {
				stats.Errors++
				logger.Warn().Err(err).Int64("source_id", snap.SourceID).Msg("snapshot skipped")
				continue
			}
			if created {
				stats.Created++
			} else {
				stats.Updated++
			}
			if change != nil {
				stats.PriceChanges++
				changes = append(changes, *change)
			}
		}
		return nil
	})
	if txErr != nil {
		return Stats{}, fmt.Errorf("sync %s: %w", destination, txErr)
	}

	e.checkAlerts(ctx, changes)

	logger.Info().
		Int("found", stats.Found).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("price_changes", stats.PriceChanges).
		Int("errors", stats.Errors).
		Msg("destination synced")
	return stats, nil
}

// applySnapshot upserts one listing. New tours get a seed history row
// with nil change fields; price changes append a delta row and recompute
// the tour's aggregates over its full history.
func (e *Engine) applySnapshot(ctx context.Context, store storage.SyncStore, snap extractor.Snapshot) (bool, *priceChange, error) {
	existing, err := store.GetTourBySourceID(ctx, snap.SourceID)
	if err != nil {
		return false, nil, err
	}

	now := e.now().UTC()

	if existing == nil {
		tour := tourFromSnapshot(snap, now)
		id, err := store.InsertTour(ctx, tour)
		if err != nil {
			return false, nil, err
		}

		seed := storage.PriceHistoryRecord{
			TourID:     id,
			Price:      snap.Price,
			Currency:   snap.Currency,
			RecordedAt: now,
		}
		if err := store.InsertPriceHistory(ctx, seed); err != nil {
			return false, nil, err
		}
		return true, nil, nil
	}

	oldPrice := existing.CurrentPrice

	updated := *existing
	updated.Name = snap.Name
	updated.CurrentPrice = snap.Price
	updated.LastSyncedAt = now
	updated.IsActive = true
	if snap.Rating != nil {
		updated.Rating = snap.Rating
	}
	applyListingFields(&updated, snap)

	if err := store.UpdateTour(ctx, updated); err != nil {
		return false, nil, err
	}

	if oldPrice.Equal(snap.Price) {
		return false, nil, nil
	}

	delta := snap.Price.Sub(oldPrice)
	pct := decimal.Zero
	if !oldPrice.IsZero() {
		pct = delta.Div(oldPrice).Mul(decimal.NewFromInt(100)).Round(2)
	}

	record := storage.PriceHistoryRecord{
		TourID:             updated.ID,
		Price:              snap.Price,
		Currency:           snap.Currency,
		RecordedAt:         now,
		PriceChange:        &delta,
		PriceChangePercent: &pct,
	}
	if err := store.InsertPriceHistory(ctx, record); err != nil {
		return false, nil, err
	}

	stats, err := store.TourPriceStats(ctx, updated.ID)
	if err != nil {
		return false, nil, err
	}
	if err := store.UpdateTourPriceStats(ctx, updated.ID, stats); err != nil {
		return false, nil, err
	}
	updated.MinPrice = stats.Min
	updated.MaxPrice = stats.Max
	updated.AvgPrice = stats.Avg

	return false, &priceChange{tour: updated, oldPrice: oldPrice, newPrice: snap.Price}, nil
}

// checkAlerts runs after the partition commit so alert bookkeeping never
// rides on the partition transaction.
func (e *Engine) checkAlerts(ctx context.Context, changes []priceChange) {
	if e.alerts == nil {
		return
	}
	for _, change := range changes {
		tour := change.tour
		if err := e.alerts.CheckAlertsForTour(ctx, &tour, change.oldPrice, change.newPrice); err != nil {
			e.logger.Warn().Err(err).Int64("tour_id", tour.ID).Msg("alert check failed")
		}
	}
}

func (e *Engine) destinationURL(destination string) string {
	base := strings.TrimRight(e.scraper.BaseURL, "/")
	language := e.scraper.Language
	if language == "" {
		language = "en"
	}
	return fmt.Sprintf("%s/%s/%s/", base, language, destination)
}

func tourFromSnapshot(snap extractor.Snapshot, now time.Time) storage.Tour {
	tour := storage.Tour{
		SourceID:     snap.SourceID,
		Name:         snap.Name,
		Currency:     snap.Currency,
		CurrentPrice: snap.Price,
		Rating:       snap.Rating,
		MinPrice:     snap.Price,
		MaxPrice:     snap.Price,
		AvgPrice:     snap.Price,
		LastSyncedAt: now,
		IsActive:     true,
	}
	applyListingFields(&tour, snap)
	return tour
}

// applyListingFields carries descriptive fields from the listing onto the
// tour. URL and category track whatever the page currently shows, so a
// listing that moves or is recategorized upstream is refreshed on the next
// sync. Destination identity is only filled when missing. Fields the page
// omits keep their stored value.
func applyListingFields(tour *storage.Tour, snap extractor.Snapshot) {
	if snap.URL != "" {
		url := snap.URL
		tour.URL = &url
	}
	if snap.Category != "" {
		category := snap.Category
		tour.Category = &category
	}
	if tour.Destination == nil && snap.Destination != "" {
		destination := snap.Destination
		tour.Destination = &destination
	}
	if tour.DestinationID == nil && snap.DestinationID > 0 {
		id := snap.DestinationID
		tour.DestinationID = &id
	}
}
