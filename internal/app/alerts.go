package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tour-price-tracker/internal/storage"
)

// CheckAlerts runs the catch-up alert pass against current prices and
// reports how many alerts fired.
func (a *App) CheckAlerts(ctx context.Context) (int, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return 0, err
	}
	defer closeStore()

	return a.newAlertEngine(store).CheckAllPendingAlerts(ctx)
}

// AddAlert creates a new alert rule for a tour identified by its source
// listing id.
func (a *App) AddAlert(ctx context.Context, opts AddAlertOptions) (int64, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return 0, err
	}
	defer closeStore()

	tour, err := store.GetTourBySourceID(ctx, opts.TourSourceID)
	if err != nil {
		return 0, err
	}
	if tour == nil {
		return 0, fmt.Errorf("no tour with source id %d", opts.TourSourceID)
	}

	rule := storage.AlertRule{
		SubscriberID: opts.SubscriberID,
		TourID:       tour.ID,
		Type:         storage.AlertType(opts.Type),
		Status:       storage.AlertStatusActive,
	}

	if opts.ThresholdPrice != "" {
		price, err := decimal.NewFromString(opts.ThresholdPrice)
		if err != nil {
			return 0, fmt.Errorf("invalid threshold price: %w", err)
		}
		rule.ThresholdPrice = &price
	}
	if opts.ThresholdPercentage != "" {
		pct, err := decimal.NewFromString(opts.ThresholdPercentage)
		if err != nil {
			return 0, fmt.Errorf("invalid threshold percentage: %w", err)
		}
		rule.ThresholdPercentage = &pct
	}

	return a.newAlertEngine(store).CreateRule(ctx, rule)
}
