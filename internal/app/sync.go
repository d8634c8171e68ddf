package app

import (
	"context"
	"fmt"
	"os"

	"tour-price-tracker/internal/syncer"
)

// Sync runs one synchronous price sync pass, prints the outcome, and
// exits.
func (a *App) Sync(ctx context.Context, opts SyncOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	client := a.newFetcher()
	defer client.Close()

	if len(opts.Destinations) > 0 {
		a.Config.Sync.Destinations = opts.Destinations
	}
	engine := a.newSyncEngine(store, client)

	var stats syncer.Stats
	if opts.ActiveOnly {
		stats, err = engine.SyncActiveTours(ctx)
	} else {
		stats, err = engine.SyncAll(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "found %d, created %d, updated %d, price changes %d, errors %d\n",
		stats.Found, stats.Created, stats.Updated, stats.PriceChanges, stats.Errors)
	return nil
}
