package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show prints the most recent detected price changes across all tours.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	changes, err := store.ListRecentPriceChanges(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Fprintln(os.Stdout, "no price changes recorded")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tTour\tPrice\tChange\tChange%")

	for _, change := range changes {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			change.RecordedAt.UTC().Format(time.RFC3339),
			change.TourName,
			change.Price.StringFixed(2),
			formatNullable(change.PriceChange),
			formatNullable(change.PriceChangePercent),
		)
	}

	writer.Flush()
	return nil
}

func formatNullable(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(2)
}
