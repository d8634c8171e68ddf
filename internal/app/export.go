package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"tour-price-tracker/internal/storage"
)

// Export renders one tour's price history as CSV and/or PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.TourSourceID <= 0 {
		return errors.New("--tour must identify a tour by its source id")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	tour, err := store.GetTourBySourceID(ctx, opts.TourSourceID)
	if err != nil {
		return err
	}
	if tour == nil {
		return fmt.Errorf("no tour with source id %d", opts.TourSourceID)
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := tour.FirstSeenAt.UTC()
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListPriceHistory(ctx, tour.ID, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Int64("source_id", tour.SourceID).Msg("no history rows in export window")
		return nil
	}

	downsampled := downsampleHistory(records, opts.MaxPoints)
	a.Logger.Info().
		Int64("source_id", tour.SourceID).
		Int("total", len(records)).
		Int("exported", len(downsampled)).
		Msg("exporting price history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, tour, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleHistory(records []storage.PriceHistoryRecord, max int) []storage.PriceHistoryRecord {
	if max <= 0 || len(records) <= max {
		return records
	}

	result := make([]storage.PriceHistoryRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeHistoryCSV(path string, records []storage.PriceHistoryRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"recorded_at", "price", "currency", "price_change", "price_change_percent"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		change, pct := "", ""
		if rec.PriceChange != nil {
			change = rec.PriceChange.String()
		}
		if rec.PriceChangePercent != nil {
			pct = rec.PriceChangePercent.String()
		}
		record := []string{
			rec.RecordedAt.Format(time.RFC3339),
			rec.Price.String(),
			rec.Currency,
			change,
			pct,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeHistoryPNG(path string, tour *storage.Tour, records []storage.PriceHistoryRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	prices := make([]float64, len(records))
	for i, rec := range records {
		x[i] = rec.RecordedAt
		prices[i] = rec.Price.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  tour.Name,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           fmt.Sprintf("Price (%s)", tour.Currency),
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Price",
				XValues: x,
				YValues: prices,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
