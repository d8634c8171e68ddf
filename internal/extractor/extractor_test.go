package extractor

import (
	"testing"

	"github.com/shopspring/decimal"
)

const samplePage = `<html><head><script>
var GTMData = {
  "event": "impressions",
  "ecommerce": {
    "currencyCode": "EUR",
    "impressions": [
      {"id": 101, "name": "Colosseum Guided Tour", "price": 45.50, "url": "/en/rome/colosseum-guided-tour/", "category": "Guided Tours", "dimension32": "4.7", "list": "Rome", "list_id": 12,},
      {"id": 102, "name": "Vatican Museums Tour", "price": 59, "url": "/en/rome/vatican-museums-tour/", "list": "Rome", "list_id": 12},
      {"id": -1, "name": "Sentinel Entry", "price": 10, "url": "/en/rome/x/"},
      {"id": 103, "name": "", "price": 20, "url": "/en/rome/unnamed/"},
      {"id": 104, "name": "Zero Priced Walk", "price": 0, "url": "/en/rome/zero-priced-walk/"},
    ],
  }
};
</script></head></html>`

func TestExtractParsesAnalyticsBlock(t *testing.T) {
	snaps, err := Extract(samplePage, nil, ScrapeContext{})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	// Sentinel id, empty name, and non-positive price entries are dropped.
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}

	first := snaps[0]
	if first.SourceID != 101 {
		t.Fatalf("unexpected source id %d", first.SourceID)
	}
	if !first.Price.Equal(decimal.RequireFromString("45.50")) {
		t.Fatalf("unexpected price %s", first.Price)
	}
	if first.PriceSource != MatchFallback {
		t.Fatalf("expected fallback provenance without aux prices, got %s", first.PriceSource)
	}
	if first.Currency != "EUR" {
		t.Fatalf("unexpected currency %s", first.Currency)
	}
	if first.Rating == nil || !first.Rating.Equal(decimal.RequireFromString("4.7")) {
		t.Fatalf("unexpected rating %v", first.Rating)
	}
	if first.Destination != "Rome" || first.DestinationID != 12 {
		t.Fatalf("unexpected destination %q/%d", first.Destination, first.DestinationID)
	}
}

func TestExtractBareAssignmentForm(t *testing.T) {
	page := `<script>GTMData = {"ecommerce":{"currencyCode":"USD","impressions":[{"id":"7","name":"Boat Trip","price":"30","url":"/en/venice/boat-trip/"}]}};</script>`
	snaps, err := Extract(page, nil, ScrapeContext{})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(snaps) != 1 || snaps[0].SourceID != 7 || snaps[0].Currency != "USD" {
		t.Fatalf("unexpected snapshots %+v", snaps)
	}
}

func TestExtractDataLayerForm(t *testing.T) {
	page := `<script>dataLayer.push({"ecommerce":{"impressions":[{"id":9,"name":"Day Trip","price":25,"url":"/en/milan/day-trip/"}]}})</script>`
	snaps, err := Extract(page, nil, ScrapeContext{})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Currency != "EUR" {
		t.Fatalf("expected one snapshot with default currency, got %+v", snaps)
	}
}

func TestExtractNoAnalyticsBlock(t *testing.T) {
	if _, err := Extract("<html><body>nothing here</body></html>", nil, ScrapeContext{}); err != ErrNoAnalyticsBlock {
		t.Fatalf("expected ErrNoAnalyticsBlock, got %v", err)
	}
}

func TestExtractPrefersDisplayedPrice(t *testing.T) {
	aux := map[string]decimal.Decimal{
		"https://example.com/en/rome/colosseum-guided-tour/": decimal.RequireFromString("39.90"),
	}

	snaps, err := Extract(samplePage, aux, ScrapeContext{})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	if !snaps[0].Price.Equal(decimal.RequireFromString("39.90")) {
		t.Fatalf("displayed price should win, got %s", snaps[0].Price)
	}
	if snaps[0].PriceSource != MatchExact {
		t.Fatalf("expected exact provenance, got %s", snaps[0].PriceSource)
	}

	// The second tour has no aux entry and keeps the analytics price.
	if !snaps[1].Price.Equal(decimal.NewFromInt(59)) || snaps[1].PriceSource != MatchFallback {
		t.Fatalf("expected analytics fallback for second tour, got %s/%s", snaps[1].Price, snaps[1].PriceSource)
	}
}

func TestExtractContextOverridesDestination(t *testing.T) {
	snaps, err := Extract(samplePage, nil, ScrapeContext{Destination: "Roma", DestinationID: 99})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	for _, snap := range snaps {
		if snap.Destination != "Roma" || snap.DestinationID != 99 {
			t.Fatalf("context override not applied: %+v", snap)
		}
	}
}

func TestExtractFixesApostropheArtifact(t *testing.T) {
	page := `<script>var GTMData = {"ecommerce":{"impressions":[{"id":5,"name":"St Mark39s Basilica","price":18,"url":"/en/venice/st-marks/"}]}};</script>`
	snaps, err := Extract(page, nil, ScrapeContext{})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if snaps[0].Name != "St Mark's Basilica" {
		t.Fatalf("apostrophe artifact not corrected: %q", snaps[0].Name)
	}
}

func TestMatchDisplayedPriceExact(t *testing.T) {
	aux := map[string]decimal.Decimal{
		"/en/rome/colosseum-guided-tour": decimal.NewFromInt(40),
		"/en/rome/other-tour/":           decimal.NewFromInt(10),
	}

	price, quality, ok := MatchDisplayedPrice("Colosseum Guided Tour", "/en/rome/colosseum-guided-tour/", aux)
	if !ok || quality != MatchExact {
		t.Fatalf("expected exact match, got ok=%v quality=%s", ok, quality)
	}
	if !price.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("unexpected price %s", price)
	}
}

func TestMatchDisplayedPriceFuzzy(t *testing.T) {
	aux := map[string]decimal.Decimal{
		"/en/rome/colosseum-guided-tour-skip-the-line/": decimal.NewFromInt(48),
	}

	// URL slug differs, but the normalised name is contained in the key slug.
	price, quality, ok := MatchDisplayedPrice("Colosseum Guided Tour", "/en/rome/colosseo/", aux)
	if !ok || quality != MatchFuzzy {
		t.Fatalf("expected fuzzy match, got ok=%v quality=%s", ok, quality)
	}
	if !price.Equal(decimal.NewFromInt(48)) {
		t.Fatalf("unexpected price %s", price)
	}
}

func TestMatchDisplayedPriceNameNormalisation(t *testing.T) {
	aux := map[string]decimal.Decimal{
		"/en/laquila/laquila-walking-tour/": decimal.NewFromInt(22),
	}

	if _, quality, ok := MatchDisplayedPrice("L'Aquila Walking Tour", "/en/laquila/unrelated/", aux); !ok || quality != MatchFuzzy {
		t.Fatalf("apostrophe stripping should allow the fuzzy match, got ok=%v quality=%s", ok, quality)
	}
}

func TestMatchDisplayedPriceNoMatch(t *testing.T) {
	aux := map[string]decimal.Decimal{
		"/en/paris/louvre-tickets/": decimal.NewFromInt(30),
	}

	if _, _, ok := MatchDisplayedPrice("Colosseum Guided Tour", "/en/rome/colosseum/", aux); ok {
		t.Fatal("expected no match")
	}
}
