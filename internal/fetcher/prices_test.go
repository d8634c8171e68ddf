package fetcher

import (
	"testing"

	"github.com/shopspring/decimal"
)

const sampleListing = `
<html><body>
<div class="o-search-list">
  <article class="comfort-card">
    <a href="/en/rome/colosseum-guided-tour/">Colosseum Guided Tour</a>
    <span class="comfort-card__price__current">€ 45,50</span>
  </article>
  <article class="comfort-card">
    <a href="/en/rome/vatican-museums-tour/">Vatican Museums Tour</a>
    <div class="m-activity-card__price">From €62.00</div>
  </article>
  <article class="comfort-card">
    <a href="/en/rome/regex-only-walk/">Regex Only Walk</a>
    <p>A lovely stroll for just 19,90 € per person.</p>
  </article>
  <article class="comfort-card">
    <a href="/en/rome/free-walking-tour/">Free Walking Tour</a>
    <span class="comfort-card__price__current">€ 0</span>
  </article>
  <article class="comfort-card">
    <span class="comfort-card__price__current">€ 30</span>
  </article>
</div>
</body></html>`

func TestParseDisplayedPrices(t *testing.T) {
	prices, err := parseDisplayedPrices(sampleListing)
	if err != nil {
		t.Fatalf("parseDisplayedPrices: %v", err)
	}

	want := map[string]string{
		"/en/rome/colosseum-guided-tour/": "45.50",
		"/en/rome/vatican-museums-tour/":  "62.00",
		"/en/rome/regex-only-walk/":       "19.90",
	}
	if len(prices) != len(want) {
		t.Fatalf("got %d prices, want %d: %v", len(prices), len(want), prices)
	}
	for href, amount := range want {
		got, ok := prices[href]
		if !ok {
			t.Fatalf("missing price for %s", href)
		}
		if !got.Equal(decimal.RequireFromString(amount)) {
			t.Errorf("%s: got %s, want %s", href, got, amount)
		}
	}
}

func TestParseDisplayedPricesEmptyPage(t *testing.T) {
	prices, err := parseDisplayedPrices("<html><body><p>no listings</p></body></html>")
	if err != nil {
		t.Fatalf("parseDisplayedPrices: %v", err)
	}
	if len(prices) != 0 {
		t.Fatalf("expected no prices, got %v", prices)
	}
}

func TestParsePriceText(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"€ 45,50", "45.50", true},
		{"From €62.00", "62.00", true},
		{"19,90 €", "19.90", true},
		{"45", "45", true},
		{"", "", false},
		{"Sold out", "", false},
	}
	for _, tc := range cases {
		got, ok := parsePriceText(tc.in)
		if ok != tc.ok {
			t.Errorf("parsePriceText(%q): ok=%v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("parsePriceText(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
