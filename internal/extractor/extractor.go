package extractor

import (
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoAnalyticsBlock indicates the page carried no parseable analytics
// payload. Callers treat this as an empty partition, not a hard failure.
var ErrNoAnalyticsBlock = errors.New("extractor: analytics block not found")

// Snapshot is one validated point-in-time listing record. Empty string /
// zero fields mean the source did not provide the value.
type Snapshot struct {
	SourceID      int64
	Name          string
	Price         decimal.Decimal
	PriceSource   MatchQuality
	Currency      string
	Category      string
	URL           string
	Rating        *decimal.Decimal
	Destination   string
	DestinationID int64
	ScrapedAt     time.Time
}

// ScrapeContext carries the caller's partition identity, overriding the
// destination embedded in the analytics payload when present.
type ScrapeContext struct {
	Destination   string
	DestinationID int64
}

// MatchQuality tags how a snapshot's price was resolved, so downstream
// code can assert on match provenance rather than only on the number.
type MatchQuality string

const (
	// MatchExact means an aux price matched the listing's URL slug.
	MatchExact MatchQuality = "exact"
	// MatchFuzzy means an aux price matched by normalised-name containment.
	MatchFuzzy MatchQuality = "fuzzy"
	// MatchFallback means the embedded analytics price was used.
	MatchFallback MatchQuality = "fallback"
)

// The analytics payload shows up in a few assignment forms depending on
// page variant; they are tried in order.
var analyticsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)var\s+GTMData\s*=\s*(\{.*?\});`),
	regexp.MustCompile(`(?s)GTMData\s*=\s*(\{.*?\});`),
	regexp.MustCompile(`(?s)dataLayer\.push\((\{.*?"ecommerce".*?\})\)`),
}

var (
	trailingObjectComma = regexp.MustCompile(`,\s*}`)
	trailingArrayComma  = regexp.MustCompile(`,\s*]`)
)

type analyticsPayload struct {
	Ecommerce struct {
		CurrencyCode string           `json:"currencyCode"`
		Impressions  []map[string]any `json:"impressions"`
	} `json:"ecommerce"`
}

// Extract parses the embedded analytics block out of rendered page HTML
// and reconciles each listing against the displayed-price map. Listings
// without a resolvable name and positive price are dropped.
func Extract(html string, auxPrices map[string]decimal.Decimal, scope ScrapeContext) ([]Snapshot, error) {
	payload, err := parseAnalyticsBlock(html)
	if err != nil {
		return nil, err
	}

	currency := payload.Ecommerce.CurrencyCode
	if currency == "" {
		currency = "EUR"
	}

	scrapedAt := time.Now().UTC()
	snapshots := make([]Snapshot, 0, len(payload.Ecommerce.Impressions))

	for _, imp := range payload.Ecommerce.Impressions {
		sourceID, ok := asInt64(imp["id"])
		if !ok || sourceID <= 0 {
			continue
		}

		// The upstream feed double-encodes apostrophes.
		name := strings.ReplaceAll(asString(imp["name"]), "39s", "'s")
		tourURL := asString(imp["url"])

		price, quality, ok := resolvePrice(name, tourURL, imp["price"], auxPrices)
		if !ok || name == "" {
			continue
		}

		snap := Snapshot{
			SourceID:    sourceID,
			Name:        name,
			Price:       price,
			PriceSource: quality,
			Currency:    currency,
			Category:    asString(imp["category"]),
			URL:         tourURL,
			Destination: asString(imp["list"]),
			ScrapedAt:   scrapedAt,
		}
		if rating, ok := asDecimal(imp["dimension32"]); ok && !rating.IsZero() {
			snap.Rating = &rating
		}
		if listID, ok := asInt64(imp["list_id"]); ok {
			snap.DestinationID = listID
		}

		if scope.Destination != "" {
			snap.Destination = scope.Destination
		}
		if scope.DestinationID != 0 {
			snap.DestinationID = scope.DestinationID
		}

		snapshots = append(snapshots, snap)
	}

	return snapshots, nil
}

func parseAnalyticsBlock(html string) (*analyticsPayload, error) {
	for _, pattern := range analyticsPatterns {
		match := pattern.FindStringSubmatch(html)
		if match == nil {
			continue
		}

		raw := trailingObjectComma.ReplaceAllString(match[1], "}")
		raw = trailingArrayComma.ReplaceAllString(raw, "]")

		decoder := json.NewDecoder(strings.NewReader(raw))
		decoder.UseNumber()

		var payload analyticsPayload
		if err := decoder.Decode(&payload); err != nil {
			continue
		}
		return &payload, nil
	}

	return nil, ErrNoAnalyticsBlock
}

// resolvePrice applies the three-tier preference: displayed price by exact
// slug match, displayed price by normalised-name containment, then the
// embedded analytics price when positive. The displayed price wins over
// the analytics value because the latter is known to drift.
func resolvePrice(name, tourURL string, rawAnalyticsPrice any, auxPrices map[string]decimal.Decimal) (decimal.Decimal, MatchQuality, bool) {
	if price, quality, ok := MatchDisplayedPrice(name, tourURL, auxPrices); ok {
		return price, quality, true
	}

	if price, ok := asDecimal(rawAnalyticsPrice); ok && price.IsPositive() {
		return price, MatchFallback, true
	}

	return decimal.Decimal{}, "", false
}

// MatchDisplayedPrice runs the two-stage matcher against the aux price
// map: exact URL-slug equality first, then normalised-name substring
// containment in either direction.
func MatchDisplayedPrice(name, tourURL string, auxPrices map[string]decimal.Decimal) (decimal.Decimal, MatchQuality, bool) {
	if len(auxPrices) == 0 {
		return decimal.Decimal{}, "", false
	}

	tourSlug := urlSlug(tourURL)
	keys := sortedKeys(auxPrices)

	if tourSlug != "" {
		for _, key := range keys {
			if urlSlug(key) == tourSlug {
				return auxPrices[key], MatchExact, true
			}
		}
	}

	normalizedName := normalizeName(name)
	if normalizedName != "" {
		for _, key := range keys {
			keySlug := strings.ToLower(urlSlug(key))
			if keySlug == "" {
				continue
			}
			if strings.Contains(keySlug, normalizedName) || strings.Contains(normalizedName, keySlug) {
				return auxPrices[key], MatchFuzzy, true
			}
		}
	}

	return decimal.Decimal{}, "", false
}

// urlSlug returns the final path segment with any trailing slash stripped.
func urlSlug(raw string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return ""
	}
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

func normalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, " ", "-")
	n = strings.ReplaceAll(n, "&", "")
	n = strings.ReplaceAll(n, "'", "")
	return n
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			// Some variants ship numeric ids as floats.
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return parsed, true
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return parsed.IntPart(), true
	default:
		return 0, false
	}
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		parsed, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Decimal{}, false
		}
		return parsed, true
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return decimal.Decimal{}, false
		}
		return parsed, true
	default:
		return decimal.Decimal{}, false
	}
}
