package fetcher

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// cardSelector matches the listing card variants seen across page layouts.
const cardSelector = "article.comfort-card, .o-search-list__item, [data-gtm-click]"

// priceSelectors are tried per card in order of specificity before the
// regex fallback over the card's full text.
var priceSelectors = []string{
	".comfort-card__price__current",
	".m-activity-card__price",
	"[class*='price'] span",
	".price-tag",
	"span[class*='Price']",
}

// moneyRe covers "€ 45", "From €45.50" and the suffix form "45,50 €".
var moneyRe = regexp.MustCompile(`(?:From\s*)?[€$£]\s*(\d+(?:[.,]\d{1,2})?)|(\d+(?:[.,]\d{1,2})?)\s*[€$£]`)

var amountCleanRe = regexp.MustCompile(`[^0-9.,]`)

// parseDisplayedPrices scans rendered listing markup and maps each card's
// link href to the price printed on the card. Cards without a resolvable
// link or a positive price are skipped.
func parseDisplayedPrices(html string) (map[string]decimal.Decimal, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal)
	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		href := cardLink(card)
		if href == "" {
			return
		}

		text := cardPriceText(card)
		if text == "" {
			return
		}

		price, ok := parsePriceText(text)
		if !ok || !price.IsPositive() {
			return
		}
		prices[href] = price
	})

	return prices, nil
}

func cardLink(card *goquery.Selection) string {
	link := card.Find("a[href*='/en/'], a[href*='/es/'], a[href*='/it/']").First()
	if href, ok := link.Attr("href"); ok && href != "" {
		return href
	}
	if href, ok := card.Find("a[href]").First().Attr("href"); ok {
		return href
	}
	return ""
}

func cardPriceText(card *goquery.Selection) string {
	for _, sel := range priceSelectors {
		el := card.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if text := strings.TrimSpace(el.Text()); text != "" {
			return text
		}
	}
	if m := moneyRe.FindStringSubmatch(card.Text()); m != nil {
		if m[1] != "" {
			return m[1]
		}
		return m[2]
	}
	return ""
}

// parsePriceText normalises a displayed amount ("€ 45,50", "From €45.50")
// to a decimal. Comma decimal separators are treated as points.
func parsePriceText(text string) (decimal.Decimal, bool) {
	cleaned := amountCleanRe.ReplaceAllString(text, "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return decimal.Decimal{}, false
	}

	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return price, true
}
