package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tour-price-tracker/internal/ratelimit"
)

// Fetcher retrieves a rendered page together with the per-listing
// displayed prices found in its card markup.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, map[string]decimal.Decimal, error)
}

// FetchError wraps a navigation or render failure that survived retries.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Options parameterise the headless crawl session.
type Options struct {
	UserAgent   string
	Headless    bool
	NavTimeout  time.Duration
	SettleDelay time.Duration
	MaxAttempts int
}

// Client drives one long-lived headless browser session. The session is
// created lazily on first fetch and owned exclusively by this client.
type Client struct {
	opts    Options
	limiter *ratelimit.Limiter
	logger  zerolog.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// NewClient constructs a page fetcher around a shared rate limiter.
func NewClient(opts Options, limiter *ratelimit.Limiter, logger zerolog.Logger) *Client {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 2 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}

	return &Client{
		opts:    opts,
		limiter: limiter,
		logger:  logger.With().Str("component", "fetcher").Logger(),
	}
}

// consentSelectors are tried in order; when none matches the text-based
// sweep below runs. Dismissal is best effort and failures are ignored.
const dismissConsentScript = `(() => {
	const selectors = [
		'#onetrust-accept-btn-handler',
		'[class*="cookie"] button',
		'[id*="consent"] button',
	];
	for (const sel of selectors) {
		const el = document.querySelector(sel);
		if (el) {
			el.click();
			return true;
		}
	}
	for (const btn of document.querySelectorAll('button, [role="button"]')) {
		const t = (btn.textContent || '').replace(/\s+/g, ' ').trim().toLowerCase();
		if (t === 'accept' || t === 'accept all' || t === 'aceptar') {
			btn.click();
			return true;
		}
	}
	return false;
})();`

// Fetch navigates to url and returns the rendered HTML plus the map of
// listing URL to displayed price. Attempts are wrapped in exponential
// backoff; the final attempt's failure surfaces as a *FetchError.
func (c *Client) Fetch(ctx context.Context, url string) (string, map[string]decimal.Decimal, error) {
	var (
		html   string
		prices map[string]decimal.Decimal
	)

	operation := func() error {
		h, p, err := c.fetchOnce(ctx, url)
		if err != nil {
			c.logger.Warn().Err(err).Str("url", url).Msg("fetch attempt failed")
			return err
		}
		html, prices = h, p
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 2 * time.Second
	policy.MaxInterval = 10 * time.Second
	policy.Multiplier = 2.0

	retries := uint64(c.opts.MaxAttempts - 1)
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx)); err != nil {
		return "", nil, &FetchError{URL: url, Err: err}
	}

	c.logger.Info().Str("url", url).Int("displayed_prices", len(prices)).Msg("page fetched")
	return html, prices, nil
}

func (c *Client) fetchOnce(ctx context.Context, url string) (string, map[string]decimal.Decimal, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return "", nil, err
	}

	browser, err := c.ensureBrowser()
	if err != nil {
		return "", nil, err
	}

	tab, cancelTab := chromedp.NewContext(browser)
	defer cancelTab()

	tabCtx, cancel := context.WithTimeout(tab, c.opts.NavTimeout)
	defer cancel()

	var (
		html      string
		dismissed bool
	)
	runErr := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(c.opts.SettleDelay),
		chromedp.Evaluate(dismissConsentScript, &dismissed),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.OuterHTML("html", &html),
	)
	if runErr != nil {
		return "", nil, fmt.Errorf("navigate: %w", runErr)
	}

	prices, parseErr := parseDisplayedPrices(html)
	if parseErr != nil {
		return "", nil, fmt.Errorf("scan displayed prices: %w", parseErr)
	}

	return html, prices, nil
}

// ensureBrowser lazily builds the exec allocator and browser context.
// The allocator is parented on context.Background so the session outlives
// individual fetch contexts and is torn down only by Close.
func (c *Client) ensureBrowser() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browserCtx != nil {
		return c.browserCtx, nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if c.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	c.browserCtx = browserCtx
	c.browserCancel = browserCancel
	c.allocCancel = allocCancel

	c.logger.Info().Bool("headless", c.opts.Headless).Msg("browser session started")
	return c.browserCtx, nil
}

// Close tears down the browser session. Safe to call without a session
// and more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browserCancel != nil {
		c.browserCancel()
		c.browserCancel = nil
	}
	if c.allocCancel != nil {
		c.allocCancel()
		c.allocCancel = nil
	}
	if c.browserCtx != nil {
		c.browserCtx = nil
		c.logger.Info().Msg("browser session closed")
	}
}

var _ Fetcher = (*Client)(nil)
