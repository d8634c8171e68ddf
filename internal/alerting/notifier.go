package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tour-price-tracker/internal/storage"
)

// Notification carries the full context of one fired alert.
type Notification struct {
	AlertID            int64
	SubscriberID       int64
	Tour               storage.Tour
	Type               storage.AlertType
	OldPrice           decimal.Decimal
	NewPrice           decimal.Decimal
	PriceChange        decimal.Decimal
	PriceChangePercent decimal.Decimal
	Message            string
	TriggeredAt        time.Time
}

// Notifier delivers one evaluation pass's fired alerts to a channel. The
// engine hands every registered notifier the whole batch at once; a
// notifier that fails does not affect the others.
type Notifier interface {
	Notify(ctx context.Context, notifications []Notification) error
}

// LogNotifier writes fired alerts to the structured log. It is always
// registered so alerts remain visible without any channel configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log-channel notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify emits one structured log event per fired alert.
func (n *LogNotifier) Notify(_ context.Context, notes []Notification) error {
	for _, note := range notes {
		n.logger.Warn().
			Int64("alert_id", note.AlertID).
			Int64("subscriber_id", note.SubscriberID).
			Int64("tour_id", note.Tour.ID).
			Str("tour", note.Tour.Name).
			Str("alert_type", string(note.Type)).
			Str("old_price", note.OldPrice.StringFixed(2)).
			Str("new_price", note.NewPrice.StringFixed(2)).
			Str("change_percent", note.PriceChangePercent.StringFixed(2)).
			Msg(note.Message)
	}
	return nil
}

// TelegramNotifier pushes fired alerts through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify sends one sendMessage request per fired alert. Every alert in
// the batch is attempted even when an earlier one fails.
func (n *TelegramNotifier) Notify(ctx context.Context, notes []Notification) error {
	var errs []error
	for _, note := range notes {
		if err := n.send(ctx, note); err != nil {
			errs = append(errs, fmt.Errorf("alert %d: %w", note.AlertID, err))
		}
	}
	return errors.Join(errs...)
}

func (n *TelegramNotifier) send(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram responded with status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false")
	}

	n.logger.Info().
		Int64("alert_id", note.AlertID).
		Str("tour", note.Tour.Name).
		Msg("alert delivered via telegram")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Tour Price Alert]\n")
	builder.WriteString(fmt.Sprintf("Tour: %s\n", note.Tour.Name))
	if note.Tour.Destination != nil {
		builder.WriteString(fmt.Sprintf("Destination: %s\n", *note.Tour.Destination))
	}
	builder.WriteString(fmt.Sprintf("Type: %s\n", note.Type))
	builder.WriteString(fmt.Sprintf("Price: %s -> %s %s\n", note.OldPrice.StringFixed(2), note.NewPrice.StringFixed(2), note.Tour.Currency))
	builder.WriteString(fmt.Sprintf("Change: %s (%s%%)\n", note.PriceChange.StringFixed(2), note.PriceChangePercent.StringFixed(2)))
	if note.Tour.URL != nil {
		builder.WriteString(fmt.Sprintf("URL: %s\n", *note.Tour.URL))
	}
	builder.WriteString(fmt.Sprintf("At: %s UTC", note.TriggeredAt.UTC().Format(time.RFC3339)))
	return builder.String()
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*TelegramNotifier)(nil)
)
