package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tour-price-tracker/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// ValidateRule rejects rules whose thresholds do not match their type.
func ValidateRule(rule storage.AlertRule) error {
	if rule.TourID <= 0 {
		return fmt.Errorf("alerting: rule requires a tour id")
	}
	if rule.SubscriberID <= 0 {
		return fmt.Errorf("alerting: rule requires a subscriber id")
	}

	switch rule.Type {
	case storage.AlertPriceDrop, storage.AlertPriceIncrease:
		if rule.ThresholdPrice == nil || !rule.ThresholdPrice.IsPositive() {
			return fmt.Errorf("alerting: %s rule requires a positive threshold price", rule.Type)
		}
	case storage.AlertPercentageDrop:
		if rule.ThresholdPercentage == nil || !rule.ThresholdPercentage.IsPositive() || rule.ThresholdPercentage.GreaterThan(hundred) {
			return fmt.Errorf("alerting: percentage_drop rule requires a threshold in (0, 100]")
		}
	case storage.AlertPriceChange:
		// Fires on any change, no threshold needed.
	default:
		return fmt.Errorf("alerting: unknown alert type %q", rule.Type)
	}
	return nil
}

// Engine evaluates alert rules against committed price changes and fans
// fired alerts out to the registered notifiers. A fired rule stays active
// so it keeps watching for further changes.
type Engine struct {
	rules         storage.AlertRuleStore
	notifications storage.NotificationStore
	notifiers     []Notifier
	logger        zerolog.Logger
	now           func() time.Time
}

// New constructs an alert engine with the log channel pre-registered.
func New(rules storage.AlertRuleStore, notifications storage.NotificationStore, logger zerolog.Logger) *Engine {
	engine := &Engine{
		rules:         rules,
		notifications: notifications,
		logger:        logger.With().Str("component", "alerting").Logger(),
		now:           time.Now,
	}
	engine.Register(NewLogNotifier(logger))
	return engine
}

// Register adds a delivery channel.
func (e *Engine) Register(notifier Notifier) {
	e.notifiers = append(e.notifiers, notifier)
}

// CreateRule validates and persists a new rule, returning its id.
func (e *Engine) CreateRule(ctx context.Context, rule storage.AlertRule) (int64, error) {
	if err := ValidateRule(rule); err != nil {
		return 0, err
	}
	if rule.Status == "" {
		rule.Status = storage.AlertStatusActive
	}

	tour, err := e.rules.GetTour(ctx, rule.TourID)
	if err != nil {
		return 0, fmt.Errorf("load tour for rule: %w", err)
	}
	if tour == nil {
		return 0, fmt.Errorf("alerting: tour %d not found", rule.TourID)
	}

	id, err := e.rules.InsertAlertRule(ctx, rule)
	if err != nil {
		return 0, fmt.Errorf("insert alert rule: %w", err)
	}

	e.logger.Info().
		Int64("alert_id", id).
		Int64("tour_id", rule.TourID).
		Str("alert_type", string(rule.Type)).
		Msg("alert rule created")
	return id, nil
}

// CheckAlertsForTour evaluates every active rule on the tour against one
// committed price change. Individual trigger failures are logged and do
// not block the remaining rules.
func (e *Engine) CheckAlertsForTour(ctx context.Context, tour *storage.Tour, oldPrice, newPrice decimal.Decimal) error {
	if newPrice.Equal(oldPrice) {
		return nil
	}

	rules, err := e.rules.ListActiveAlertsForTour(ctx, tour.ID)
	if err != nil {
		return fmt.Errorf("list alerts for tour %d: %w", tour.ID, err)
	}

	var notes []Notification
	for _, rule := range rules {
		if !shouldTrigger(rule, oldPrice, newPrice) {
			continue
		}
		pct := decimal.Zero
		if !oldPrice.IsZero() {
			pct = newPrice.Sub(oldPrice).Div(oldPrice).Mul(hundred).Round(2)
		}
		note, err := e.fire(ctx, rule, *tour, oldPrice, newPrice, pct)
		if err != nil {
			e.logger.Error().Err(err).Int64("alert_id", rule.ID).Msg("alert trigger failed")
			continue
		}
		notes = append(notes, note)
	}

	e.dispatch(ctx, notes)
	return nil
}

// CheckAllPendingAlerts is the catch-up pass for alerts created after a
// price had already moved. Only price_drop rules are comparable against
// the current price alone; the threshold stands in for the old price and
// the percent delta is reported as zero.
func (e *Engine) CheckAllPendingAlerts(ctx context.Context) (int, error) {
	alerts, err := e.rules.ListActiveAlerts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active alerts: %w", err)
	}

	var notes []Notification
	for _, alert := range alerts {
		rule := alert.Rule
		if rule.Type != storage.AlertPriceDrop || rule.ThresholdPrice == nil {
			continue
		}
		if alert.Tour.CurrentPrice.GreaterThan(*rule.ThresholdPrice) {
			continue
		}
		note, err := e.fire(ctx, rule, alert.Tour, *rule.ThresholdPrice, alert.Tour.CurrentPrice, decimal.Zero)
		if err != nil {
			e.logger.Error().Err(err).Int64("alert_id", rule.ID).Msg("catch-up trigger failed")
			continue
		}
		notes = append(notes, note)
	}

	e.dispatch(ctx, notes)
	e.logger.Info().Int("checked", len(alerts)).Int("fired", len(notes)).Msg("catch-up alert pass finished")
	return len(notes), nil
}

// shouldTrigger applies the rule's predicate to one price transition.
func shouldTrigger(rule storage.AlertRule, oldPrice, newPrice decimal.Decimal) bool {
	switch rule.Type {
	case storage.AlertPriceDrop:
		return rule.ThresholdPrice != nil &&
			newPrice.LessThan(oldPrice) &&
			newPrice.LessThanOrEqual(*rule.ThresholdPrice)
	case storage.AlertPriceIncrease:
		return rule.ThresholdPrice != nil &&
			newPrice.GreaterThan(oldPrice) &&
			newPrice.GreaterThanOrEqual(*rule.ThresholdPrice)
	case storage.AlertPriceChange:
		return !newPrice.Equal(oldPrice)
	case storage.AlertPercentageDrop:
		if rule.ThresholdPercentage == nil || oldPrice.IsZero() || !newPrice.LessThan(oldPrice) {
			return false
		}
		dropPct := oldPrice.Sub(newPrice).Div(oldPrice).Mul(hundred)
		return dropPct.GreaterThanOrEqual(*rule.ThresholdPercentage)
	}
	return false
}

// fire records trigger bookkeeping and the notification trace for one
// fired rule and returns the notification for batched delivery. The
// bookkeeping runs up front so channel outcomes cannot affect it.
func (e *Engine) fire(ctx context.Context, rule storage.AlertRule, tour storage.Tour, oldPrice, newPrice, pct decimal.Decimal) (Notification, error) {
	now := e.now().UTC()

	note := Notification{
		AlertID:            rule.ID,
		SubscriberID:       rule.SubscriberID,
		Tour:               tour,
		Type:               rule.Type,
		OldPrice:           oldPrice,
		NewPrice:           newPrice,
		PriceChange:        newPrice.Sub(oldPrice),
		PriceChangePercent: pct,
		TriggeredAt:        now,
	}
	note.Message = summaryMessage(note)

	if err := e.rules.MarkAlertTriggered(ctx, rule.ID, now); err != nil {
		return Notification{}, fmt.Errorf("mark alert triggered: %w", err)
	}

	if e.notifications != nil {
		record := storage.NotificationRecord{
			AlertID:            rule.ID,
			SubscriberID:       rule.SubscriberID,
			TourID:             tour.ID,
			OldPrice:           oldPrice,
			NewPrice:           newPrice,
			PriceChange:        note.PriceChange,
			PriceChangePercent: pct,
			AlertType:          rule.Type,
			Message:            note.Message,
			SentAt:             now,
		}
		if _, err := e.notifications.InsertNotification(ctx, record); err != nil {
			return Notification{}, fmt.Errorf("record notification: %w", err)
		}
	}
	return note, nil
}

// dispatch flushes one evaluation pass's fired alerts to every registered
// channel. Each channel gets the whole batch; a failing channel is logged
// and does not affect the others.
func (e *Engine) dispatch(ctx context.Context, notes []Notification) {
	if len(notes) == 0 {
		return
	}
	for _, notifier := range e.notifiers {
		if err := notifier.Notify(ctx, notes); err != nil {
			e.logger.Warn().Err(err).Int("alerts", len(notes)).Msg("notifier failed")
		}
	}
}

func summaryMessage(note Notification) string {
	return fmt.Sprintf("%s on %s: %s -> %s %s (%s%%)",
		note.Type,
		note.Tour.Name,
		note.OldPrice.StringFixed(2),
		note.NewPrice.StringFixed(2),
		note.Tour.Currency,
		note.PriceChangePercent.StringFixed(2),
	)
}
