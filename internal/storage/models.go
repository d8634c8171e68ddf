package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertType enumerates the supported alert rule kinds.
type AlertType string

const (
	AlertPriceDrop      AlertType = "price_drop"
	AlertPriceIncrease  AlertType = "price_increase"
	AlertPriceChange    AlertType = "price_change"
	AlertPercentageDrop AlertType = "percentage_drop"
)

// AlertStatus enumerates rule lifecycle states.
type AlertStatus string

const (
	AlertStatusActive    AlertStatus = "active"
	AlertStatusTriggered AlertStatus = "triggered"
	AlertStatusPaused    AlertStatus = "paused"
	AlertStatusExpired   AlertStatus = "expired"
)

// Tour is the persisted aggregate for one external listing, keyed by the
// source site's listing id.
type Tour struct {
	ID            int64
	SourceID      int64
	Name          string
	URL           *string
	Destination   *string
	DestinationID *int64
	Category      *string
	Currency      string
	CurrentPrice  decimal.Decimal
	Rating        *decimal.Decimal
	MinPrice      decimal.Decimal
	MaxPrice      decimal.Decimal
	AvgPrice      decimal.Decimal
	FirstSeenAt   time.Time
	LastSyncedAt  time.Time
	IsActive      bool
}

// PriceHistoryRecord is one append-only price observation for a tour.
// The change fields are nil only on the seed row written at tour creation.
type PriceHistoryRecord struct {
	ID                 int64
	TourID             int64
	Price              decimal.Decimal
	Currency           string
	RecordedAt         time.Time
	PriceChange        *decimal.Decimal
	PriceChangePercent *decimal.Decimal
}

// AlertRule is a subscriber's alert configuration for a tour.
type AlertRule struct {
	ID                  int64
	SubscriberID        int64
	TourID              int64
	Type                AlertType
	ThresholdPrice      *decimal.Decimal
	ThresholdPercentage *decimal.Decimal
	Status              AlertStatus
	LastTriggeredAt     *time.Time
	TriggerCount        int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ActiveAlert pairs an active rule with its tour, for the catch-up pass.
type ActiveAlert struct {
	Rule AlertRule
	Tour Tour
}

// NotificationRecord is the persisted trace of one fired alert.
type NotificationRecord struct {
	ID                 int64
	AlertID            int64
	SubscriberID       int64
	TourID             int64
	OldPrice           decimal.Decimal
	NewPrice           decimal.Decimal
	PriceChange        decimal.Decimal
	PriceChangePercent decimal.Decimal
	AlertType          AlertType
	Message            string
	SentAt             time.Time
}

// PriceStats are the derived aggregates over a tour's full price history.
type PriceStats struct {
	Min decimal.Decimal
	Max decimal.Decimal
	Avg decimal.Decimal
}

// PriceChangeRow is a denormalised history row joined with its tour, used
// by the CLI listing of recent changes.
type PriceChangeRow struct {
	TourSourceID       int64
	TourName           string
	Price              decimal.Decimal
	PriceChange        *decimal.Decimal
	PriceChangePercent *decimal.Decimal
	RecordedAt         time.Time
}
