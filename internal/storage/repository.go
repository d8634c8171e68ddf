package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	tourColumns = `id,
        source_id,
        name,
        url,
        destination,
        destination_id,
        category,
        currency,
        current_price,
        rating,
        min_price,
        max_price,
        avg_price,
        first_seen_at,
        last_synced_at,
        is_active`

	getTourBySourceIDSQL = `SELECT ` + tourColumns + ` FROM tours WHERE source_id = $1;`

	getTourByIDSQL = `SELECT ` + tourColumns + ` FROM tours WHERE id = $1;`

	insertTourSQL = `INSERT INTO tours (
        source_id,
        name,
        url,
        destination,
        destination_id,
        category,
        currency,
        current_price,
        rating,
        min_price,
        max_price,
        avg_price,
        last_synced_at,
        is_active
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
    ) RETURNING id;`

	updateTourSQL = `UPDATE tours
    SET name           = $2,
        url            = $3,
        destination    = $4,
        destination_id = $5,
        category       = $6,
        current_price  = $7,
        rating         = $8,
        last_synced_at = $9,
        is_active      = $10
    WHERE id = $1;`

	tourPriceStatsSQL = `SELECT
        MIN(price)::text,
        MAX(price)::text,
        ROUND(AVG(price), 2)::text
    FROM price_history
    WHERE tour_id = $1;`

	updateTourPriceStatsSQL = `UPDATE tours
    SET min_price = $2,
        max_price = $3,
        avg_price = $4
    WHERE id = $1;`

	listActiveDestinationsSQL = `SELECT DISTINCT destination
    FROM tours
    WHERE is_active AND destination IS NOT NULL
    ORDER BY destination;`

	insertPriceHistorySQL = `INSERT INTO price_history (
        tour_id,
        price,
        currency,
        recorded_at,
        price_change,
        price_change_percent
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    );`

	listPriceHistorySQL = `SELECT
        id,
        tour_id,
        price,
        currency,
        recorded_at,
        price_change,
        price_change_percent
    FROM price_history
    WHERE tour_id = $1
      AND recorded_at >= $2
      AND recorded_at < $3
    ORDER BY recorded_at;`

	listRecentPriceChangesSQL = `SELECT
        t.source_id,
        t.name,
        h.price,
        h.price_change,
        h.price_change_percent,
        h.recorded_at
    FROM price_history h
    JOIN tours t ON t.id = h.tour_id
    WHERE h.price_change IS NOT NULL
    ORDER BY h.recorded_at DESC
    LIMIT $1;`

	countHistoryBeforeSQL = `SELECT COUNT(*) FROM price_history WHERE recorded_at < $1;`

	deleteHistoryBeforeSQL = `DELETE FROM price_history WHERE recorded_at < $1;`

	insertAlertRuleSQL = `INSERT INTO alerts (
        subscriber_id,
        tour_id,
        alert_type,
        threshold_price,
        threshold_percentage,
        status
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    ) RETURNING id;`

	alertColumns = `id,
        subscriber_id,
        tour_id,
        alert_type,
        threshold_price,
        threshold_percentage,
        status,
        last_triggered_at,
        trigger_count,
        created_at,
        updated_at`

	listActiveAlertsForTourSQL = `SELECT ` + alertColumns + `
    FROM alerts
    WHERE tour_id = $1 AND status = 'active'
    ORDER BY id;`

	listActiveAlertsSQL = `SELECT
        a.id,
        a.subscriber_id,
        a.tour_id,
        a.alert_type,
        a.threshold_price,
        a.threshold_percentage,
        a.status,
        a.last_triggered_at,
        a.trigger_count,
        a.created_at,
        a.updated_at,
        t.id,
        t.source_id,
        t.name,
        t.url,
        t.destination,
        t.destination_id,
        t.category,
        t.currency,
        t.current_price,
        t.rating,
        t.min_price,
        t.max_price,
        t.avg_price,
        t.first_seen_at,
        t.last_synced_at,
        t.is_active
    FROM alerts a
    JOIN tours t ON t.id = a.tour_id
    WHERE a.status = 'active'
    ORDER BY a.id;`

	markAlertTriggeredSQL = `UPDATE alerts
    SET last_triggered_at = $2,
        trigger_count     = trigger_count + 1,
        updated_at        = NOW()
    WHERE id = $1;`

	insertNotificationSQL = `INSERT INTO notifications (
        alert_id,
        subscriber_id,
        tour_id,
        old_price,
        new_price,
        price_change,
        price_change_percent,
        alert_type,
        message,
        sent_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    ) RETURNING id;`
)

// TourStore defines tour aggregate persistence.
type TourStore interface {
	GetTourBySourceID(ctx context.Context, sourceID int64) (*Tour, error)
	GetTour(ctx context.Context, id int64) (*Tour, error)
	InsertTour(ctx context.Context, tour Tour) (int64, error)
	UpdateTour(ctx context.Context, tour Tour) error
	TourPriceStats(ctx context.Context, tourID int64) (PriceStats, error)
	UpdateTourPriceStats(ctx context.Context, tourID int64, stats PriceStats) error
	ListActiveDestinations(ctx context.Context) ([]string, error)
}

// HistoryStore defines price history persistence.
type HistoryStore interface {
	InsertPriceHistory(ctx context.Context, record PriceHistoryRecord) error
	ListPriceHistory(ctx context.Context, tourID int64, from, to time.Time) ([]PriceHistoryRecord, error)
	ListRecentPriceChanges(ctx context.Context, limit int) ([]PriceChangeRow, error)
	CountPriceHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeletePriceHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SyncStore is the write surface the sync engine uses inside one
// partition transaction.
type SyncStore interface {
	TourStore
	HistoryStore
}

// TxRunner scopes a function to a single transaction. The function's
// error rolls the transaction back.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(SyncStore) error) error
}

// AlertRuleStore defines alert rule reads and trigger bookkeeping.
type AlertRuleStore interface {
	GetTour(ctx context.Context, id int64) (*Tour, error)
	InsertAlertRule(ctx context.Context, rule AlertRule) (int64, error)
	ListActiveAlertsForTour(ctx context.Context, tourID int64) ([]AlertRule, error)
	ListActiveAlerts(ctx context.Context) ([]ActiveAlert, error)
	MarkAlertTriggered(ctx context.Context, alertID int64, at time.Time) error
}

// NotificationStore persists fired-alert traces.
type NotificationStore interface {
	InsertNotification(ctx context.Context, record NotificationRecord) (int64, error)
}

// Store aggregates access to tours, price history, alerts, and
// notifications over one pgx pool or transaction.
type Store struct {
	db   DB
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getDB() (DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// WithTx runs fn against a transaction-scoped store, committing on nil
// and rolling back on error.
func (s *Store) WithTx(ctx context.Context, fn func(SyncStore) error) error {
	if s == nil || s.pool == nil {
		return ErrNotConfigured
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&Store{db: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("rollback tx after %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetTourBySourceID loads a tour by the external listing id. Absent rows
// return (nil, nil).
func (s *Store) GetTourBySourceID(ctx context.Context, sourceID int64) (*Tour, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	tour, scanErr := scanTour(db.QueryRow(ctx, getTourBySourceIDSQL, sourceID))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tour by source id: %w", scanErr)
	}
	return tour, nil
}

// GetTour loads a tour by primary key. Absent rows return (nil, nil).
func (s *Store) GetTour(ctx context.Context, id int64) (*Tour, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	tour, scanErr := scanTour(db.QueryRow(ctx, getTourByIDSQL, id))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tour: %w", scanErr)
	}
	return tour, nil
}

// InsertTour creates a tour and returns its id.
func (s *Store) InsertTour(ctx context.Context, tour Tour) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}

	var id int64
	scanErr := db.QueryRow(ctx, insertTourSQL,
		tour.SourceID,
		tour.Name,
		tour.URL,
		tour.Destination,
		tour.DestinationID,
		tour.Category,
		tour.Currency,
		tour.CurrentPrice.String(),
		decimalPtrArg(tour.Rating),
		tour.MinPrice.String(),
		tour.MaxPrice.String(),
		tour.AvgPrice.String(),
		tour.LastSyncedAt,
		tour.IsActive,
	).Scan(&id)
	if scanErr != nil {
		return 0, fmt.Errorf("insert tour: %w", scanErr)
	}
	return id, nil
}

// UpdateTour rewrites a tour's mutable fields.
func (s *Store) UpdateTour(ctx context.Context, tour Tour) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, execErr := db.Exec(ctx, updateTourSQL,
		tour.ID,
		tour.Name,
		tour.URL,
		tour.Destination,
		tour.DestinationID,
		tour.Category,
		tour.CurrentPrice.String(),
		decimalPtrArg(tour.Rating),
		tour.LastSyncedAt,
		tour.IsActive,
	)
	if execErr != nil {
		return fmt.Errorf("update tour: %w", execErr)
	}
	return nil
}

// TourPriceStats computes min/max/avg over the tour's full history.
func (s *Store) TourPriceStats(ctx context.Context, tourID int64) (PriceStats, error) {
	db, err := s.getDB()
	if err != nil {
		return PriceStats{}, err
	}

	var minStr, maxStr, avgStr sql.NullString
	if scanErr := db.QueryRow(ctx, tourPriceStatsSQL, tourID).Scan(&minStr, &maxStr, &avgStr); scanErr != nil {
		return PriceStats{}, fmt.Errorf("tour price stats: %w", scanErr)
	}
	if !minStr.Valid || !maxStr.Valid || !avgStr.Valid {
		return PriceStats{}, fmt.Errorf("tour price stats: no history rows for tour %d", tourID)
	}

	stats := PriceStats{}
	var convErr error
	if stats.Min, convErr = decimal.NewFromString(minStr.String); convErr != nil {
		return PriceStats{}, fmt.Errorf("parse min price: %w", convErr)
	}
	if stats.Max, convErr = decimal.NewFromString(maxStr.String); convErr != nil {
		return PriceStats{}, fmt.Errorf("parse max price: %w", convErr)
	}
	if stats.Avg, convErr = decimal.NewFromString(avgStr.String); convErr != nil {
		return PriceStats{}, fmt.Errorf("parse avg price: %w", convErr)
	}
	return stats, nil
}

// UpdateTourPriceStats writes the derived aggregates back to the tour.
func (s *Store) UpdateTourPriceStats(ctx context.Context, tourID int64, stats PriceStats) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, execErr := db.Exec(ctx, updateTourPriceStatsSQL,
		tourID,
		stats.Min.String(),
		stats.Max.String(),
		stats.Avg.String(),
	)
	if execErr != nil {
		return fmt.Errorf("update tour price stats: %w", execErr)
	}
	return nil
}

// ListActiveDestinations returns the distinct destinations of active tours.
func (s *Store) ListActiveDestinations(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.Query(ctx, listActiveDestinationsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active destinations: %w", queryErr)
	}
	defer rows.Close()

	destinations := make([]string, 0)
	for rows.Next() {
		var destination string
		if err := rows.Scan(&destination); err != nil {
			return nil, err
		}
		destinations = append(destinations, destination)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return destinations, nil
}

// InsertPriceHistory appends one history row.
func (s *Store) InsertPriceHistory(ctx context.Context, record PriceHistoryRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, execErr := db.Exec(ctx, insertPriceHistorySQL,
		record.TourID,
		record.Price.String(),
		record.Currency,
		record.RecordedAt,
		decimalPtrArg(record.PriceChange),
		decimalPtrArg(record.PriceChangePercent),
	)
	if execErr != nil {
		return fmt.Errorf("insert price history: %w", execErr)
	}
	return nil
}

// ListPriceHistory lists a tour's history rows within a time window.
func (s *Store) ListPriceHistory(ctx context.Context, tourID int64, from, to time.Time) ([]PriceHistoryRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.Query(ctx, listPriceHistorySQL, tourID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list price history: %w", queryErr)
	}
	defer rows.Close()

	records := make([]PriceHistoryRecord, 0)
	for rows.Next() {
		var (
			rec       PriceHistoryRecord
			priceStr  string
			changeStr sql.NullString
			pctStr    sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.TourID, &priceStr, &rec.Currency, &rec.RecordedAt, &changeStr, &pctStr); err != nil {
			return nil, err
		}

		var convErr error
		if rec.Price, convErr = decimal.NewFromString(priceStr); convErr != nil {
			return nil, fmt.Errorf("parse history price: %w", convErr)
		}
		if rec.PriceChange, convErr = parseNullDecimal(changeStr); convErr != nil {
			return nil, fmt.Errorf("parse price change: %w", convErr)
		}
		if rec.PriceChangePercent, convErr = parseNullDecimal(pctStr); convErr != nil {
			return nil, fmt.Errorf("parse price change percent: %w", convErr)
		}

		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// ListRecentPriceChanges lists the latest detected changes across tours.
func (s *Store) ListRecentPriceChanges(ctx context.Context, limit int) ([]PriceChangeRow, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.Query(ctx, listRecentPriceChangesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent price changes: %w", queryErr)
	}
	defer rows.Close()

	changes := make([]PriceChangeRow, 0, limit)
	for rows.Next() {
		var (
			row       PriceChangeRow
			priceStr  string
			changeStr sql.NullString
			pctStr    sql.NullString
		)
		if err := rows.Scan(&row.TourSourceID, &row.TourName, &priceStr, &changeStr, &pctStr, &row.RecordedAt); err != nil {
			return nil, err
		}

		var convErr error
		if row.Price, convErr = decimal.NewFromString(priceStr); convErr != nil {
			return nil, fmt.Errorf("parse change price: %w", convErr)
		}
		if row.PriceChange, convErr = parseNullDecimal(changeStr); convErr != nil {
			return nil, fmt.Errorf("parse change delta: %w", convErr)
		}
		if row.PriceChangePercent, convErr = parseNullDecimal(pctStr); convErr != nil {
			return nil, fmt.Errorf("parse change percent: %w", convErr)
		}

		changes = append(changes, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return changes, nil
}

// CountPriceHistoryBefore counts history rows older than the cutoff.
func (s *Store) CountPriceHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}

	var count int64
	if scanErr := db.QueryRow(ctx, countHistoryBeforeSQL, cutoff).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count price history: %w", scanErr)
	}
	return count, nil
}

// DeletePriceHistoryBefore deletes history rows older than the cutoff and
// reports how many were removed.
func (s *Store) DeletePriceHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}

	tag, execErr := db.Exec(ctx, deleteHistoryBeforeSQL, cutoff)
	if execErr != nil {
		return 0, fmt.Errorf("delete price history: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// InsertAlertRule persists a validated rule and returns its id.
func (s *Store) InsertAlertRule(ctx context.Context, rule AlertRule) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}

	var id int64
	scanErr := db.QueryRow(ctx, insertAlertRuleSQL,
		rule.SubscriberID,
		rule.TourID,
		string(rule.Type),
		decimalPtrArg(rule.ThresholdPrice),
		decimalPtrArg(rule.ThresholdPercentage),
		string(rule.Status),
	).Scan(&id)
	if scanErr != nil {
		return 0, fmt.Errorf("insert alert rule: %w", scanErr)
	}
	return id, nil
}

// ListActiveAlertsForTour lists active rules bound to one tour.
func (s *Store) ListActiveAlertsForTour(ctx context.Context, tourID int64) ([]AlertRule, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.Query(ctx, listActiveAlertsForTourSQL, tourID)
	if queryErr != nil {
		return nil, fmt.Errorf("list active alerts for tour: %w", queryErr)
	}
	defer rows.Close()

	rules := make([]AlertRule, 0)
	for rows.Next() {
		rule, scanErr := scanAlertRule(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

// ListActiveAlerts lists every active rule joined with its tour.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]ActiveAlert, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.Query(ctx, listActiveAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]ActiveAlert, 0)
	for rows.Next() {
		var (
			rule             AlertRule
			priceStr, pctStr sql.NullString
			alertType        string
			status           string
			lastTriggered    sql.NullTime
		)
		tour := tourScanTarget{}
		dests := append([]any{
			&rule.ID,
			&rule.SubscriberID,
			&rule.TourID,
			&alertType,
			&priceStr,
			&pctStr,
			&status,
			&lastTriggered,
			&rule.TriggerCount,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		}, tour.dests()...)
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}

		var convErr error
		if rule.ThresholdPrice, convErr = parseNullDecimal(priceStr); convErr != nil {
			return nil, fmt.Errorf("parse threshold price: %w", convErr)
		}
		if rule.ThresholdPercentage, convErr = parseNullDecimal(pctStr); convErr != nil {
			return nil, fmt.Errorf("parse threshold percentage: %w", convErr)
		}
		rule.Type = AlertType(alertType)
		rule.Status = AlertStatus(status)
		if lastTriggered.Valid {
			at := lastTriggered.Time
			rule.LastTriggeredAt = &at
		}

		built, buildErr := tour.build()
		if buildErr != nil {
			return nil, buildErr
		}

		alerts = append(alerts, ActiveAlert{Rule: rule, Tour: *built})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// MarkAlertTriggered records trigger bookkeeping for a fired rule.
func (s *Store) MarkAlertTriggered(ctx context.Context, alertID int64, at time.Time) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tag, execErr := db.Exec(ctx, markAlertTriggeredSQL, alertID, at)
	if execErr != nil {
		return fmt.Errorf("mark alert triggered: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// InsertNotification persists a fired-alert trace and returns its id.
func (s *Store) InsertNotification(ctx context.Context, record NotificationRecord) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}

	var id int64
	scanErr := db.QueryRow(ctx, insertNotificationSQL,
		record.AlertID,
		record.SubscriberID,
		record.TourID,
		record.OldPrice.String(),
		record.NewPrice.String(),
		record.PriceChange.String(),
		record.PriceChangePercent.String(),
		string(record.AlertType),
		record.Message,
		record.SentAt,
	).Scan(&id)
	if scanErr != nil {
		return 0, fmt.Errorf("insert notification: %w", scanErr)
	}
	return id, nil
}

// tourScanTarget accumulates raw tour columns before decimal conversion.
type tourScanTarget struct {
	id            int64
	sourceID      int64
	name          string
	url           sql.NullString
	destination   sql.NullString
	destinationID sql.NullInt64
	category      sql.NullString
	currency      string
	currentStr    string
	ratingStr     sql.NullString
	minStr        string
	maxStr        string
	avgStr        string
	firstSeenAt   time.Time
	lastSyncedAt  time.Time
	isActive      bool
}

func (t *tourScanTarget) dests() []any {
	return []any{
		&t.id,
		&t.sourceID,
		&t.name,
		&t.url,
		&t.destination,
		&t.destinationID,
		&t.category,
		&t.currency,
		&t.currentStr,
		&t.ratingStr,
		&t.minStr,
		&t.maxStr,
		&t.avgStr,
		&t.firstSeenAt,
		&t.lastSyncedAt,
		&t.isActive,
	}
}

func (t *tourScanTarget) build() (*Tour, error) {
	tour := Tour{
		ID:           t.id,
		SourceID:     t.sourceID,
		Name:         t.name,
		Currency:     t.currency,
		FirstSeenAt:  t.firstSeenAt,
		LastSyncedAt: t.lastSyncedAt,
		IsActive:     t.isActive,
	}

	if t.url.Valid {
		v := t.url.String
		tour.URL = &v
	}
	if t.destination.Valid {
		v := t.destination.String
		tour.Destination = &v
	}
	if t.destinationID.Valid {
		v := t.destinationID.Int64
		tour.DestinationID = &v
	}
	if t.category.Valid {
		v := t.category.String
		tour.Category = &v
	}

	var convErr error
	if tour.CurrentPrice, convErr = decimal.NewFromString(t.currentStr); convErr != nil {
		return nil, fmt.Errorf("parse current price: %w", convErr)
	}
	if tour.Rating, convErr = parseNullDecimal(t.ratingStr); convErr != nil {
		return nil, fmt.Errorf("parse rating: %w", convErr)
	}
	if tour.MinPrice, convErr = decimal.NewFromString(t.minStr); convErr != nil {
		return nil, fmt.Errorf("parse min price: %w", convErr)
	}
	if tour.MaxPrice, convErr = decimal.NewFromString(t.maxStr); convErr != nil {
		return nil, fmt.Errorf("parse max price: %w", convErr)
	}
	if tour.AvgPrice, convErr = decimal.NewFromString(t.avgStr); convErr != nil {
		return nil, fmt.Errorf("parse avg price: %w", convErr)
	}

	return &tour, nil
}

func scanTour(row pgx.Row) (*Tour, error) {
	target := tourScanTarget{}
	if err := row.Scan(target.dests()...); err != nil {
		return nil, err
	}
	return target.build()
}

func scanAlertRule(rows pgx.Rows) (AlertRule, error) {
	var (
		rule             AlertRule
		alertType        string
		status           string
		priceStr, pctStr sql.NullString
		lastTriggered    sql.NullTime
	)

	if err := rows.Scan(
		&rule.ID,
		&rule.SubscriberID,
		&rule.TourID,
		&alertType,
		&priceStr,
		&pctStr,
		&status,
		&lastTriggered,
		&rule.TriggerCount,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return AlertRule{}, err
	}

	rule.Type = AlertType(alertType)
	rule.Status = AlertStatus(status)
	if lastTriggered.Valid {
		at := lastTriggered.Time
		rule.LastTriggeredAt = &at
	}

	var convErr error
	if rule.ThresholdPrice, convErr = parseNullDecimal(priceStr); convErr != nil {
		return AlertRule{}, fmt.Errorf("parse threshold price: %w", convErr)
	}
	if rule.ThresholdPercentage, convErr = parseNullDecimal(pctStr); convErr != nil {
		return AlertRule{}, fmt.Errorf("parse threshold percentage: %w", convErr)
	}

	return rule, nil
}

func parseNullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	parsed, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func decimalPtrArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

var (
	_ TourStore         = (*Store)(nil)
	_ HistoryStore      = (*Store)(nil)
	_ AlertRuleStore    = (*Store)(nil)
	_ NotificationStore = (*Store)(nil)
	_ TxRunner          = (*Store)(nil)
)
