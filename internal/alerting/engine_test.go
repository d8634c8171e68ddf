package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tour-price-tracker/internal/storage"
)

type fakeRuleStore struct {
	nextID int64
	tours  map[int64]*storage.Tour
	rules  []storage.AlertRule
	active []storage.ActiveAlert
	marked []int64
}

func (f *fakeRuleStore) GetTour(_ context.Context, id int64) (*storage.Tour, error) {
	tour, ok := f.tours[id]
	if !ok {
		return nil, nil
	}
	clone := *tour
	return &clone, nil
}

func (f *fakeRuleStore) InsertAlertRule(_ context.Context, rule storage.AlertRule) (int64, error) {
	f.nextID++
	rule.ID = f.nextID
	f.rules = append(f.rules, rule)
	return rule.ID, nil
}

func (f *fakeRuleStore) ListActiveAlertsForTour(_ context.Context, tourID int64) ([]storage.AlertRule, error) {
	out := make([]storage.AlertRule, 0)
	for _, rule := range f.rules {
		if rule.TourID == tourID && rule.Status == storage.AlertStatusActive {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (f *fakeRuleStore) ListActiveAlerts(_ context.Context) ([]storage.ActiveAlert, error) {
	return f.active, nil
}

func (f *fakeRuleStore) MarkAlertTriggered(_ context.Context, alertID int64, _ time.Time) error {
	f.marked = append(f.marked, alertID)
	return nil
}

type fakeNotificationStore struct {
	records []storage.NotificationRecord
}

func (f *fakeNotificationStore) InsertNotification(_ context.Context, record storage.NotificationRecord) (int64, error) {
	f.records = append(f.records, record)
	return int64(len(f.records)), nil
}

type recordingNotifier struct {
	batches [][]Notification
	err     error
}

func (r *recordingNotifier) Notify(_ context.Context, notes []Notification) error {
	r.batches = append(r.batches, notes)
	return r.err
}

func (r *recordingNotifier) all() []Notification {
	var out []Notification
	for _, batch := range r.batches {
		out = append(out, batch...)
	}
	return out
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func sampleTour() storage.Tour {
	destination := "rome"
	return storage.Tour{
		ID:           1,
		SourceID:     101,
		Name:         "Colosseum Guided Tour",
		Destination:  &destination,
		Currency:     "EUR",
		CurrentPrice: dec("85"),
		IsActive:     true,
	}
}

func newTestEngine(rules *fakeRuleStore, notes *fakeNotificationStore) *Engine {
	return New(rules, notes, zerolog.Nop())
}

func TestValidateRule(t *testing.T) {
	cases := []struct {
		name    string
		rule    storage.AlertRule
		wantErr bool
	}{
		{"price drop with threshold", storage.AlertRule{SubscriberID: 1, TourID: 1, Type: storage.AlertPriceDrop, ThresholdPrice: decPtr("50")}, false},
		{"price drop without threshold", storage.AlertRule{SubscriberID: 1, TourID: 1, Type: storage.AlertPriceDrop}, true},
		{"price drop with zero threshold", storage.AlertRule{SubscriberID: 1, TourID: 1, Type: storage.AlertPriceDrop, ThresholdPrice: decPtr("0")}, true},
		{"increase with threshold", storage.AlertRule{SubscriberID: 1, TourID: 1, Type: storage.AlertPriceIncrease, ThresholdPrice: decPtr("120")}, false},
		{"any change", storage.AlertRule{SubscriberID: 1, TourID: 1, Type: storage.AlertPriceChange}, false},
		{"percentage drop", storage.AlertRule{SubscriberID: 1, TourID: 1, Type: storage.AlertPercentageDrop, ThresholdPercentage: decPtr("10")}, false},
		{"percentage drop above 100", storage.AlertRule{SubscriberID: 1, TourID: 1, Type: storage.AlertPercentageDrop, ThresholdPercentage: decPtr("150")}, true},
		{"unknown type", storage.AlertRule{SubscriberID: 1, TourID: 1, Type: "spam"}, true},
		{"missing tour", storage.AlertRule{SubscriberID: 1, Type: storage.AlertPriceChange}, true},
		{"missing subscriber", storage.AlertRule{TourID: 1, Type: storage.AlertPriceChange}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRule(tc.rule)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateRule: err=%v, wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestShouldTrigger(t *testing.T) {
	cases := []struct {
		name     string
		rule     storage.AlertRule
		oldPrice string
		newPrice string
		want     bool
	}{
		{"drop below threshold", storage.AlertRule{Type: storage.AlertPriceDrop, ThresholdPrice: decPtr("90")}, "100", "85", true},
		{"drop exactly at threshold", storage.AlertRule{Type: storage.AlertPriceDrop, ThresholdPrice: decPtr("85")}, "100", "85", true},
		{"drop still above threshold", storage.AlertRule{Type: storage.AlertPriceDrop, ThresholdPrice: decPtr("80")}, "100", "85", false},
		{"drop rule ignores increase", storage.AlertRule{Type: storage.AlertPriceDrop, ThresholdPrice: decPtr("90")}, "85", "100", false},
		{"increase above threshold", storage.AlertRule{Type: storage.AlertPriceIncrease, ThresholdPrice: decPtr("110")}, "100", "115", true},
		{"increase below threshold", storage.AlertRule{Type: storage.AlertPriceIncrease, ThresholdPrice: decPtr("120")}, "100", "115", false},
		{"any change fires on drop", storage.AlertRule{Type: storage.AlertPriceChange}, "100", "99", true},
		{"any change fires on rise", storage.AlertRule{Type: storage.AlertPriceChange}, "100", "101", true},
		{"any change quiet when equal", storage.AlertRule{Type: storage.AlertPriceChange}, "100", "100", false},
		{"percentage drop met", storage.AlertRule{Type: storage.AlertPercentageDrop, ThresholdPercentage: decPtr("15")}, "100", "85", true},
		{"percentage drop not met", storage.AlertRule{Type: storage.AlertPercentageDrop, ThresholdPercentage: decPtr("10")}, "100", "92", false},
		{"percentage drop ignores increase", storage.AlertRule{Type: storage.AlertPercentageDrop, ThresholdPercentage: decPtr("10")}, "100", "120", false},
		{"percentage drop zero old price", storage.AlertRule{Type: storage.AlertPercentageDrop, ThresholdPercentage: decPtr("10")}, "0", "0", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := shouldTrigger(tc.rule, dec(tc.oldPrice), dec(tc.newPrice))
			if got != tc.want {
				t.Fatalf("shouldTrigger = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCheckAlertsForTourTriggersAndRecords(t *testing.T) {
	tour := sampleTour()
	rules := &fakeRuleStore{
		tours: map[int64]*storage.Tour{tour.ID: &tour},
		rules: []storage.AlertRule{
			{ID: 7, SubscriberID: 3, TourID: tour.ID, Type: storage.AlertPriceDrop, ThresholdPrice: decPtr("90"), Status: storage.AlertStatusActive},
			{ID: 8, SubscriberID: 3, TourID: tour.ID, Type: storage.AlertPriceDrop, ThresholdPrice: decPtr("50"), Status: storage.AlertStatusActive},
		},
	}
	notes := &fakeNotificationStore{}
	engine := newTestEngine(rules, notes)
	sink := &recordingNotifier{}
	engine.Register(sink)

	if err := engine.CheckAlertsForTour(context.Background(), &tour, dec("100"), dec("85")); err != nil {
		t.Fatalf("CheckAlertsForTour: %v", err)
	}

	if len(rules.marked) != 1 || rules.marked[0] != 7 {
		t.Fatalf("expected only rule 7 marked, got %v", rules.marked)
	}
	if len(notes.records) != 1 {
		t.Fatalf("expected one notification record, got %d", len(notes.records))
	}

	record := notes.records[0]
	if !record.OldPrice.Equal(dec("100")) || !record.NewPrice.Equal(dec("85")) {
		t.Errorf("record prices old=%s new=%s", record.OldPrice, record.NewPrice)
	}
	if !record.PriceChangePercent.Equal(dec("-15")) {
		t.Errorf("record percent = %s, want -15", record.PriceChangePercent)
	}

	if len(sink.all()) != 1 {
		t.Fatalf("expected one delivered notification, got %d", len(sink.all()))
	}
	if sink.all()[0].Message == "" {
		t.Error("notification message should be rendered")
	}
}

func TestCheckAlertsForTourDeliversOneBatchPerPass(t *testing.T) {
	tour := sampleTour()
	rules := &fakeRuleStore{
		tours: map[int64]*storage.Tour{tour.ID: &tour},
		rules: []storage.AlertRule{
			{ID: 7, SubscriberID: 3, TourID: tour.ID, Type: storage.AlertPriceDrop, ThresholdPrice: decPtr("90"), Status: storage.AlertStatusActive},
			{ID: 8, SubscriberID: 4, TourID: tour.ID, Type: storage.AlertPriceChange, Status: storage.AlertStatusActive},
		},
	}
	notes := &fakeNotificationStore{}
	engine := newTestEngine(rules, notes)
	sink := &recordingNotifier{}
	engine.Register(sink)

	if err := engine.CheckAlertsForTour(context.Background(), &tour, dec("100"), dec("85")); err != nil {
		t.Fatalf("CheckAlertsForTour: %v", err)
	}

	// Both rules fire, and the pass is flushed as a single batch.
	if len(sink.batches) != 1 {
		t.Fatalf("expected one batch per evaluation pass, got %d", len(sink.batches))
	}
	if got := len(sink.batches[0]); got != 2 {
		t.Fatalf("batch size = %d, want 2", got)
	}
	if sink.batches[0][0].AlertID != 7 || sink.batches[0][1].AlertID != 8 {
		t.Errorf("batch order = %d,%d, want 7,8", sink.batches[0][0].AlertID, sink.batches[0][1].AlertID)
	}
}

func TestCheckAlertsForTourNotifierFailureIsolated(t *testing.T) {
	tour := sampleTour()
	rules := &fakeRuleStore{
		tours: map[int64]*storage.Tour{tour.ID: &tour},
		rules: []storage.AlertRule{
			{ID: 7, SubscriberID: 3, TourID: tour.ID, Type: storage.AlertPriceChange, Status: storage.AlertStatusActive},
		},
	}
	notes := &fakeNotificationStore{}
	engine := newTestEngine(rules, notes)
	failing := &recordingNotifier{err: errors.New("channel down")}
	healthy := &recordingNotifier{}
	engine.Register(failing)
	engine.Register(healthy)

	if err := engine.CheckAlertsForTour(context.Background(), &tour, dec("100"), dec("85")); err != nil {
		t.Fatalf("CheckAlertsForTour: %v", err)
	}

	if len(failing.batches) != 1 || len(healthy.batches) != 1 {
		t.Fatalf("both notifiers should be attempted, got %d/%d", len(failing.batches), len(healthy.batches))
	}
	if len(rules.marked) != 1 {
		t.Errorf("bookkeeping should still run after a channel failure, marked=%v", rules.marked)
	}
	if len(notes.records) != 1 {
		t.Errorf("notification trace should still persist, got %d", len(notes.records))
	}
}

func TestCheckAllPendingAlerts(t *testing.T) {
	tour := sampleTour()
	tour.CurrentPrice = dec("45")
	rules := &fakeRuleStore{
		active: []storage.ActiveAlert{
			{Rule: storage.AlertRule{ID: 1, SubscriberID: 3, TourID: tour.ID, Type: storage.AlertPriceDrop, ThresholdPrice: decPtr("50"), Status: storage.AlertStatusActive}, Tour: tour},
			{Rule: storage.AlertRule{ID: 2, SubscriberID: 3, TourID: tour.ID, Type: storage.AlertPriceDrop, ThresholdPrice: decPtr("40"), Status: storage.AlertStatusActive}, Tour: tour},
			{Rule: storage.AlertRule{ID: 3, SubscriberID: 3, TourID: tour.ID, Type: storage.AlertPercentageDrop, ThresholdPercentage: decPtr("10"), Status: storage.AlertStatusActive}, Tour: tour},
		},
	}
	notes := &fakeNotificationStore{}
	engine := newTestEngine(rules, notes)
	sink := &recordingNotifier{}
	engine.Register(sink)

	fired, err := engine.CheckAllPendingAlerts(context.Background())
	if err != nil {
		t.Fatalf("CheckAllPendingAlerts: %v", err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}

	note := sink.all()[0]
	if note.AlertID != 1 {
		t.Errorf("fired alert id = %d, want 1", note.AlertID)
	}
	if !note.OldPrice.Equal(dec("50")) || !note.NewPrice.Equal(dec("45")) {
		t.Errorf("catch-up prices old=%s new=%s, want threshold as old price", note.OldPrice, note.NewPrice)
	}
	if !note.PriceChangePercent.IsZero() {
		t.Errorf("catch-up percent = %s, want 0", note.PriceChangePercent)
	}
}

func TestCreateRule(t *testing.T) {
	tour := sampleTour()
	rules := &fakeRuleStore{tours: map[int64]*storage.Tour{tour.ID: &tour}}
	engine := newTestEngine(rules, &fakeNotificationStore{})

	id, err := engine.CreateRule(context.Background(), storage.AlertRule{
		SubscriberID:   3,
		TourID:         tour.ID,
		Type:           storage.AlertPriceDrop,
		ThresholdPrice: decPtr("50"),
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}
	if rules.rules[0].Status != storage.AlertStatusActive {
		t.Errorf("rule status = %s, want active", rules.rules[0].Status)
	}
}

func TestCreateRuleUnknownTour(t *testing.T) {
	rules := &fakeRuleStore{tours: map[int64]*storage.Tour{}}
	engine := newTestEngine(rules, &fakeNotificationStore{})

	if _, err := engine.CreateRule(context.Background(), storage.AlertRule{
		SubscriberID: 3,
		TourID:       42,
		Type:         storage.AlertPriceChange,
	}); err == nil {
		t.Fatal("expected error for unknown tour")
	}
}
