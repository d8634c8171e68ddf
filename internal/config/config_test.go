package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Scraper.BaseURL != "https://www.civitatis.com" {
		t.Errorf("base url = %s", cfg.Scraper.BaseURL)
	}
	if cfg.Scraper.MinDelay != 30*time.Second {
		t.Errorf("min delay = %s, want 30s", cfg.Scraper.MinDelay)
	}
	if cfg.Sync.Interval != 6*time.Hour {
		t.Errorf("sync interval = %s, want 6h", cfg.Sync.Interval)
	}
	if len(cfg.Sync.Destinations) != 10 {
		t.Errorf("destinations = %d, want 10 defaults", len(cfg.Sync.Destinations))
	}
	if cfg.Cleanup.CronSpec != "0 3 * * *" {
		t.Errorf("cleanup cron = %s", cfg.Cleanup.CronSpec)
	}
	if cfg.Cleanup.RetentionDays != 90 {
		t.Errorf("retention = %d, want 90", cfg.Cleanup.RetentionDays)
	}
	if cfg.Alerts.TelegramEnabled() {
		t.Error("telegram should be disabled by default")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg.Sync.Interval = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero sync interval should fail validation")
	}

	cfg.Sync.Interval = time.Hour
	cfg.Sync.Destinations = nil
	if err := cfg.Validate(); err == nil {
		t.Error("empty destinations should fail validation")
	}

	cfg.Sync.Destinations = []string{"rome"}
	cfg.Cleanup.RetentionDays = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero retention should fail validation")
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 500}}
	if got := cfg.ResolveMaxPoints(0); got != 500 {
		t.Errorf("default = %d, want 500", got)
	}
	if got := cfg.ResolveMaxPoints(50); got != 50 {
		t.Errorf("override = %d, want 50", got)
	}
}
