package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"tour-price-tracker/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ScraperConfig governs the headless crawl session.
type ScraperConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Language    string        `mapstructure:"language"`
	UserAgent   string        `mapstructure:"user_agent"`
	Headless    bool          `mapstructure:"headless"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxRetries  int           `mapstructure:"max_retries"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// SyncConfig drives the periodic price sync.
type SyncConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	Destinations []string      `mapstructure:"destinations"`
}

// AlertsConfig wires optional delivery channels. The log channel is
// always on; Telegram activates when a token and chat id are set.
type AlertsConfig struct {
	TelegramToken   string        `mapstructure:"telegram_token"`
	TelegramChatID  string        `mapstructure:"telegram_chat_id"`
	TelegramBaseURL string        `mapstructure:"telegram_base_url"`
	TelegramTimeout time.Duration `mapstructure:"telegram_timeout"`
}

// TelegramEnabled reports whether the Telegram channel is configured.
func (a AlertsConfig) TelegramEnabled() bool {
	return a.TelegramToken != "" && a.TelegramChatID != ""
}

// CleanupConfig controls price history retention.
type CleanupConfig struct {
	CronSpec      string `mapstructure:"cron"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TOURTRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tourtracker")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scraper.base_url", "https://www.civitatis.com")
	v.SetDefault("scraper.language", "en")
	v.SetDefault("scraper.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("scraper.headless", true)
	v.SetDefault("scraper.min_delay", "30s")
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.nav_timeout", "30s")
	v.SetDefault("scraper.settle_delay", "2s")

	v.SetDefault("sync.interval", "6h")
	v.SetDefault("sync.destinations", []string{
		"rome", "florence", "venice", "milan", "naples",
		"paris", "barcelona", "madrid", "london", "amsterdam",
	})

	v.SetDefault("cleanup.cron", "0 3 * * *")
	v.SetDefault("cleanup.retention_days", 90)

	v.SetDefault("alerts.telegram_timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scraper.MinDelay < 0 {
		return fmt.Errorf("scraper.min_delay cannot be negative")
	}
	if c.Scraper.MaxRetries <= 0 {
		return fmt.Errorf("scraper.max_retries must be greater than zero")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be greater than zero")
	}
	if len(c.Sync.Destinations) == 0 {
		return fmt.Errorf("sync.destinations must not be empty")
	}
	if c.Cleanup.RetentionDays <= 0 {
		return fmt.Errorf("cleanup.retention_days must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
