// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // Asia/Jakarta must resolve on minimal images.

	"github.com/spf13/viper"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
)

// Config captures all run configuration knobs loaded via Viper.
type Config struct {
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Output    OutputConfig    `mapstructure:"output"`
	Retention RetentionConfig `mapstructure:"retention"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CrawlerConfig governs what is crawled and how work is fanned out.
type CrawlerConfig struct {
	BaseURL         string   `mapstructure:"base_url"`
	ListingPath     string   `mapstructure:"listing_path"`
	Mode            string   `mapstructure:"mode"`
	Workers         int      `mapstructure:"workers"`
	QueueDepth      int      `mapstructure:"queue_depth"`
	LookaheadMonths int      `mapstructure:"lookahead_months"`
	DelayMs         int      `mapstructure:"delay_ms"`
	Timezone        string   `mapstructure:"timezone"`
	UserAgent       string   `mapstructure:"user_agent"`
	RespectRobots   bool     `mapstructure:"respect_robots"`
	SnapshotAttr    string   `mapstructure:"snapshot_attr"`
	ExcludeSlugs    []string `mapstructure:"exclude_slugs"`
}

// HTTPConfig configures request timeouts, retries, and throttling.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	Retries        int     `mapstructure:"retries"`
	BackoffMs      int     `mapstructure:"backoff_ms"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
}

// OutputConfig sets where schedule files are written.
type OutputConfig struct {
	Root  string `mapstructure:"root"`
	Reset bool   `mapstructure:"reset"`
}

// RetentionConfig bounds how many year directories are kept per city.
type RetentionConfig struct {
	KeepYears int `mapstructure:"keep_years"`
}

// StorageConfig enables the optional GCS mirror.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig points at an optional Prometheus Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JADWAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.base_url", "https://jadwalsholat.arina.id")
	v.SetDefault("crawler.listing_path", "/brebes")
	v.SetDefault("crawler.mode", string(crawler.ModeRefresh))
	v.SetDefault("crawler.workers", 10)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.lookahead_months", 1)
	v.SetDefault("crawler.delay_ms", 500)
	v.SetDefault("crawler.timezone", "Asia/Jakarta")
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (compatible; jadwal-sholat-crawler/1.0)")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.snapshot_attr", "wire:snapshot")
	v.SetDefault("crawler.exclude_slugs", []string{})
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.retries", 2)
	v.SetDefault("http.backoff_ms", 1000)
	v.SetDefault("http.rate_limit_rps", 5)
	v.SetDefault("output.root", "jadwal")
	v.SetDefault("output.reset", false)
	v.SetDefault("retention.keep_years", 2)
	v.SetDefault("storage.prefix", "jadwal")
	v.SetDefault("metrics.job", "jadwal_crawler")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := crawler.NormalizeBaseURL(c.Crawler.BaseURL); err != nil {
		return fmt.Errorf("crawler.base_url: %w", err)
	}
	if _, err := crawler.ParseMode(c.Crawler.Mode); err != nil {
		return fmt.Errorf("crawler.mode: %w", err)
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.QueueDepth < 0 {
		return fmt.Errorf("crawler.queue_depth must be >= 0")
	}
	if c.Crawler.LookaheadMonths < 0 {
		return fmt.Errorf("crawler.lookahead_months must be >= 0")
	}
	if c.Crawler.DelayMs < 0 {
		return fmt.Errorf("crawler.delay_ms must be >= 0")
	}
	if _, err := time.LoadLocation(c.Crawler.Timezone); err != nil {
		return fmt.Errorf("crawler.timezone: %w", err)
	}
	if strings.TrimSpace(c.Crawler.UserAgent) == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if strings.TrimSpace(c.Crawler.SnapshotAttr) == "" {
		return fmt.Errorf("crawler.snapshot_attr must be set")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.Retries < 0 {
		return fmt.Errorf("http.retries must be >= 0")
	}
	if c.HTTP.BackoffMs < 0 {
		return fmt.Errorf("http.backoff_ms must be >= 0")
	}
	if c.HTTP.RateLimitRPS < 0 {
		return fmt.Errorf("http.rate_limit_rps must be >= 0")
	}
	if strings.TrimSpace(c.Output.Root) == "" {
		return fmt.Errorf("output.root must be set")
	}
	if c.Retention.KeepYears <= 0 {
		return fmt.Errorf("retention.keep_years must be > 0")
	}
	return nil
}

// Mode returns the validated run mode.
func (c Config) Mode() crawler.Mode {
	m, err := crawler.ParseMode(c.Crawler.Mode)
	if err != nil {
		return crawler.ModeRefresh
	}
	return m
}

// BaseURL returns the normalized upstream base URL.
func (c Config) BaseURL() string {
	base, err := crawler.NormalizeBaseURL(c.Crawler.BaseURL)
	if err != nil {
		return strings.TrimRight(c.Crawler.BaseURL, "/")
	}
	return base
}

// Location resolves the configured timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Crawler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Timeout converts the HTTP timeout into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Backoff converts the retry backoff into a duration.
func (c Config) Backoff() time.Duration {
	return time.Duration(c.HTTP.BackoffMs) * time.Millisecond
}

// Delay converts the per-unit politeness delay into a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Crawler.DelayMs) * time.Millisecond
}
