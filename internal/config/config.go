// Package config defines the top-level configuration for the prismatic
// parser and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PRISMATIC_* environment
// variables.
type Config struct {
	Steam     SteamConfig     `toml:"steam"`
	Scanner   ScannerConfig   `toml:"scanner"`
	Proxy     ProxyConfig     `toml:"proxy"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	Executor  ExecutorConfig  `toml:"executor"`
	Catalogue CatalogueConfig `toml:"catalogue"`
	LogLevel  string          `toml:"log_level"`
}

// SteamConfig holds marketplace endpoints and economics.
type SteamConfig struct {
	MarketHost string `toml:"market_host"`
	AppID      int    `toml:"app_id"`
	Currency   int    `toml:"currency"`
	// Fee is the marketplace cut taken out of gem resale proceeds.
	Fee float64 `toml:"fee"`
	// PageSize is the number of listings requested per render call.
	PageSize int `toml:"page_size"`
	// SessionCookie authenticates the purchase sub-client. Leave empty when
	// auto-buy is disabled.
	SessionCookie string `toml:"session_cookie"`
}

// ScannerConfig controls worker pacing, retries, and the decision margin.
type ScannerConfig struct {
	TargetProfit float64 `toml:"target_profit"`

	// Per-worker pacing.
	RequestDelaySeconds int `toml:"request_delay_seconds"` // gem workers, after every GemsPerPause fetches
	GemsPerPause        int `toml:"gems_per_pause"`
	BatchDelaySeconds   int `toml:"batch_delay_seconds"` // item workers, after ListingsPerBatch listings
	ListingsPerBatch    int `toml:"listings_per_batch"`

	// Retry policy, shared by discovery probes and histogram fetches.
	MaxRetries         int `toml:"max_retries"`
	BackoffBaseSeconds int `toml:"backoff_base_seconds"`
	// PageRetryDelaySeconds is the fixed sleep before a failed page task is
	// pushed back onto the queue.
	PageRetryDelaySeconds int `toml:"page_retry_delay_seconds"`

	// Cycle cadence.
	CycleIntervalSeconds int `toml:"cycle_interval_seconds"`
	ErrorDelaySeconds    int `toml:"error_delay_seconds"`
	MaxErrorDelaySeconds int `toml:"max_error_delay_seconds"`

	// GemProxyRatio is the share of leased proxies given to the gem pool;
	// the remainder fetches listings.
	GemProxyRatio float64 `toml:"gem_proxy_ratio"`

	// DampeningThreshold is the maximum mean top-of-book drift tolerated
	// before a fresh gem snapshot is discarded in favour of the previous
	// one. Zero disables dampening.
	DampeningThreshold float64 `toml:"dampening_threshold"`

	// Global request-rate floor shared by every worker (requests per
	// RateWindowSeconds across the whole process).
	RateLimit         int `toml:"rate_limit"`
	RateWindowSeconds int `toml:"rate_window_seconds"`

	// ArchiveAfterDays prunes raw listings older than this once archived.
	ArchiveAfterDays int `toml:"archive_after_days"`
}

// ProxyConfig holds the proxy-rental provider parameters.
type ProxyConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	PoolSize        int    `toml:"pool_size"`
	MaxRetries      int    `toml:"max_retries"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	SnapshotTTLMins int    `toml:"snapshot_ttl_minutes"`
}

// S3Config holds S3-compatible object storage parameters for the archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	DiscordWebhook string   `toml:"discord_webhook"`
	Events         []string `toml:"events"`
}

// ExecutorConfig controls automated purchasing of profitable listings.
type ExecutorConfig struct {
	AutoBuy            bool `toml:"auto_buy"`
	MaxRetries         int  `toml:"max_retries"`
	BackoffBaseSeconds int  `toml:"backoff_base_seconds"`
}

// CatalogueConfig points at the watch-list file. When Path is empty the
// embedded default catalogue is used.
type CatalogueConfig struct {
	Path string `toml:"path"`
}

// Defaults returns a Config pre-populated with the values the scanner ships
// with. Load layers the TOML file and environment on top.
func Defaults() Config {
	return Config{
		Steam: SteamConfig{
			MarketHost: "https://steamcommunity.com",
			AppID:      570, // Dota 2
			Currency:   1,
			Fee:        0.132,
			PageSize:   12,
		},
		Scanner: ScannerConfig{
			TargetProfit:          0.01,
			RequestDelaySeconds:   10,
			GemsPerPause:          3,
			BatchDelaySeconds:     60,
			ListingsPerBatch:      100,
			MaxRetries:            3,
			BackoffBaseSeconds:    5,
			PageRetryDelaySeconds: 5,
			CycleIntervalSeconds:  300,
			ErrorDelaySeconds:     60,
			MaxErrorDelaySeconds:  900,
			GemProxyRatio:         0.5,
			DampeningThreshold:    0.05,
			RateLimit:             20,
			RateWindowSeconds:     10,
			ArchiveAfterDays:      14,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "prismatic",
			User:          "prismatic",
			SSLMode:       "disable",
			PoolMaxConns:  8,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			PoolSize:        10,
			MaxRetries:      3,
			SnapshotTTLMins: 120,
		},
		Executor: ExecutorConfig{
			MaxRetries:         3,
			BackoffBaseSeconds: 2,
		},
		LogLevel: "info",
	}
}

// Validate checks that the configuration is internally consistent. It is
// called once at startup, after Load.
func (c *Config) Validate() error {
	var problems []string

	if c.Steam.Fee < 0 || c.Steam.Fee >= 1 {
		problems = append(problems, fmt.Sprintf("steam.fee must be in [0,1), got %v", c.Steam.Fee))
	}
	if c.Steam.PageSize <= 0 {
		problems = append(problems, "steam.page_size must be positive")
	}
	if c.Scanner.GemProxyRatio < 0 || c.Scanner.GemProxyRatio > 1 {
		problems = append(problems, fmt.Sprintf("scanner.gem_proxy_ratio must be in [0,1], got %v", c.Scanner.GemProxyRatio))
	}
	if c.Scanner.MaxRetries <= 0 {
		problems = append(problems, "scanner.max_retries must be positive")
	}
	if c.Scanner.DampeningThreshold < 0 {
		problems = append(problems, "scanner.dampening_threshold must not be negative")
	}
	if c.Proxy.BaseURL == "" {
		problems = append(problems, "proxy.base_url is required")
	}
	if c.Proxy.APIKey == "" {
		problems = append(problems, "proxy.api_key is required")
	}
	if c.Executor.AutoBuy && c.Steam.SessionCookie == "" {
		problems = append(problems, "executor.auto_buy requires steam.session_cookie")
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			problems = append(problems, "s3.bucket is required when s3 is enabled")
		}
		if c.S3.Region == "" {
			problems = append(problems, "s3.region is required when s3 is enabled")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RequestDelay returns the gem-worker pause as a time.Duration.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.Scanner.RequestDelaySeconds) * time.Second
}

// BatchDelay returns the item-worker batch pause as a time.Duration.
func (c *Config) BatchDelay() time.Duration {
	return time.Duration(c.Scanner.BatchDelaySeconds) * time.Second
}

// BackoffBase returns the first retry backoff step.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Scanner.BackoffBaseSeconds) * time.Second
}

// PageRetryDelay returns the sleep before a page task is requeued.
func (c *Config) PageRetryDelay() time.Duration {
	return time.Duration(c.Scanner.PageRetryDelaySeconds) * time.Second
}

// CycleInterval returns the cooldown between cycles.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Scanner.CycleIntervalSeconds) * time.Second
}

// ErrorDelay returns the base wait after a failed cycle or an empty proxy
// lease.
func (c *Config) ErrorDelay() time.Duration {
	return time.Duration(c.Scanner.ErrorDelaySeconds) * time.Second
}

// MaxErrorDelay caps the escalating proxy-acquisition wait.
func (c *Config) MaxErrorDelay() time.Duration {
	return time.Duration(c.Scanner.MaxErrorDelaySeconds) * time.Second
}

// RateWindow returns the sliding window for the global rate floor.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.Scanner.RateWindowSeconds) * time.Second
}

// ArchiveAfter returns the raw-listing retention period. Zero disables the
// archive pass.
func (c *Config) ArchiveAfter() time.Duration {
	return time.Duration(c.Scanner.ArchiveAfterDays) * 24 * time.Hour
}

// ExecutorBackoffBase returns the first purchase retry backoff step.
func (c *Config) ExecutorBackoffBase() time.Duration {
	return time.Duration(c.Executor.BackoffBaseSeconds) * time.Second
}
