package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PRISMATIC_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PRISMATIC_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Steam ──
	setStr(&cfg.Steam.MarketHost, "PRISMATIC_STEAM_MARKET_HOST")
	setInt(&cfg.Steam.Currency, "PRISMATIC_STEAM_CURRENCY")
	setFloat64(&cfg.Steam.Fee, "PRISMATIC_STEAM_FEE")
	setStr(&cfg.Steam.SessionCookie, "PRISMATIC_STEAM_SESSION_COOKIE")

	// ── Proxy provider ──
	setStr(&cfg.Proxy.BaseURL, "PRISMATIC_PROXY_BASE_URL")
	setStr(&cfg.Proxy.APIKey, "PRISMATIC_PROXY_API_KEY")

	// ── Scanner ──
	setFloat64(&cfg.Scanner.TargetProfit, "PRISMATIC_SCANNER_TARGET_PROFIT")
	setFloat64(&cfg.Scanner.GemProxyRatio, "PRISMATIC_SCANNER_GEM_PROXY_RATIO")
	setFloat64(&cfg.Scanner.DampeningThreshold, "PRISMATIC_SCANNER_DAMPENING_THRESHOLD")
	setInt(&cfg.Scanner.CycleIntervalSeconds, "PRISMATIC_SCANNER_CYCLE_INTERVAL_SECONDS")
	setInt(&cfg.Scanner.ErrorDelaySeconds, "PRISMATIC_SCANNER_ERROR_DELAY_SECONDS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PRISMATIC_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PRISMATIC_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PRISMATIC_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PRISMATIC_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PRISMATIC_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PRISMATIC_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PRISMATIC_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "PRISMATIC_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PRISMATIC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PRISMATIC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PRISMATIC_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "PRISMATIC_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PRISMATIC_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PRISMATIC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PRISMATIC_S3_REGION")
	setStr(&cfg.S3.Bucket, "PRISMATIC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PRISMATIC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PRISMATIC_S3_SECRET_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PRISMATIC_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PRISMATIC_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhook, "PRISMATIC_DISCORD_WEBHOOK")

	// ── Executor ──
	setBool(&cfg.Executor.AutoBuy, "PRISMATIC_EXECUTOR_AUTO_BUY")

	// ── Catalogue ──
	setStr(&cfg.Catalogue.Path, "PRISMATIC_CATALOGUE_PATH")

	setStr(&cfg.LogLevel, "PRISMATIC_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
