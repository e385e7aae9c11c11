package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/pudjojotaro/prismatic-parser/internal/blob/s3"
	"github.com/pudjojotaro/prismatic-parser/internal/cache/redis"
	"github.com/pudjojotaro/prismatic-parser/internal/config"
	"github.com/pudjojotaro/prismatic-parser/internal/domain"
	"github.com/pudjojotaro/prismatic-parser/internal/notify"
	"github.com/pudjojotaro/prismatic-parser/internal/pipeline"
	"github.com/pudjojotaro/prismatic-parser/internal/platform/steam"
	"github.com/pudjojotaro/prismatic-parser/internal/proxy"
	"github.com/pudjojotaro/prismatic-parser/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the scanner needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Catalogue domain.Catalogue

	// Stores
	ItemStore    domain.ItemStore
	GemStore     domain.GemStore
	VerdictStore domain.VerdictStore
	WindowStore  domain.WindowStore
	ListingStore domain.ListingStore

	// Caches
	SnapshotCache domain.GemSnapshotCache
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager

	// Blob storage; nil unless the archive is enabled.
	Archiver        domain.Archiver
	VerdictArchiver domain.VerdictArchiver

	// Marketplace access
	ClientFactory pipeline.ClientFactory
	Extractor     *steam.Extractor
	ProxyProvider *proxy.Provider

	// Purchase client; nil unless auto-buy is configured.
	Purchaser *steam.Client

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them with a cleanup function to be called on
// shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	cat, err := config.LoadCatalogue(cfg.Catalogue.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: catalogue: %w", err)
	}
	deps.Catalogue = cat

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.ItemStore = postgres.NewItemStore(pool)
	deps.GemStore = postgres.NewGemStore(pool)
	deps.VerdictStore = postgres.NewVerdictStore(pool)
	deps.WindowStore = postgres.NewWindowStore(pool)
	deps.ListingStore = postgres.NewListingStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	snapshotTTL := time.Duration(0)
	if cfg.Redis.SnapshotTTLMins > 0 {
		snapshotTTL = time.Duration(cfg.Redis.SnapshotTTLMins) * time.Minute
	}
	deps.SnapshotCache = redis.NewSnapshotCache(redisClient, snapshotTTL)
	deps.LockManager = redis.NewLockManager(redisClient)
	if cfg.Scanner.RateLimit > 0 {
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Scanner.RateLimit, cfg.RateWindow())
	}

	// --- S3 archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		archiver := s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.ListingStore)
		deps.Archiver = archiver
		deps.VerdictArchiver = archiver
	}

	// --- Marketplace ---
	deps.Extractor = steam.NewExtractor(cat)
	deps.ClientFactory = func(p domain.Proxy) (pipeline.MarketClient, error) {
		client := steam.NewClient(cfg.Steam.MarketHost, cfg.Steam.AppID, cfg.Steam.Currency)
		if err := client.SetProxy(p); err != nil {
			return nil, err
		}
		return client, nil
	}
	deps.ProxyProvider = proxy.NewProvider(cfg.Proxy.BaseURL, cfg.Proxy.APIKey)

	if cfg.Executor.AutoBuy {
		buyer := steam.NewClient(cfg.Steam.MarketHost, cfg.Steam.AppID, cfg.Steam.Currency)
		if err := buyer.SetSession(cfg.Steam.SessionCookie); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: purchase session: %w", err)
		}
		deps.Purchaser = buyer
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhook))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
