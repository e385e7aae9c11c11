// Package app owns the top-level application lifecycle. It wires the stores,
// caches, marketplace clients, worker pools, decision engine, and optional
// purchase executor together and runs scan cycles until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pudjojotaro/prismatic-parser/internal/config"
	"github.com/pudjojotaro/prismatic-parser/internal/decision"
	"github.com/pudjojotaro/prismatic-parser/internal/domain"
	"github.com/pudjojotaro/prismatic-parser/internal/executor"
	"github.com/pudjojotaro/prismatic-parser/internal/pipeline"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies and blocks on the scan loop until the context is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting scanner",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Bool("auto_buy", a.cfg.Executor.AutoBuy),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	listingPool := pipeline.NewListingFetchPool(
		deps.ClientFactory,
		deps.Extractor,
		deps.ItemStore,
		deps.ListingStore,
		deps.RateLimiter,
		pipeline.ListingPoolConfig{
			PageSize:         a.cfg.Steam.PageSize,
			MaxRetries:       a.cfg.Scanner.MaxRetries,
			BackoffBase:      a.cfg.BackoffBase(),
			PageRetryDelay:   a.cfg.PageRetryDelay(),
			BatchDelay:       a.cfg.BatchDelay(),
			ListingsPerBatch: a.cfg.Scanner.ListingsPerBatch,
		},
		a.logger,
	)

	gemPool := pipeline.NewGemFetchPool(
		deps.ClientFactory,
		deps.GemStore,
		deps.SnapshotCache,
		deps.RateLimiter,
		pipeline.GemPoolConfig{
			MaxRetries:         a.cfg.Scanner.MaxRetries,
			BackoffBase:        a.cfg.BackoffBase(),
			RequestDelay:       a.cfg.RequestDelay(),
			GemsPerPause:       a.cfg.Scanner.GemsPerPause,
			DampeningThreshold: a.cfg.Scanner.DampeningThreshold,
		},
		a.logger,
	)

	engine := decision.NewEngine(
		deps.ItemStore,
		deps.GemStore,
		deps.VerdictStore,
		deps.VerdictArchiver,
		deps.Notifier,
		decision.EngineConfig{
			Fee:          a.cfg.Steam.Fee,
			TargetProfit: a.cfg.Scanner.TargetProfit,
		},
		a.logger,
	)

	var runner pipeline.DecisionRunner = engine
	if deps.Purchaser != nil {
		ex := executor.New(
			deps.Purchaser,
			deps.VerdictStore,
			deps.ListingStore,
			deps.Notifier,
			executor.Config{
				MaxRetries:  a.cfg.Executor.MaxRetries,
				BackoffBase: a.cfg.ExecutorBackoffBase(),
			},
			a.logger,
		)
		runner = &autoBuyRunner{inner: engine, executor: ex, logger: a.logger}
	}

	orch := pipeline.NewOrchestrator(
		deps.Catalogue,
		deps.ProxyProvider,
		deps.LockManager,
		listingPool,
		gemPool,
		deps.WindowStore,
		runner,
		deps.Archiver,
		deps.Notifier,
		pipeline.OrchestratorConfig{
			CycleInterval: a.cfg.CycleInterval(),
			ErrorDelay:    a.cfg.ErrorDelay(),
			MaxErrorDelay: a.cfg.MaxErrorDelay(),
			GemProxyRatio: a.cfg.Scanner.GemProxyRatio,
			ArchiveAfter:  a.cfg.ArchiveAfter(),
		},
		a.logger,
	)

	return orch.Run(ctx)
}

// Close tears down all resources in reverse registration order. Safe to call
// more than once.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// autoBuyRunner chains the purchase executor after each decision pass, so
// fresh verdicts are acted on while their listings are still live.
type autoBuyRunner struct {
	inner    *decision.Engine
	executor *executor.Executor
	logger   *slog.Logger
}

func (r *autoBuyRunner) RunCycle(ctx context.Context, w domain.FetchWindow) (domain.CycleStats, error) {
	stats, err := r.inner.RunCycle(ctx, w)
	if err != nil {
		return stats, err
	}
	if _, err := r.executor.Run(ctx); err != nil {
		r.logger.Error("purchase pass failed", slog.String("error", err.Error()))
	}
	return stats, nil
}
