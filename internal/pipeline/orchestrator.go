package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
	"github.com/pudjojotaro/prismatic-parser/internal/notify"
	"github.com/pudjojotaro/prismatic-parser/internal/proxy"
)

const (
	cycleLockKey = "prismatic:cycle"
	cycleLockTTL = 2 * time.Hour

	// A cycle needs at least one proxy on each side of the gem/item split.
	minProxies = 2
)

// OrchestratorConfig controls cycle sequencing.
type OrchestratorConfig struct {
	CycleInterval time.Duration
	ErrorDelay    time.Duration
	MaxErrorDelay time.Duration
	GemProxyRatio float64
	ArchiveAfter  time.Duration
}

// Orchestrator sequences full scan cycles: lease proxies, run the gem and
// listing pools concurrently, persist the fetch window, evaluate verdicts,
// archive aged listings, release the proxies, cool down, repeat.
type Orchestrator struct {
	catalogue domain.Catalogue
	leaser    ProxyLeaser
	locks     domain.LockManager
	listings  *ListingFetchPool
	gems      *GemFetchPool
	windows   domain.WindowStore
	decision  DecisionRunner
	archiver  domain.Archiver // nil disables archiving
	notifier  Notifier
	cfg       OrchestratorConfig
	logger    *slog.Logger
}

// NewOrchestrator creates an orchestrator. archiver may be nil when cold
// storage is not configured.
func NewOrchestrator(
	catalogue domain.Catalogue,
	leaser ProxyLeaser,
	locks domain.LockManager,
	listings *ListingFetchPool,
	gems *GemFetchPool,
	windows domain.WindowStore,
	decision DecisionRunner,
	archiver domain.Archiver,
	notifier Notifier,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		catalogue: catalogue,
		leaser:    leaser,
		locks:     locks,
		listings:  listings,
		gems:      gems,
		windows:   windows,
		decision:  decision,
		archiver:  archiver,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "orchestrator")),
	}
}

// Run executes scan cycles until the context is cancelled. Cycle failures are
// reported and absorbed; only cancellation stops the loop.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.notify(ctx, notify.EventStartup, "Scanner started",
		fmt.Sprintf("Watching %d items and %d gems.", len(o.catalogue.Entries()), len(o.catalogue.Gems())))
	defer o.notify(context.Background(), notify.EventShutdown, "Scanner stopped", "Shutting down.")

	for {
		if err := o.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			o.logger.Error("cycle failed", slog.String("error", err.Error()))
			title, msg := notify.FormatCycleError(err)
			o.notify(ctx, notify.EventCycleError, title, msg)
			if err := sleepCtx(ctx, o.cfg.ErrorDelay); err != nil {
				return nil
			}
			continue
		}
		if err := sleepCtx(ctx, o.cfg.CycleInterval); err != nil {
			return nil
		}
	}
}

func (o *Orchestrator) runCycle(ctx context.Context) error {
	unlock, err := o.locks.Acquire(ctx, cycleLockKey, cycleLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			o.logger.Info("cycle lock held elsewhere, standing by")
			return sleepCtx(ctx, o.cfg.ErrorDelay)
		}
		return fmt.Errorf("pipeline: acquire cycle lock: %w", err)
	}
	defer unlock()

	proxies, err := o.leaseProxies(ctx)
	if err != nil {
		return err
	}
	defer o.releaseProxies(proxies)

	gemProxies, itemProxies := proxy.Split(proxies, o.cfg.GemProxyRatio)
	cycleID := uuid.New().String()
	o.logger.Info("cycle started",
		slog.String("cycle_id", cycleID),
		slog.Int("proxies", len(proxies)),
		slog.Int("gem_workers", len(gemProxies)),
		slog.Int("item_workers", len(itemProxies)),
	)
	cycleStart := time.Now()

	var window domain.FetchWindow
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.gems.Run(gctx, o.catalogue.Gems(), gemProxies)
	})
	g.Go(func() error {
		w, err := o.listings.Run(gctx, o.catalogue.Entries(), itemProxies)
		if err != nil {
			return err
		}
		window = w
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := o.windows.Save(ctx, window); err != nil {
		return fmt.Errorf("pipeline: save fetch window: %w", err)
	}

	stats, err := o.decision.RunCycle(ctx, window)
	if err != nil {
		return fmt.Errorf("pipeline: decision cycle: %w", err)
	}
	if stats.Profitable == 0 {
		title, msg := notify.FormatNoProfit(stats)
		o.notify(ctx, notify.EventNoProfit, title, msg)
	}

	if o.archiver != nil && o.cfg.ArchiveAfter > 0 {
		cutoff := time.Now().UTC().Add(-o.cfg.ArchiveAfter)
		archived, err := o.archiver.ArchiveListings(ctx, cutoff)
		if err != nil {
			// Archiving is housekeeping; a failed upload must not fail
			// the cycle.
			o.logger.Warn("archive pass failed", slog.String("error", err.Error()))
		} else if archived > 0 {
			o.logger.Info("archived aged listings", slog.Int64("count", archived))
		}
	}

	o.logger.Info("cycle complete",
		slog.String("cycle_id", cycleID),
		slog.Duration("took", time.Since(cycleStart)),
		slog.Int("evaluated", stats.Evaluated),
		slog.Int("profitable", stats.Profitable),
		slog.Int("deleted", stats.Deleted),
		slog.Int("errors", stats.Errors),
	)
	return nil
}

// leaseProxies blocks until the provider hands out enough proxies to split
// across both pools, backing off with a doubling delay capped at
// MaxErrorDelay.
func (o *Orchestrator) leaseProxies(ctx context.Context) ([]domain.Proxy, error) {
	delay := o.cfg.ErrorDelay
	for {
		proxies, err := o.leaser.LeaseAll(ctx)
		if err == nil && len(proxies) >= minProxies {
			return proxies, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Warn("proxy lease failed", slog.String("error", err.Error()))
		} else {
			o.releaseProxies(proxies)
			o.logger.Warn("not enough proxies available", slog.Int("leased", len(proxies)))
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
		delay = min(delay*2, o.cfg.MaxErrorDelay)
	}
}

func (o *Orchestrator) releaseProxies(proxies []domain.Proxy) {
	if len(proxies) == 0 {
		return
	}
	ids := make([]int64, 0, len(proxies))
	for _, p := range proxies {
		ids = append(ids, p.ID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := o.leaser.Release(ctx, ids); err != nil {
		o.logger.Error("proxy release failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) notify(ctx context.Context, event, title, message string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, event, title, message); err != nil {
		o.logger.Warn("notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
