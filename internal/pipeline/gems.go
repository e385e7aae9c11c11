package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

// GemPoolConfig controls pacing, retries, and snapshot dampening of the gem
// fetch pool.
type GemPoolConfig struct {
	MaxRetries         int
	BackoffBase        time.Duration
	RequestDelay       time.Duration
	GemsPerPause       int
	DampeningThreshold float64
}

// GemFetchPool refreshes the buy order books of all allowed gems through a
// set of leased proxies. Fresh books are compared against the previous
// snapshot and large single-cycle swings are held back for one cycle, which
// keeps a transient bad read from flipping verdicts.
type GemFetchPool struct {
	factory   ClientFactory
	gems      domain.GemStore
	snapshots domain.GemSnapshotCache
	limiter   domain.RateLimiter
	cfg       GemPoolConfig
	logger    *slog.Logger
}

// NewGemFetchPool creates a gem fetch pool.
func NewGemFetchPool(
	factory ClientFactory,
	gems domain.GemStore,
	snapshots domain.GemSnapshotCache,
	limiter domain.RateLimiter,
	cfg GemPoolConfig,
	logger *slog.Logger,
) *GemFetchPool {
	return &GemFetchPool{
		factory:   factory,
		gems:      gems,
		snapshots: snapshots,
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "gem_pool")),
	}
}

// gemTask is one gem order book to refresh.
type gemTask struct {
	ref     domain.GemRef
	attempt domain.TaskAttempt
}

type gemMsg struct {
	task gemTask
	stop bool
}

// Run refreshes every gem in refs. Like the listing pool it guarantees each
// task is either completed or explicitly abandoned before the workers stop.
func (p *GemFetchPool) Run(ctx context.Context, refs []domain.GemRef, proxies []domain.Proxy) error {
	if len(proxies) == 0 {
		return domain.ErrNoProxies
	}
	if len(refs) == 0 {
		return nil
	}

	// Each task exists at most once in the queue (requeue happens only
	// after it was taken out), so task slots plus sentinels bound it.
	queue := make(chan gemMsg, len(refs)+len(proxies))
	var remaining atomic.Int64
	remaining.Store(int64(len(refs)))
	for _, ref := range refs {
		queue <- gemMsg{task: gemTask{ref: ref}}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, proxy := range proxies {
		proxy := proxy
		g.Go(func() error {
			client, err := p.factory(proxy)
			if err != nil {
				return fmt.Errorf("pipeline: build client for proxy %d: %w", proxy.ID, err)
			}
			return p.gemWorker(ctx, client, queue, &remaining, len(proxies))
		})
	}
	return g.Wait()
}

func (p *GemFetchPool) gemWorker(ctx context.Context, client MarketClient, queue chan gemMsg, remaining *atomic.Int64, workers int) error {
	fetched := 0

	for {
		var msg gemMsg
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg = <-queue:
		}
		if msg.stop {
			return nil
		}

		task := msg.task
		requeued := false
		for {
			outcome, err := p.refreshGem(ctx, client, task.ref)
			if ctx.Err() != nil {
				return ctx.Err()
			}

			task.attempt = domain.NextTaskState(task.attempt, outcome, p.cfg.MaxRetries)
			finished := false
			switch task.attempt.State {
			case domain.TaskDone:
				finished = true
			case domain.TaskRetrying:
				delay := p.cfg.BackoffBase << task.attempt.Attempt
				p.logger.Debug("gem fetch retrying",
					slog.String("gem", task.ref.QualifiedName()),
					slog.Int("attempt", task.attempt.Attempt),
					slog.Duration("delay", delay),
				)
				if err := sleepCtx(ctx, delay); err != nil {
					return err
				}
				continue
			case domain.TaskRequeued:
				p.logger.Warn("gem task requeued",
					slog.String("gem", task.ref.QualifiedName()),
					slog.String("error", err.Error()),
				)
				queue <- gemMsg{task: task}
				requeued = true
			case domain.TaskAbandoned:
				p.logger.Error("gem task abandoned",
					slog.String("gem", task.ref.QualifiedName()),
					slog.String("error", err.Error()),
				)
				finished = true
			}
			if finished || requeued {
				break
			}
		}

		if !requeued && remaining.Add(-1) == 0 {
			for i := 0; i < workers; i++ {
				queue <- gemMsg{stop: true}
			}
		}

		fetched++
		if p.cfg.GemsPerPause > 0 && fetched >= p.cfg.GemsPerPause {
			fetched = 0
			if err := sleepCtx(ctx, p.cfg.RequestDelay); err != nil {
				return err
			}
		}
	}
}

// refreshGem fetches one gem's order book histogram and persists the reduced
// book. A malformed histogram is terminal for the task: the gem is persisted
// with an empty book so downstream evaluation sees it as unsellable rather
// than stale.
func (p *GemFetchPool) refreshGem(ctx context.Context, client MarketClient, ref domain.GemRef) (domain.TaskOutcome, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, rateKey); err != nil {
			return domain.OutcomeTransient, err
		}
	}

	name := ref.QualifiedName()
	now := time.Now().UTC()

	hist, err := client.GetOrderHistogram(ctx, ref.ExternalID)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedHistogram) {
			empty := domain.Gem{Name: name, UpdatedAt: now}
			if serr := p.gems.Upsert(ctx, empty); serr != nil {
				return domain.OutcomeTransient, serr
			}
			p.logger.Warn("malformed histogram, stored empty book", slog.String("gem", name))
			return domain.OutcomeMalformed, err
		}
		return domain.OutcomeTransient, err
	}

	book, depth := domain.ReduceCumulative(hist.Levels)

	// Change dampening: a single anomalous read must not flap a verdict.
	// The previous book is kept but still persisted with a fresh timestamp,
	// state is written unconditionally every cycle.
	if p.cfg.DampeningThreshold > 0 {
		if prev, err := p.snapshots.Get(ctx, name); err == nil {
			if drift := domain.SnapshotDrift(prev, book); drift > p.cfg.DampeningThreshold {
				p.logger.Warn("order book drift exceeds threshold, keeping previous snapshot",
					slog.String("gem", name),
					slog.Float64("drift", drift),
				)
				book = prev
				depth = 0
				for _, lvl := range prev {
					if lvl.Quantity > 0 {
						depth += lvl.Quantity
					}
				}
			}
		} else if !errors.Is(err, domain.ErrNotFound) {
			p.logger.Warn("snapshot read failed", slog.String("gem", name), slog.String("error", err.Error()))
		}
	}

	gem := domain.Gem{
		Name:      name,
		BuyOrders: book,
		Depth:     depth,
		UpdatedAt: now,
	}
	if err := p.gems.Upsert(ctx, gem); err != nil {
		return domain.OutcomeTransient, err
	}
	if err := p.snapshots.Set(ctx, name, book); err != nil {
		p.logger.Warn("snapshot write failed", slog.String("gem", name), slog.String("error", err.Error()))
	}
	return domain.OutcomeSuccess, nil
}
