package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

// rateKey is the shared sliding-window budget all Steam requests draw from.
const rateKey = "steam"

// ListingPoolConfig controls pacing and retries of the listing fetch pool.
type ListingPoolConfig struct {
	PageSize         int
	MaxRetries       int
	BackoffBase      time.Duration
	PageRetryDelay   time.Duration
	BatchDelay       time.Duration
	ListingsPerBatch int
}

// ListingFetchPool crawls all listings of the catalogue entries through a set
// of leased proxies, in two phases: discovery probes first count the listings
// per entry, then page tasks are spread across workers until every page has
// been fetched, extracted, and persisted.
type ListingFetchPool struct {
	factory   ClientFactory
	extractor ItemExtractor
	items     domain.ItemStore
	listings  domain.ListingStore
	limiter   domain.RateLimiter
	cfg       ListingPoolConfig
	logger    *slog.Logger
}

// NewListingFetchPool creates a listing fetch pool.
func NewListingFetchPool(
	factory ClientFactory,
	extractor ItemExtractor,
	items domain.ItemStore,
	listings domain.ListingStore,
	limiter domain.RateLimiter,
	cfg ListingPoolConfig,
	logger *slog.Logger,
) *ListingFetchPool {
	return &ListingFetchPool{
		factory:   factory,
		extractor: extractor,
		items:     items,
		listings:  listings,
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "listing_pool")),
	}
}

// pageTask is one listing page to fetch.
type pageTask struct {
	entry domain.CatalogueEntry
	start int
}

// listingMsg is the tagged queue element: either a task or a stop sentinel.
// Sentinels are only emitted once every enqueued task has been completed, so
// a requeued task can never be stranded behind them.
type listingMsg struct {
	task pageTask
	stop bool
}

// Run executes one full listing fetch cycle over the given catalogue entries
// and returns the fetch window spanning it.
func (p *ListingFetchPool) Run(ctx context.Context, entries []domain.CatalogueEntry, proxies []domain.Proxy) (domain.FetchWindow, error) {
	if len(proxies) == 0 {
		return domain.FetchWindow{}, domain.ErrNoProxies
	}

	start := time.Now().UTC()

	tasks, err := p.discover(ctx, entries, proxies)
	if err != nil {
		return domain.FetchWindow{}, fmt.Errorf("pipeline: listing discovery: %w", err)
	}
	p.logger.Info("discovery complete",
		slog.Int("entries", len(entries)),
		slog.Int("pages", len(tasks)),
	)

	if err := p.fetchPages(ctx, tasks, proxies); err != nil {
		return domain.FetchWindow{}, fmt.Errorf("pipeline: listing pages: %w", err)
	}

	return domain.FetchWindow{Start: start, End: time.Now().UTC()}, nil
}

// discover probes the total listing count of every entry and expands it into
// page tasks. Entries whose probe keeps failing are logged and skipped; one
// unreachable item must not kill the cycle.
func (p *ListingFetchPool) discover(ctx context.Context, entries []domain.CatalogueEntry, proxies []domain.Proxy) ([]pageTask, error) {
	names := make(chan domain.CatalogueEntry, len(entries))
	for _, e := range entries {
		names <- e
	}
	close(names)

	var mu sync.Mutex
	var tasks []pageTask

	g, ctx := errgroup.WithContext(ctx)
	for _, proxy := range proxies {
		proxy := proxy
		g.Go(func() error {
			client, err := p.factory(proxy)
			if err != nil {
				return fmt.Errorf("build client for proxy %d: %w", proxy.ID, err)
			}

			for entry := range names {
				total, err := p.countWithRetry(ctx, client, entry.Name)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					p.logger.Warn("discovery probe abandoned",
						slog.String("entry", entry.Name),
						slog.String("error", err.Error()),
					)
					continue
				}

				mu.Lock()
				for s := 0; s < total; s += p.cfg.PageSize {
					tasks = append(tasks, pageTask{entry: entry, start: s})
				}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (p *ListingFetchPool) countWithRetry(ctx context.Context, client MarketClient, name string) (int, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if err := p.wait(ctx); err != nil {
			return 0, err
		}
		total, err := client.GetListingCount(ctx, name)
		if err == nil {
			return total, nil
		}
		lastErr = err
		if err := sleepCtx(ctx, p.cfg.BackoffBase<<attempt); err != nil {
			return 0, err
		}
	}
	return 0, lastErr
}

// fetchPages drains the page task queue with one worker per proxy. A counter
// of unfinished tasks gates the stop sentinels: the worker that completes the
// last task emits one sentinel per worker. A requeue does not decrement the
// counter, so no task can be lost to an early shutdown.
func (p *ListingFetchPool) fetchPages(ctx context.Context, tasks []pageTask, proxies []domain.Proxy) error {
	if len(tasks) == 0 {
		return nil
	}

	// Each task exists exactly once, in the queue or held by a worker, so
	// task slots plus one sentinel per worker bounds the channel.
	queue := make(chan listingMsg, len(tasks)+len(proxies))
	var remaining atomic.Int64
	remaining.Store(int64(len(tasks)))
	for _, t := range tasks {
		queue <- listingMsg{task: t}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, proxy := range proxies {
		proxy := proxy
		g.Go(func() error {
			client, err := p.factory(proxy)
			if err != nil {
				return fmt.Errorf("build client for proxy %d: %w", proxy.ID, err)
			}
			return p.pageWorker(ctx, client, queue, &remaining, len(proxies))
		})
	}
	return g.Wait()
}

// pageWorker processes page tasks until the stop sentinel. Transient fetch
// errors push the same task back for any worker to pick up; there is no
// attempt bound in the page phase, only process-level cancellation.
func (p *ListingFetchPool) pageWorker(ctx context.Context, client MarketClient, queue chan listingMsg, remaining *atomic.Int64, workers int) error {
	fetched := 0

	for {
		var msg listingMsg
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg = <-queue:
		}
		if msg.stop {
			return nil
		}

		task := msg.task
		err := p.fetchOnePage(ctx, client, task, &fetched)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, domain.ErrMalformedListing):
			// The page renders but its payload is broken; retrying
			// through another proxy will not change that.
			p.logger.Warn("malformed page skipped",
				slog.String("entry", task.entry.Name),
				slog.Int("start", task.start),
				slog.String("error", err.Error()),
			)
		default:
			p.logger.Warn("page task requeued",
				slog.String("entry", task.entry.Name),
				slog.Int("start", task.start),
				slog.String("error", err.Error()),
			)
			if err := sleepCtx(ctx, p.cfg.PageRetryDelay); err != nil {
				return err
			}
			queue <- listingMsg{task: task}
			continue
		}

		if remaining.Add(-1) == 0 {
			for i := 0; i < workers; i++ {
				queue <- listingMsg{stop: true}
			}
		}
	}
}

// fetchOnePage fetches, extracts, and persists one page of listings, then
// applies the batch pause when the worker's running count crosses the batch
// size.
func (p *ListingFetchPool) fetchOnePage(ctx context.Context, client MarketClient, task pageTask, fetched *int) error {
	if err := p.wait(ctx); err != nil {
		return err
	}

	listings, err := client.GetListingPage(ctx, task.entry.Name, task.start, p.cfg.PageSize)
	if err != nil {
		return err
	}

	for _, l := range listings {
		if err := p.listings.Upsert(ctx, l); err != nil {
			return err
		}
		item, ok := p.extractor.Extract(l)
		if !ok {
			continue
		}
		if item.ObservedAt.IsZero() {
			p.logger.Warn("item missing observation time, using now", slog.String("item_id", item.ID))
			item.ObservedAt = time.Now().UTC()
		}
		if err := p.items.Upsert(ctx, item); err != nil {
			return err
		}
	}

	*fetched += len(listings)
	if p.cfg.ListingsPerBatch > 0 && *fetched >= p.cfg.ListingsPerBatch {
		*fetched = 0
		p.logger.Debug("batch pause", slog.Duration("delay", p.cfg.BatchDelay))
		if err := sleepCtx(ctx, p.cfg.BatchDelay); err != nil {
			return err
		}
	}
	return nil
}

func (p *ListingFetchPool) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx, rateKey)
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
