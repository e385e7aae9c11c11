// Package decision evaluates freshly fetched items against current gem buy
// orders and maintains the live verdict set.
package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
	"github.com/pudjojotaro/prismatic-parser/internal/notify"
)

// Notifier is the slice of the notification system the engine uses.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// EngineConfig holds the profitability parameters.
type EngineConfig struct {
	// Fee is the marketplace cut taken from gem resale proceeds.
	Fee float64
	// TargetProfit is the minimum expected profit for a profitable verdict.
	TargetProfit float64
}

// Engine runs one decision pass per completed fetch cycle: every item seen
// inside the fetch window is re-evaluated, profitable verdicts are upserted,
// and verdicts whose item is no longer profitable are deleted.
type Engine struct {
	items    domain.ItemStore
	gems     domain.GemStore
	verdicts domain.VerdictStore
	archiver domain.VerdictArchiver
	notifier Notifier
	cfg      EngineConfig
	logger   *slog.Logger
}

// NewEngine creates a decision engine. archiver and notifier may be nil.
func NewEngine(
	items domain.ItemStore,
	gems domain.GemStore,
	verdicts domain.VerdictStore,
	archiver domain.VerdictArchiver,
	notifier Notifier,
	cfg EngineConfig,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		items:    items,
		gems:     gems,
		verdicts: verdicts,
		archiver: archiver,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "decision")),
	}
}

// RunCycle evaluates every item observed within the fetch window. Per-item
// failures are counted and skipped; only a failure to list the items aborts
// the pass.
func (e *Engine) RunCycle(ctx context.Context, w domain.FetchWindow) (domain.CycleStats, error) {
	stats := domain.CycleStats{Window: w}

	items, err := e.items.ListInWindow(ctx, w)
	if err != nil {
		return stats, fmt.Errorf("decision: list items in window: %w", err)
	}

	now := time.Now().UTC()
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if !item.HasGems() {
			stats.Skipped++
			continue
		}

		if err := e.evaluateItem(ctx, item, now, &stats); err != nil {
			stats.Errors++
			e.logger.Error("item evaluation failed",
				slog.String("item_id", item.ID),
				slog.String("name", item.Name),
				slog.String("error", err.Error()),
			)
		}
	}

	e.logger.Info("decision pass complete",
		slog.Int("evaluated", stats.Evaluated),
		slog.Int("skipped", stats.Skipped),
		slog.Int("profitable", stats.Profitable),
		slog.Int("deleted", stats.Deleted),
		slog.Int("errors", stats.Errors),
	)
	return stats, nil
}

func (e *Engine) evaluateItem(ctx context.Context, item domain.Item, now time.Time, stats *domain.CycleStats) error {
	prismatic, err := e.lookupGem(ctx, item.PrismaticGem)
	if err != nil {
		return fmt.Errorf("lookup prismatic gem: %w", err)
	}
	ethereal, err := e.lookupGem(ctx, item.EtherealGem)
	if err != nil {
		return fmt.Errorf("lookup ethereal gem: %w", err)
	}

	verdict, ok := domain.Evaluate(item, prismatic, ethereal, e.cfg.Fee, e.cfg.TargetProfit, now)
	if !ok {
		// Gem data is missing or the book is empty. Leave any existing
		// verdict untouched; the next cycle may have fresher data.
		stats.Skipped++
		return nil
	}
	stats.Evaluated++

	if verdict.Profitable {
		if err := e.verdicts.Upsert(ctx, verdict); err != nil {
			return fmt.Errorf("upsert verdict: %w", err)
		}
		stats.Profitable++
		e.logger.Info("profitable listing",
			slog.String("item_id", item.ID),
			slog.String("name", item.Name),
			slog.Float64("price", verdict.ItemPrice),
			slog.Float64("profit", verdict.ExpectedProfit),
		)
		if e.notifier != nil {
			title, msg := notify.FormatProfit(item, verdict)
			if err := e.notifier.Notify(ctx, notify.EventProfit, title, msg); err != nil {
				e.logger.Warn("profit notification failed", slog.String("error", err.Error()))
			}
		}
		return nil
	}

	return e.retract(ctx, item.ID, stats)
}

// retract deletes a previously profitable verdict that no longer holds. The
// superseded verdict is archived first, but an archive failure never blocks
// the deletion; one live verdict per item matters more than the audit copy.
func (e *Engine) retract(ctx context.Context, itemID string, stats *domain.CycleStats) error {
	old, err := e.verdicts.GetByItemID(ctx, itemID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load verdict: %w", err)
	}
	if e.archiver != nil {
		if err := e.archiver.ArchiveVerdict(ctx, old); err != nil {
			e.logger.Warn("verdict archive failed",
				slog.String("item_id", itemID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := e.verdicts.Delete(ctx, itemID); err != nil {
		return fmt.Errorf("delete verdict: %w", err)
	}
	stats.Deleted++
	return nil
}

func (e *Engine) lookupGem(ctx context.Context, name string) (*domain.Gem, error) {
	if name == "" {
		return nil, nil
	}
	gem, err := e.gems.GetByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &gem, nil
}
