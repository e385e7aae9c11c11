// Package executor turns profitable verdicts into purchases. It is the only
// part of the scanner that spends money, so it is deliberately conservative:
// no retry on an explicit rejection, and a purchased verdict is removed
// immediately so it can never be bought twice.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
	"github.com/pudjojotaro/prismatic-parser/internal/notify"
)

// Purchaser executes a single market purchase. The production implementation
// is the session-authenticated Steam client.
type Purchaser interface {
	BuyListing(ctx context.Context, l domain.Listing) (domain.PurchaseReceipt, error)
}

// Notifier is the slice of the notification system the executor uses.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config controls purchase retries.
type Config struct {
	MaxRetries  int
	BackoffBase time.Duration
}

// Executor buys every currently profitable verdict.
type Executor struct {
	purchaser Purchaser
	verdicts  domain.VerdictStore
	listings  domain.ListingStore
	notifier  Notifier
	cfg       Config
	logger    *slog.Logger
}

// New creates an executor. notifier may be nil.
func New(
	purchaser Purchaser,
	verdicts domain.VerdictStore,
	listings domain.ListingStore,
	notifier Notifier,
	cfg Config,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		purchaser: purchaser,
		verdicts:  verdicts,
		listings:  listings,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "executor")),
	}
}

// Run attempts to buy all profitable verdicts. Failures on one verdict do
// not stop the rest; the number of completed purchases is returned.
func (e *Executor) Run(ctx context.Context) (int, error) {
	verdicts, err := e.verdicts.ListProfitable(ctx)
	if err != nil {
		return 0, fmt.Errorf("executor: list profitable verdicts: %w", err)
	}

	bought := 0
	for _, v := range verdicts {
		if err := ctx.Err(); err != nil {
			return bought, err
		}
		receipt, err := e.buyOne(ctx, v)
		if err != nil {
			e.logger.Error("purchase failed",
				slog.String("item_id", v.ItemID),
				slog.Float64("expected_profit", v.ExpectedProfit),
				slog.String("error", err.Error()),
			)
			continue
		}
		bought++
		e.logger.Info("purchase complete",
			slog.String("item_id", v.ItemID),
			slog.Float64("paid", receipt.PricePaid),
			slog.Float64("wallet", receipt.WalletBalance),
		)
		if e.notifier != nil {
			title, msg := notify.FormatPurchase(receipt)
			if err := e.notifier.Notify(ctx, notify.EventPurchase, title, msg); err != nil {
				e.logger.Warn("purchase notification failed", slog.String("error", err.Error()))
			}
		}
	}
	return bought, nil
}

// buyOne resolves the raw listing behind a verdict and executes the buy with
// bounded backoff. A rejection from the marketplace is terminal: the listing
// is gone or the wallet cannot cover it, and repeating the request would not
// change either. The verdict is deleted on success and on rejection.
func (e *Executor) buyOne(ctx context.Context, v domain.Verdict) (domain.PurchaseReceipt, error) {
	listing, err := e.listings.GetByID(ctx, v.ItemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The raw listing was archived or never stored; drop the
			// verdict rather than retrying it every cycle.
			if derr := e.verdicts.Delete(ctx, v.ItemID); derr != nil {
				return domain.PurchaseReceipt{}, derr
			}
		}
		return domain.PurchaseReceipt{}, fmt.Errorf("load listing: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := e.cfg.BackoffBase << (attempt - 1)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return domain.PurchaseReceipt{}, ctx.Err()
			case <-timer.C:
			}
		}

		receipt, err := e.purchaser.BuyListing(ctx, listing)
		if err == nil {
			if derr := e.verdicts.Delete(ctx, v.ItemID); derr != nil {
				e.logger.Warn("verdict cleanup failed after purchase",
					slog.String("item_id", v.ItemID),
					slog.String("error", derr.Error()),
				)
			}
			return receipt, nil
		}
		if errors.Is(err, domain.ErrPurchaseRejected) {
			if derr := e.verdicts.Delete(ctx, v.ItemID); derr != nil {
				e.logger.Warn("verdict cleanup failed after rejection",
					slog.String("item_id", v.ItemID),
					slog.String("error", derr.Error()),
				)
			}
			return domain.PurchaseReceipt{}, err
		}
		lastErr = err
	}
	return domain.PurchaseReceipt{}, fmt.Errorf("buy listing after %d attempts: %w", e.cfg.MaxRetries, lastErr)
}
