// Package pipeline contains the proxy-rotated worker pools that pull listing
// pages and gem order histograms from the marketplace, plus the orchestrator
// that sequences them into scan cycles.
package pipeline

import (
	"context"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

// MarketClient is the slice of the marketplace client the worker pools
// consume. Each worker holds its own client, bound to one leased proxy.
type MarketClient interface {
	GetListingCount(ctx context.Context, marketHashName string) (int, error)
	GetListingPage(ctx context.Context, marketHashName string, start, count int) ([]domain.Listing, error)
	GetOrderHistogram(ctx context.Context, itemNameID int64) (domain.Histogram, error)
}

// ClientFactory builds a proxy-bound market client for one worker.
type ClientFactory func(p domain.Proxy) (MarketClient, error)

// ItemExtractor turns a raw listing into a scanner item, or reports that the
// listing carries nothing of interest.
type ItemExtractor interface {
	Extract(l domain.Listing) (domain.Item, bool)
}

// ProxyLeaser is the slice of the rental provider the orchestrator needs.
type ProxyLeaser interface {
	LeaseAll(ctx context.Context) ([]domain.Proxy, error)
	Release(ctx context.Context, ids []int64) error
}

// Notifier is the slice of the notification system the pipeline uses.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// DecisionRunner evaluates all fresh items once a fetch cycle has completed.
type DecisionRunner interface {
	RunCycle(ctx context.Context, w domain.FetchWindow) (domain.CycleStats, error)
}
