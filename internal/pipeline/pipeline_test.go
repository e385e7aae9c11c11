package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClient serves canned listing counts, pages, and histograms, with
// optional scripted failures keyed by entry name or gem id.
type fakeClient struct {
	mu sync.Mutex

	counts     map[string]int
	pages      map[string][]domain.Listing // key: name/start
	histograms map[int64]domain.Histogram

	countErrs map[string]int // remaining failures per entry
	pageErrs  map[string]int // remaining failures per name/start key
	histErrs  map[int64]int  // remaining failures per gem id
	histHard  map[int64]error

	pageCalls map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		counts:     map[string]int{},
		pages:      map[string][]domain.Listing{},
		histograms: map[int64]domain.Histogram{},
		countErrs:  map[string]int{},
		pageErrs:   map[string]int{},
		histErrs:   map[int64]int{},
		histHard:   map[int64]error{},
		pageCalls:  map[string]int{},
	}
}

func pageKey(name string, start int) string {
	return fmt.Sprintf("%s/%d", name, start)
}

func (c *fakeClient) GetListingCount(_ context.Context, name string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.countErrs[name] > 0 {
		c.countErrs[name]--
		return 0, errors.New("fake: count unavailable")
	}
	return c.counts[name], nil
}

func (c *fakeClient) GetListingPage(_ context.Context, name string, start, _ int) ([]domain.Listing, error) {
	key := pageKey(name, start)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pageCalls[key]++
	if c.pageErrs[key] > 0 {
		c.pageErrs[key]--
		return nil, errors.New("fake: page unavailable")
	}
	return c.pages[key], nil
}

func (c *fakeClient) GetOrderHistogram(_ context.Context, id int64) (domain.Histogram, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.histHard[id]; err != nil {
		return domain.Histogram{}, err
	}
	if c.histErrs[id] > 0 {
		c.histErrs[id]--
		return domain.Histogram{}, errors.New("fake: histogram unavailable")
	}
	return c.histograms[id], nil
}

func sharedClientFactory(c *fakeClient) ClientFactory {
	return func(domain.Proxy) (MarketClient, error) {
		return c, nil
	}
}

// fakeItemStore and friends record upserts under a mutex.
type fakeItemStore struct {
	mu    sync.Mutex
	items map[string]domain.Item
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{items: map[string]domain.Item{}}
}

func (s *fakeItemStore) Upsert(_ context.Context, item domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
	return nil
}

func (s *fakeItemStore) GetByID(_ context.Context, id string) (domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return domain.Item{}, domain.ErrNotFound
	}
	return item, nil
}

func (s *fakeItemStore) ListInWindow(_ context.Context, w domain.FetchWindow) ([]domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Item
	for _, item := range s.items {
		if w.Contains(item.ObservedAt) {
			out = append(out, item)
		}
	}
	return out, nil
}

type fakeListingStore struct {
	mu       sync.Mutex
	listings map[string]domain.Listing
}

func newFakeListingStore() *fakeListingStore {
	return &fakeListingStore{listings: map[string]domain.Listing{}}
}

func (s *fakeListingStore) Upsert(_ context.Context, l domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[l.ID] = l
	return nil
}

func (s *fakeListingStore) GetByID(_ context.Context, id string) (domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return l, nil
}

func (s *fakeListingStore) ListBefore(_ context.Context, before time.Time) ([]domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Listing
	for _, l := range s.listings {
		if l.FetchedAt.Before(before) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *fakeListingStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, l := range s.listings {
		if l.FetchedAt.Before(before) {
			delete(s.listings, id)
			n++
		}
	}
	return n, nil
}

type fakeGemStore struct {
	mu   sync.Mutex
	gems map[string]domain.Gem
}

func newFakeGemStore() *fakeGemStore {
	return &fakeGemStore{gems: map[string]domain.Gem{}}
}

func (s *fakeGemStore) Upsert(_ context.Context, g domain.Gem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gems[g.Name] = g
	return nil
}

func (s *fakeGemStore) GetByName(_ context.Context, name string) (domain.Gem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gems[name]
	if !ok {
		return domain.Gem{}, domain.ErrNotFound
	}
	return g, nil
}

type fakeSnapshotCache struct {
	mu    sync.Mutex
	snaps map[string][]domain.BuyOrder
}

func newFakeSnapshotCache() *fakeSnapshotCache {
	return &fakeSnapshotCache{snaps: map[string][]domain.BuyOrder{}}
}

func (c *fakeSnapshotCache) Set(_ context.Context, name string, orders []domain.BuyOrder) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[name] = orders
	return nil
}

func (c *fakeSnapshotCache) Get(_ context.Context, name string) ([]domain.BuyOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return snap, nil
}

// passExtractor turns every listing into an item one-to-one.
type passExtractor struct{}

func (passExtractor) Extract(l domain.Listing) (domain.Item, bool) {
	return domain.Item{ID: l.ID, Name: l.Name, Price: l.Price, ObservedAt: l.FetchedAt}, true
}
