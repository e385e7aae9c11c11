package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

func fastListingConfig() ListingPoolConfig {
	return ListingPoolConfig{
		PageSize:         12,
		MaxRetries:       3,
		BackoffBase:      time.Millisecond,
		PageRetryDelay:   time.Millisecond,
		BatchDelay:       time.Millisecond,
		ListingsPerBatch: 1000,
	}
}

func makeListings(name string, start, n int) []domain.Listing {
	out := make([]domain.Listing, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Listing{
			ID:        pageKey(name, start+i),
			Name:      name,
			Price:     1.50,
			FetchedAt: time.Now().UTC(),
		})
	}
	return out
}

func TestListingPoolFetchesAllPages(t *testing.T) {
	client := newFakeClient()
	client.counts["Inscribed Gem Item"] = 25 // pages at 0, 12, 24
	client.counts["Unusual Courier"] = 12    // single page
	client.pages[pageKey("Inscribed Gem Item", 0)] = makeListings("Inscribed Gem Item", 0, 12)
	client.pages[pageKey("Inscribed Gem Item", 12)] = makeListings("Inscribed Gem Item", 12, 12)
	client.pages[pageKey("Inscribed Gem Item", 24)] = makeListings("Inscribed Gem Item", 24, 1)
	client.pages[pageKey("Unusual Courier", 0)] = makeListings("Unusual Courier", 0, 12)

	items := newFakeItemStore()
	listings := newFakeListingStore()
	pool := NewListingFetchPool(sharedClientFactory(client), passExtractor{}, items, listings, nil, fastListingConfig(), testLogger())

	entries := []domain.CatalogueEntry{
		{Name: "Inscribed Gem Item", Kind: domain.EntrySimple},
		{Name: "Unusual Courier", Kind: domain.EntryCourier},
	}
	proxies := []domain.Proxy{{ID: 1}, {ID: 2}}

	before := time.Now().UTC()
	window, err := pool.Run(context.Background(), entries, proxies)
	require.NoError(t, err)

	assert.Len(t, listings.listings, 37)
	assert.Len(t, items.items, 37)
	assert.False(t, window.Start.Before(before.Add(-time.Second)))
	assert.False(t, window.End.Before(window.Start))
}

func TestListingPoolNoProxies(t *testing.T) {
	pool := NewListingFetchPool(sharedClientFactory(newFakeClient()), passExtractor{}, newFakeItemStore(), newFakeListingStore(), nil, fastListingConfig(), testLogger())

	_, err := pool.Run(context.Background(), []domain.CatalogueEntry{{Name: "x"}}, nil)
	assert.ErrorIs(t, err, domain.ErrNoProxies)
}

func TestListingPoolRetriesTransientPage(t *testing.T) {
	client := newFakeClient()
	client.counts["Item"] = 1
	client.pages[pageKey("Item", 0)] = makeListings("Item", 0, 1)
	client.pageErrs[pageKey("Item", 0)] = 2 // fails twice, then serves

	items := newFakeItemStore()
	pool := NewListingFetchPool(sharedClientFactory(client), passExtractor{}, items, newFakeListingStore(), nil, fastListingConfig(), testLogger())

	_, err := pool.Run(context.Background(), []domain.CatalogueEntry{{Name: "Item"}}, []domain.Proxy{{ID: 1}})
	require.NoError(t, err)
	assert.Len(t, items.items, 1)
	assert.Equal(t, 3, client.pageCalls[pageKey("Item", 0)])
}

func TestListingPoolRequeueConservation(t *testing.T) {
	// Every page fails a few times before serving. All tasks must still be
	// completed exactly once and the pool must terminate cleanly.
	client := newFakeClient()
	entries := []domain.CatalogueEntry{
		{Name: "A"}, {Name: "B"}, {Name: "C"}, {Name: "D"},
	}
	for _, e := range entries {
		client.counts[e.Name] = 24 // pages at 0 and 12
		for _, start := range []int{0, 12} {
			client.pages[pageKey(e.Name, start)] = makeListings(e.Name, start, 12)
			client.pageErrs[pageKey(e.Name, start)] = 2
		}
	}

	items := newFakeItemStore()
	listings := newFakeListingStore()
	pool := NewListingFetchPool(sharedClientFactory(client), passExtractor{}, items, listings, nil, fastListingConfig(), testLogger())

	done := make(chan error, 1)
	go func() {
		_, err := pool.Run(context.Background(), entries, []domain.Proxy{{ID: 1}, {ID: 2}, {ID: 3}})
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not terminate")
	}

	assert.Len(t, listings.listings, 4*24)
	for _, e := range entries {
		for _, start := range []int{0, 12} {
			// Two failures then one success per page.
			assert.Equal(t, 3, client.pageCalls[pageKey(e.Name, start)])
		}
	}
}

func TestListingPoolSkipsEntryWhenDiscoveryFails(t *testing.T) {
	client := newFakeClient()
	client.counts["Reachable"] = 1
	client.pages[pageKey("Reachable", 0)] = makeListings("Reachable", 0, 1)
	client.countErrs["Unreachable"] = 1 << 20

	items := newFakeItemStore()
	pool := NewListingFetchPool(sharedClientFactory(client), passExtractor{}, items, newFakeListingStore(), nil, fastListingConfig(), testLogger())

	entries := []domain.CatalogueEntry{{Name: "Reachable"}, {Name: "Unreachable"}}
	_, err := pool.Run(context.Background(), entries, []domain.Proxy{{ID: 1}})
	require.NoError(t, err)
	assert.Len(t, items.items, 1)
}

func TestListingPoolCancellation(t *testing.T) {
	client := newFakeClient()
	client.counts["Item"] = 1
	client.pageErrs[pageKey("Item", 0)] = 1 << 20

	cfg := fastListingConfig()
	cfg.PageRetryDelay = time.Hour // cancellation must cut the retry sleep short

	pool := NewListingFetchPool(sharedClientFactory(client), passExtractor{}, newFakeItemStore(), newFakeListingStore(), nil, cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := pool.Run(ctx, []domain.CatalogueEntry{{Name: "Item"}}, []domain.Proxy{{ID: 1}})
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop on cancellation")
	}
}
