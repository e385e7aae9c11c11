package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

type fakeLeaser struct {
	mu       sync.Mutex
	proxies  []domain.Proxy
	released [][]int64
}

func (l *fakeLeaser) LeaseAll(context.Context) ([]domain.Proxy, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.proxies, nil
}

func (l *fakeLeaser) Release(_ context.Context, ids []int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = append(l.released, ids)
	return nil
}

type fakeLocks struct {
	held bool
}

func (f *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}

type fakeWindowStore struct {
	mu    sync.Mutex
	saved []domain.FetchWindow
}

func (s *fakeWindowStore) Save(_ context.Context, w domain.FetchWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, w)
	return nil
}

func (s *fakeWindowStore) Latest(context.Context) (domain.FetchWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return domain.FetchWindow{}, domain.ErrNotFound
	}
	return s.saved[len(s.saved)-1], nil
}

type fakeDecision struct {
	mu      sync.Mutex
	windows []domain.FetchWindow
	stats   domain.CycleStats
}

func (d *fakeDecision) RunCycle(_ context.Context, w domain.FetchWindow) (domain.CycleStats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.windows = append(d.windows, w)
	return d.stats, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func testOrchestrator(t *testing.T, leaser *fakeLeaser, locks *fakeLocks, decision *fakeDecision, notifier *recordingNotifier) (*Orchestrator, *fakeWindowStore) {
	t.Helper()

	client := newFakeClient()
	client.counts["Item"] = 1
	client.pages[pageKey("Item", 0)] = makeListings("Item", 0, 1)
	client.histograms[1] = domain.Histogram{Levels: []domain.BuyOrder{{Price: 1.00, Quantity: 1}}}

	cat := domain.Catalogue{
		Items:     []domain.CatalogueEntry{{Name: "Item", Kind: domain.EntrySimple}},
		Prismatic: []domain.GemRef{{Name: "Rubiline", Kind: domain.GemPrismatic, ExternalID: 1}},
	}

	listings := NewListingFetchPool(sharedClientFactory(client), passExtractor{}, newFakeItemStore(), newFakeListingStore(), nil, fastListingConfig(), testLogger())
	gems := NewGemFetchPool(sharedClientFactory(client), newFakeGemStore(), newFakeSnapshotCache(), nil, fastGemConfig(), testLogger())
	windows := &fakeWindowStore{}

	cfg := OrchestratorConfig{
		CycleInterval: time.Millisecond,
		ErrorDelay:    time.Millisecond,
		MaxErrorDelay: 10 * time.Millisecond,
		GemProxyRatio: 0.5,
	}
	o := NewOrchestrator(cat, leaser, locks, listings, gems, windows, decision, nil, notifier, cfg, testLogger())
	return o, windows
}

func TestOrchestratorRunsFullCycle(t *testing.T) {
	leaser := &fakeLeaser{proxies: []domain.Proxy{{ID: 1}, {ID: 2}}}
	decision := &fakeDecision{stats: domain.CycleStats{Evaluated: 1, Profitable: 1}}
	notifier := &recordingNotifier{}
	o, windows := testOrchestrator(t, leaser, &fakeLocks{}, decision, notifier)

	require.NoError(t, o.runCycle(context.Background()))

	require.Len(t, windows.saved, 1)
	require.Len(t, decision.windows, 1)
	assert.Equal(t, windows.saved[0], decision.windows[0])
	require.Len(t, leaser.released, 1)
	assert.ElementsMatch(t, []int64{1, 2}, leaser.released[0])
	// Profitable cycle: no no_profit notification.
	assert.NotContains(t, notifier.events, "no_profit")
}

func TestOrchestratorNotifiesWhenNothingProfitable(t *testing.T) {
	leaser := &fakeLeaser{proxies: []domain.Proxy{{ID: 1}, {ID: 2}}}
	decision := &fakeDecision{stats: domain.CycleStats{Evaluated: 3}}
	notifier := &recordingNotifier{}
	o, _ := testOrchestrator(t, leaser, &fakeLocks{}, decision, notifier)

	require.NoError(t, o.runCycle(context.Background()))
	assert.Contains(t, notifier.events, "no_profit")
}

func TestOrchestratorStandsByWhenLockHeld(t *testing.T) {
	leaser := &fakeLeaser{proxies: []domain.Proxy{{ID: 1}, {ID: 2}}}
	decision := &fakeDecision{}
	notifier := &recordingNotifier{}
	o, windows := testOrchestrator(t, leaser, &fakeLocks{held: true}, decision, notifier)

	require.NoError(t, o.runCycle(context.Background()))
	assert.Empty(t, windows.saved)
	assert.Empty(t, leaser.released)
}

func TestOrchestratorWaitsForEnoughProxies(t *testing.T) {
	// A single proxy cannot be split across both pools; the orchestrator
	// must keep waiting until cancelled.
	leaser := &fakeLeaser{proxies: []domain.Proxy{{ID: 1}}}
	o, windows := testOrchestrator(t, leaser, &fakeLocks{}, &fakeDecision{}, &recordingNotifier{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := o.runCycle(ctx)
	assert.Error(t, err)
	assert.Empty(t, windows.saved)
}
