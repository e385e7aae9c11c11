package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

type stubVerdictStore struct {
	verdicts map[string]domain.Verdict
	deleted  []string
}

func newStubVerdictStore(verdicts ...domain.Verdict) *stubVerdictStore {
	s := &stubVerdictStore{verdicts: map[string]domain.Verdict{}}
	for _, v := range verdicts {
		s.verdicts[v.ItemID] = v
	}
	return s
}

func (s *stubVerdictStore) Upsert(_ context.Context, v domain.Verdict) error {
	s.verdicts[v.ItemID] = v
	return nil
}

func (s *stubVerdictStore) Delete(_ context.Context, itemID string) error {
	delete(s.verdicts, itemID)
	s.deleted = append(s.deleted, itemID)
	return nil
}

func (s *stubVerdictStore) GetByItemID(_ context.Context, itemID string) (domain.Verdict, error) {
	v, ok := s.verdicts[itemID]
	if !ok {
		return domain.Verdict{}, domain.ErrNotFound
	}
	return v, nil
}

func (s *stubVerdictStore) ListProfitable(context.Context) ([]domain.Verdict, error) {
	var out []domain.Verdict
	for _, v := range s.verdicts {
		if v.Profitable {
			out = append(out, v)
		}
	}
	return out, nil
}

type stubListingStore struct {
	listings map[string]domain.Listing
}

func (s *stubListingStore) Upsert(_ context.Context, l domain.Listing) error {
	s.listings[l.ID] = l
	return nil
}

func (s *stubListingStore) GetByID(_ context.Context, id string) (domain.Listing, error) {
	l, ok := s.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return l, nil
}

func (s *stubListingStore) ListBefore(context.Context, time.Time) ([]domain.Listing, error) {
	return nil, nil
}

func (s *stubListingStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type scriptedPurchaser struct {
	errs  []error // consumed in order; nil means success
	calls int
}

func (p *scriptedPurchaser) BuyListing(_ context.Context, l domain.Listing) (domain.PurchaseReceipt, error) {
	idx := p.calls
	p.calls++
	if idx < len(p.errs) && p.errs[idx] != nil {
		return domain.PurchaseReceipt{}, p.errs[idx]
	}
	return domain.PurchaseReceipt{
		ListingID:     l.ID,
		PricePaid:     l.Price,
		WalletBalance: 100,
		CompletedAt:   time.Now().UTC(),
	}, nil
}

type captureNotifier struct {
	events []string
}

func (n *captureNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.events = append(n.events, event)
	return nil
}

func testConfig() Config {
	return Config{MaxRetries: 3, BackoffBase: time.Millisecond}
}

func TestRunBuysProfitableVerdict(t *testing.T) {
	verdicts := newStubVerdictStore(domain.Verdict{ItemID: "l1", Profitable: true, ExpectedProfit: 2})
	listings := &stubListingStore{listings: map[string]domain.Listing{
		"l1": {ID: "l1", Price: 9.77, SubtotalCents: 850, FeeCents: 127},
	}}
	purchaser := &scriptedPurchaser{}
	notifier := &captureNotifier{}

	ex := New(purchaser, verdicts, listings, notifier, testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	bought, err := ex.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, bought)
	assert.Equal(t, 1, purchaser.calls)
	assert.Contains(t, verdicts.deleted, "l1")
	assert.Contains(t, notifier.events, "purchase")
}

func TestRunRetriesTransientFailure(t *testing.T) {
	verdicts := newStubVerdictStore(domain.Verdict{ItemID: "l1", Profitable: true})
	listings := &stubListingStore{listings: map[string]domain.Listing{
		"l1": {ID: "l1", Price: 1},
	}}
	purchaser := &scriptedPurchaser{errs: []error{
		errors.New("timeout"),
		errors.New("timeout"),
		nil,
	}}

	ex := New(purchaser, verdicts, listings, nil, testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	bought, err := ex.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, bought)
	assert.Equal(t, 3, purchaser.calls)
}

func TestRunDoesNotRetryRejection(t *testing.T) {
	verdicts := newStubVerdictStore(domain.Verdict{ItemID: "l1", Profitable: true})
	listings := &stubListingStore{listings: map[string]domain.Listing{
		"l1": {ID: "l1", Price: 1},
	}}
	purchaser := &scriptedPurchaser{errs: []error{domain.ErrPurchaseRejected}}
	notifier := &captureNotifier{}

	ex := New(purchaser, verdicts, listings, notifier, testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	bought, err := ex.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, bought)
	assert.Equal(t, 1, purchaser.calls)
	// The rejected verdict is removed so it is not re-attempted next cycle.
	assert.Contains(t, verdicts.deleted, "l1")
	assert.NotContains(t, notifier.events, "purchase")
}

func TestRunDropsVerdictWithoutListing(t *testing.T) {
	verdicts := newStubVerdictStore(domain.Verdict{ItemID: "gone", Profitable: true})
	listings := &stubListingStore{listings: map[string]domain.Listing{}}
	purchaser := &scriptedPurchaser{}

	ex := New(purchaser, verdicts, listings, nil, testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	bought, err := ex.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, bought)
	assert.Equal(t, 0, purchaser.calls)
	assert.Contains(t, verdicts.deleted, "gone")
}

func TestRunContinuesPastFailingVerdict(t *testing.T) {
	verdicts := newStubVerdictStore(
		domain.Verdict{ItemID: "a", Profitable: true},
		domain.Verdict{ItemID: "b", Profitable: true},
	)
	// Only one listing exists; the other verdict fails and is dropped.
	listings := &stubListingStore{listings: map[string]domain.Listing{
		"a": {ID: "a", Price: 1},
	}}
	purchaser := &scriptedPurchaser{}

	ex := New(purchaser, verdicts, listings, nil, testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	bought, err := ex.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, bought)
}
