package domain

import (
	"math"
	"time"
)

// BuyOrder is a single standing buy-order level: the bid price and the number
// of orders standing at exactly that price.
type BuyOrder struct {
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Gem is the stored buy-order state for one namespaced gem name.
//
// BuyOrders is strictly descending by price after normalisation, so
// BuyOrders[0] (when present) is the best standing bid — the only level the
// decision engine consumes. Quantities are marginal (per level), not
// cumulative; see ReduceCumulative.
type Gem struct {
	Name      string // qualified, e.g. "Prismatic: Red"
	BuyOrders []BuyOrder
	Depth     int // sum of positive quantities
	UpdatedAt time.Time
}

// BestBid returns the highest standing bid price, or 0 and false when the
// book is empty.
func (g Gem) BestBid() (float64, bool) {
	if len(g.BuyOrders) == 0 {
		return 0, false
	}
	return g.BuyOrders[0].Price, true
}

// ReduceCumulative converts a buy-order graph from cumulative to marginal
// quantities, in place on a copy.
//
// Steam's histogram reports, per price level sorted descending, the count of
// orders at that price *or better*. Walking from the last entry to the second
// and subtracting the previous cumulative count leaves the marginal depth at
// each level; index 0 is already marginal. Levels whose reduced quantity is
// not positive are kept in the list (ranking is preserved) but excluded from
// the returned depth.
func ReduceCumulative(levels []BuyOrder) ([]BuyOrder, int) {
	out := make([]BuyOrder, len(levels))
	copy(out, levels)

	for i := len(out) - 1; i >= 1; i-- {
		out[i].Quantity -= out[i-1].Quantity
	}

	depth := 0
	for _, lvl := range out {
		if lvl.Quantity > 0 {
			depth += lvl.Quantity
		}
	}
	return out, depth
}

// AccumulateMarginal is the inverse of ReduceCumulative: it rebuilds the
// cumulative graph from marginal levels. Used by tests to check the
// round-trip property and by the archiver to emit the raw shape.
func AccumulateMarginal(levels []BuyOrder) []BuyOrder {
	out := make([]BuyOrder, len(levels))
	copy(out, levels)
	for i := 1; i < len(out); i++ {
		out[i].Quantity += out[i-1].Quantity
	}
	return out
}

// SnapshotDrift measures how far a freshly fetched book diverges from the
// previous snapshot: the mean, over the top min(5, len(a), len(b)) levels, of
// the larger of the relative price delta and the relative quantity delta.
//
// A single noisy fetch can otherwise flap a profitability verdict; callers
// compare the drift against a configured threshold and keep the old snapshot
// when it is exceeded. Returns 0 when either book is empty (nothing to
// compare — the new snapshot always wins).
func SnapshotDrift(prev, next []BuyOrder) float64 {
	n := len(prev)
	if len(next) < n {
		n = len(next)
	}
	if n > 5 {
		n = 5
	}
	if n == 0 {
		return 0
	}

	var total float64
	for i := 0; i < n; i++ {
		dp := relDelta(prev[i].Price, next[i].Price)
		dq := relDelta(float64(prev[i].Quantity), float64(next[i].Quantity))
		total += math.Max(dp, dq)
	}
	return total / float64(n)
}

func relDelta(old, new float64) float64 {
	if old == 0 {
		if new == 0 {
			return 0
		}
		return 1
	}
	return math.Abs(new-old) / math.Abs(old)
}
