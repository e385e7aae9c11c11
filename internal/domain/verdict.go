package domain

import "time"

// Verdict is the stored profitability conclusion for one item listing. At
// most one live verdict exists per item id: it is upserted while the item
// stays profitable and deleted the moment a re-evaluation finds it is not.
// No history is retained; superseded rows may be archived before deletion.
type Verdict struct {
	ItemID           string
	ItemPrice        float64
	PrismaticPrice   float64 // 0 when the item has no prismatic gem
	EtherealPrice    float64 // 0 when the item has no ethereal gem
	CombinedGemPrice float64
	ExpectedProfit   float64
	Profitable       bool
	EvaluatedAt      time.Time
}

// Evaluate joins an item with the current state of its gems and produces the
// profitability verdict.
//
// The expected proceeds of reselling the gems are the sum of the best bids,
// net of the marketplace fee; profit is proceeds minus the fee-inclusive
// listing price. The comparison against target is exact — no epsilon. The
// resale values involved are two decimal currency amounts well inside float64
// precision, and an epsilon would only blur the configured margin.
//
// ok is false when a required gem is absent or has an empty book; the caller
// must then skip the item entirely (no verdict is created or changed).
func Evaluate(item Item, prismatic, ethereal *Gem, fee, target float64, now time.Time) (v Verdict, ok bool) {
	v = Verdict{
		ItemID:      item.ID,
		ItemPrice:   item.Price,
		EvaluatedAt: now,
	}

	if item.PrismaticGem != "" {
		bid, has := bestBidOf(prismatic)
		if !has {
			return Verdict{}, false
		}
		v.PrismaticPrice = bid
	}
	if item.EtherealGem != "" {
		bid, has := bestBidOf(ethereal)
		if !has {
			return Verdict{}, false
		}
		v.EtherealPrice = bid
	}

	v.CombinedGemPrice = v.PrismaticPrice + v.EtherealPrice
	v.ExpectedProfit = v.CombinedGemPrice*(1-fee) - item.Price
	v.Profitable = v.ExpectedProfit >= target
	return v, true
}

func bestBidOf(g *Gem) (float64, bool) {
	if g == nil {
		return 0, false
	}
	return g.BestBid()
}

// CycleStats summarises one decision cycle.
type CycleStats struct {
	Window     FetchWindow
	Evaluated  int // items that reached Evaluate
	Skipped    int // items deferred for missing gem data
	Profitable int // verdicts upserted
	Deleted    int // stale verdicts removed
	Errors     int // per-item failures that were logged and skipped
}
