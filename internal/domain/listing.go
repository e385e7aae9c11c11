package domain

import "time"

// Listing is a normalised market listing page entry as returned by the
// marketplace client. Adapting Steam's heterogeneous render payloads into
// this one shape is the client's responsibility; nothing downstream ever
// touches the raw JSON except to persist it for the purchase path.
type Listing struct {
	ID   string
	Name string // market hash name
	// Price is converted_price + converted_fee in currency units. The cent
	// fields preserve the split the purchase endpoint wants back verbatim.
	Price         float64
	SubtotalCents int64
	FeeCents      int64
	GemHTML       []string // description blobs that mention gems, raw HTML
	Raw           []byte   // original listinginfo JSON
	FetchedAt     time.Time
}

// Histogram is a normalised item order histogram: the cumulative buy-order
// graph sorted strictly descending by price, as Steam reports it. Quantities
// are cumulative until passed through ReduceCumulative.
type Histogram struct {
	Levels []BuyOrder
}

// PurchaseReceipt is the confirmation returned by a successful buy.
type PurchaseReceipt struct {
	ListingID     string
	PricePaid     float64
	WalletBalance float64
	CompletedAt   time.Time
}
