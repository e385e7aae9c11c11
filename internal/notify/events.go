package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

// Scanner event types, used both as Notify filter keys and in config.
const (
	EventStartup    = "startup"
	EventShutdown   = "shutdown"
	EventProfit     = "profit"
	EventNoProfit   = "no_profit"
	EventPurchase   = "purchase"
	EventCycleError = "cycle_error"
)

// FormatProfit renders a profitable-item alert.
func FormatProfit(item domain.Item, v domain.Verdict) (title, message string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", item.Name)
	fmt.Fprintf(&b, "Price: %.2f\n", v.ItemPrice)
	if v.PrismaticPrice > 0 {
		fmt.Fprintf(&b, "Prismatic: %s @ %.2f\n", item.PrismaticGem, v.PrismaticPrice)
	}
	if v.EtherealPrice > 0 {
		fmt.Fprintf(&b, "Ethereal: %s @ %.2f\n", item.EtherealGem, v.EtherealPrice)
	}
	fmt.Fprintf(&b, "Combined gem price: %.2f\n", v.CombinedGemPrice)
	fmt.Fprintf(&b, "Expected profit: %.2f\n", v.ExpectedProfit)
	fmt.Fprintf(&b, "Listing: %s", v.ItemID)
	return "Profitable item found", b.String()
}

// FormatNoProfit renders the end-of-cycle summary when nothing profitable
// was found in the window.
func FormatNoProfit(stats domain.CycleStats) (title, message string) {
	msg := fmt.Sprintf("No profitable items between %s and %s\nEvaluated: %d, skipped: %d, errors: %d",
		stats.Window.Start.Format(time.RFC3339),
		stats.Window.End.Format(time.RFC3339),
		stats.Evaluated, stats.Skipped, stats.Errors)
	return "Cycle complete", msg
}

// FormatPurchase renders a completed auto-buy confirmation.
func FormatPurchase(r domain.PurchaseReceipt) (title, message string) {
	msg := fmt.Sprintf("Listing: %s\nPaid: %.2f\nWallet balance: %.2f",
		r.ListingID, r.PricePaid, r.WalletBalance)
	return "Purchase completed", msg
}

// FormatCycleError renders a failed-cycle alert.
func FormatCycleError(err error) (title, message string) {
	return "Scan cycle failed", err.Error()
}
