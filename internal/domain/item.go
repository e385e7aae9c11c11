package domain

import "time"

// Item is one observed market listing of a catalogue entry. Rows are keyed by
// the opaque Steam listing id and upserted on every observation; stale
// listings are never deleted, they simply fall outside the current fetch
// window and stop being considered.
type Item struct {
	ID           string
	Name         string // catalogue entry (market hash name)
	Price        float64 // fee-inclusive, wallet currency units
	PrismaticGem string  // bare gem name, empty when absent
	EtherealGem  string  // bare gem name, empty when absent
	ObservedAt   time.Time
}

// HasGems reports whether the listing carries at least one recognised gem.
// Listings without any recognised gem are discarded at extraction time and
// never reach the store.
func (i Item) HasGems() bool {
	return i.PrismaticGem != "" || i.EtherealGem != ""
}
