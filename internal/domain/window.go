package domain

import "time"

// FetchWindow is the wall-clock span of one completed listing fetch cycle. It
// is the freshness predicate for items: only rows observed inside the latest
// window are trustworthy for decisioning. Windows are appended each cycle and
// the most recent one wins.
type FetchWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether ts falls inside the window, bounds inclusive.
func (w FetchWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && !ts.After(w.End)
}

// IsZero reports whether the window has never been recorded.
func (w FetchWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}
