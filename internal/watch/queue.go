// Package watch
package watch

import (
	"time"

	"github.com/sungli01/stock-bot-sub000/internal/position"
)

// Entry is one queued spike candidate: the price and time at which the
// spike was flagged, plus the tier and volume context the entry trigger
// needs later.
type Entry struct {
	Ticker           string
	QueuedPrice      float64
	QueuedTime       time.Time
	Tier             position.Tier
	VolumeRatioPct   float64
	CumulativeVolume float64 // daily volume at queue time, for the liquidity bound
}

// Queue holds at most one live Entry per ticker. Entries expire after a
// fixed window; Expire must run on every incoming bar, not only when a new
// spike fires, or stale entries would linger between sparse events.
type Queue struct {
	expireAfter time.Duration
	entries     map[string]Entry
}

// NewQueue creates a queue with the given expiry window.
func NewQueue(expireAfter time.Duration) *Queue {
	return &Queue{
		expireAfter: expireAfter,
		entries:     make(map[string]Entry),
	}
}

// Add queues an entry for its ticker. It is a no-op when the ticker already
// has a live entry.
func (q *Queue) Add(e Entry) bool {
	if _, exists := q.entries[e.Ticker]; exists {
		return false
	}
	q.entries[e.Ticker] = e
	return true
}

// Get returns the live entry for a ticker, if any.
func (q *Queue) Get(ticker string) (Entry, bool) {
	e, ok := q.entries[ticker]
	return e, ok
}

// Remove drops the entry for a ticker.
func (q *Queue) Remove(ticker string) {
	delete(q.entries, ticker)
}

// Expire removes every entry older than the expiry window and returns the
// tickers dropped.
func (q *Queue) Expire(now time.Time) []string {
	var expired []string
	for ticker, e := range q.entries {
		if now.Sub(e.QueuedTime) > q.expireAfter {
			expired = append(expired, ticker)
		}
	}
	for _, ticker := range expired {
		delete(q.entries, ticker)
	}
	return expired
}

// Len returns the number of live entries.
func (q *Queue) Len() int { return len(q.entries) }
