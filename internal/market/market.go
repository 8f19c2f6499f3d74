// Package market
package market

import (
	"context"
	"time"

	"github.com/sungli01/stock-bot-sub000/internal/bar"
)

// Provider is the market-data collaborator boundary: it hands the engine
// one day's bars, merged across tickers in chronological order, with the
// daily-open and cumulative-volume context already attached. Acquisition
// and caching of raw bars live behind this interface.
type Provider interface {
	TradingDays(ctx context.Context, from, to time.Time) ([]time.Time, error)
	DayBars(ctx context.Context, day time.Time) ([]bar.Bar, error)
}

// SessionClose returns the regular US session close for a date, in UTC.
// 20:00 during daylight-saving months, 21:00 otherwise.
func SessionClose(day time.Time) time.Time {
	d := day.UTC()
	hour := 21
	if m := d.Month(); m >= time.March && m <= time.October {
		hour = 20
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

// ForceCloseCutoff returns the moment after which still-open positions are
// liquidated: the configured margin before the session close, never later
// than 20:45 UTC.
func ForceCloseCutoff(day time.Time, beforeClose time.Duration) time.Time {
	d := day.UTC()
	cutoff := SessionClose(d).Add(-beforeClose)
	hardStop := time.Date(d.Year(), d.Month(), d.Day(), 20, 45, 0, 0, time.UTC)
	if hardStop.Before(cutoff) {
		return hardStop
	}
	return cutoff
}
