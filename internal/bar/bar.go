// Package bar
package bar

import (
	"errors"
	"time"
)

// Bar is a single per-minute OHLCV bar for one ticker, enriched with the
// daily context the entry checks need. Bars are produced by the market-data
// collaborator and are read-only inside the engine.
type Bar struct {
	Ticker      string    `json:"ticker"`
	Timestamp   time.Time `json:"timestamp"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	DailyOpen   float64   `json:"daily_open"`
	DailyVolume float64   `json:"daily_volume"` // cumulative shares traded today, this bar included
}

// Validate checks the fields every downstream computation depends on.
// A bar that fails here must stop the day's run with an explicit error:
// fabricating values would corrupt peak tracking and P&L.
func (b *Bar) Validate() error {
	if b.Ticker == "" {
		return errors.New("bar ticker is empty")
	}
	if b.Timestamp.IsZero() {
		return errors.New("bar timestamp is zero")
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return errors.New("bar prices must be positive")
	}
	if b.High < b.Low {
		return errors.New("bar high cannot be less than low")
	}
	if b.Volume < 0 {
		return errors.New("bar volume cannot be negative")
	}
	if b.DailyOpen <= 0 {
		return errors.New("bar daily open must be positive")
	}
	if b.DailyVolume < 0 {
		return errors.New("bar daily volume cannot be negative")
	}
	return nil
}

// Window is a coarser aggregation of a fixed count of consecutive bars.
type Window struct {
	Ticker      string
	WindowStart time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// combine folds a run of consecutive bars into one window.
// open = first bar's open, close = last bar's close, high/low = extrema,
// volume = sum.
func combine(bars []Bar) Window {
	w := Window{
		Ticker:      bars[0].Ticker,
		WindowStart: bars[0].Timestamp,
		Open:        bars[0].Open,
		High:        bars[0].High,
		Low:         bars[0].Low,
		Close:       bars[len(bars)-1].Close,
	}
	for _, b := range bars {
		if b.High > w.High {
			w.High = b.High
		}
		if b.Low < w.Low {
			w.Low = b.Low
		}
		w.Volume += b.Volume
	}
	return w
}
