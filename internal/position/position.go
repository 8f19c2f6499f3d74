// Package position
package position

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the ordinal of an entry on a ticker within one trading day.
// Carrying it explicitly (instead of is_second/is_third flags) keeps every
// tier-dependent lookup in one table.
type Tier int

const (
	TierFirst Tier = iota + 1
	TierSecond
	TierThird
)

func (t Tier) String() string {
	switch t {
	case TierFirst:
		return "1st"
	case TierSecond:
		return "2nd"
	case TierThird:
		return "3rd"
	}
	return "unknown"
}

// Additional reports whether this is a re-entry after an earlier position on
// the same ticker already closed today.
func (t Tier) Additional() bool { return t > TierFirst }

// ExitReason identifies which exit rule closed a position.
type ExitReason string

const (
	ExitStopLoss      ExitReason = "STOP_LOSS"
	ExitTimeLimit     ExitReason = "TIME_LIMIT"
	ExitTrailing      ExitReason = "TRAILING"
	ExitForceCloseEOD ExitReason = "FORCE_CLOSE_EOD"
)

// Position is one open trade. PeakPrice is monotonically non-decreasing from
// EntryPrice for the life of the position; TrailingActive latches on once the
// peak profit reaches the tier's activation threshold.
type Position struct {
	Ticker           string
	Tier             Tier
	EntryPrice       float64
	QueuedPrice      float64
	EntryTime        time.Time
	CapitalCommitted float64
	BuyCommission    float64

	PeakPrice      float64
	TrailingActive bool
}

// New opens a position at the given fill price.
func New(ticker string, tier Tier, entryPrice, queuedPrice, capital, buyCommission float64, entryTime time.Time) *Position {
	return &Position{
		Ticker:           ticker,
		Tier:             tier,
		EntryPrice:       entryPrice,
		QueuedPrice:      queuedPrice,
		EntryTime:        entryTime,
		CapitalCommitted: capital,
		BuyCommission:    buyCommission,
		PeakPrice:        entryPrice,
	}
}

// Elapsed returns the holding duration as of now.
func (p *Position) Elapsed(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// PnlPct returns percent profit at a price.
func (p *Position) PnlPct(price float64) float64 {
	return (price/p.EntryPrice - 1) * 100
}

// PeakPct returns percent profit at the recorded peak.
func (p *Position) PeakPct() float64 {
	return p.PnlPct(p.PeakPrice)
}

// UpdatePeak raises the peak to the bar's high when exceeded. The high, not
// the close, is used so trailing decisions see the best intrabar price
// actually reached.
func (p *Position) UpdatePeak(high float64) {
	if high > p.PeakPrice {
		p.PeakPrice = high
	}
}

// Trade is the immutable record a closed position converts into.
type Trade struct {
	ID          string        `json:"id"`
	Ticker      string        `json:"ticker"`
	Tier        Tier          `json:"tier"`
	EntryPrice  float64       `json:"entry_price"`
	ExitPrice   float64       `json:"exit_price"`
	EntryTime   time.Time     `json:"entry_time"`
	ExitTime    time.Time     `json:"exit_time"`
	HoldingTime time.Duration `json:"holding_time"`
	Invested    float64       `json:"invested"`
	Commission  float64       `json:"commission"`
	RealizedPnl float64       `json:"realized_pnl"`
	PnlPct      float64       `json:"pnl_pct"`
	PeakPct     float64       `json:"peak_pct"`
	ExitReason  ExitReason    `json:"exit_reason"`
}

// tradeNamespace scopes the name-based trade IDs below.
var tradeNamespace = uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")

// tradeID derives the trade's ID from its identity (ticker, tier, entry
// time). A ticker opens at most one position per tier per day, so the triple
// is unique, and replaying the same bars reproduces the same IDs.
func (p *Position) tradeID() string {
	name := p.Ticker + "|" + p.Tier.String() + "|" + p.EntryTime.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(tradeNamespace, []byte(name)).String()
}

// Close converts the position into a Trade at the given fill price.
// Commission is charged on both the buy and the sell notional.
func (p *Position) Close(exitPrice float64, exitTime time.Time, reason ExitReason, commissionPct float64) Trade {
	sellCommission := p.CapitalCommitted * (exitPrice / p.EntryPrice) * commissionPct / 100
	commission := p.BuyCommission + sellCommission
	pnl := p.CapitalCommitted*(exitPrice/p.EntryPrice-1) - commission
	return Trade{
		ID:          p.tradeID(),
		Ticker:      p.Ticker,
		Tier:        p.Tier,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   exitPrice,
		EntryTime:   p.EntryTime,
		ExitTime:    exitTime,
		HoldingTime: exitTime.Sub(p.EntryTime),
		Invested:    p.CapitalCommitted,
		Commission:  commission,
		RealizedPnl: pnl,
		PnlPct:      p.PnlPct(exitPrice),
		PeakPct:     p.PeakPct(),
		ExitReason:  reason,
	}
}

// BuyCommissionFor returns the commission charged on a buy of the given
// size at the given rate.
func BuyCommissionFor(capital, commissionPct float64) float64 {
	return capital * commissionPct / 100
}
