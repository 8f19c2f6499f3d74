// Package portfolio
package portfolio

import (
	"fmt"

	"github.com/sungli01/stock-bot-sub000/internal/config"
	"github.com/sungli01/stock-bot-sub000/internal/position"
)

// Ledger owns the day's capital. Opens debit available capital, closes
// credit it back with the realized P&L. Available capital never goes
// negative and total deployed capital never exceeds the day's starting
// capital plus realized gains.
type Ledger struct {
	cfg config.EngineConfig

	starting  float64
	available float64
	deployed  float64
	realized  float64
}

// NewLedger starts a day's ledger with the given opening capital.
func NewLedger(cfg config.EngineConfig, startingCapital float64) (*Ledger, error) {
	if startingCapital <= 0 {
		return nil, fmt.Errorf("starting capital must be positive, got %v", startingCapital)
	}
	return &Ledger{
		cfg:       cfg,
		starting:  startingCapital,
		available: startingCapital,
	}, nil
}

// CommitRequest describes a prospective entry for sizing.
type CommitRequest struct {
	Tier          position.Tier
	OpenPositions int     // concurrent slot index for tier-1 allocation
	Price         float64 // current price in USD
	VolSinceQueue float64 // shares traded since the ticker was queued
}

// Commit sizes and debits capital for a new position. Tier-1 entries split
// the compounding-capped base across concurrent slots by the allocation
// ratio; additional tiers may commit up to the full remaining capital. Both
// are bounded by the liquidity cap (a fraction of the realized volume since
// queueing, valued at the current price); the single-order ceiling applies
// to additional tiers only. A non-positive outcome means the candidate is
// simply not traded.
func (l *Ledger) Commit(req CommitRequest) (float64, bool) {
	volSince := req.VolSinceQueue
	if volSince < 1 {
		volSince = 1
	}
	capPct := l.cfg.VolCapPct.ForTier(int(req.Tier))
	maxByVol := volSince * capPct / 100 * req.Price * l.cfg.USDKRWRate

	// Compounding base counts deployed capital so a filled slot does not
	// shrink the other slot's allocation.
	base := l.available + l.deployed
	if base > l.cfg.CompoundCapKRW {
		base = l.cfg.CompoundCapKRW
	}

	var amount float64
	if req.Tier.Additional() {
		amount = min3(l.available, maxByVol, l.cfg.MaxSingleBuyKRW)
	} else {
		ratios := l.cfg.AllocationRatio
		idx := req.OpenPositions
		if idx >= len(ratios) {
			idx = len(ratios) - 1
		}
		amount = base * ratios[idx]
		if amount > maxByVol {
			amount = maxByVol
		}
	}
	if amount > l.available {
		amount = l.available
	}
	if amount <= 0 {
		return 0, false
	}

	l.available -= amount
	l.deployed += amount
	return amount, true
}

// Release credits the ledger for a closed trade: the committed capital
// returns together with the realized P&L.
func (l *Ledger) Release(t position.Trade) {
	l.deployed -= t.Invested
	l.available += t.Invested + t.RealizedPnl
	l.realized += t.RealizedPnl
	if l.available < 0 {
		// realized losses are bounded by the amount released; anything
		// below zero here is float drift
		l.available = 0
	}
}

// Available returns the undeployed capital.
func (l *Ledger) Available() float64 { return l.available }

// Deployed returns the capital committed to open positions.
func (l *Ledger) Deployed() float64 { return l.deployed }

// Starting returns the day's opening capital.
func (l *Ledger) Starting() float64 { return l.starting }

// RealizedPnl returns the running realized profit and loss for the day.
func (l *Ledger) RealizedPnl() float64 { return l.realized }

// Ending returns the day's true ending capital. With all positions closed
// this is available capital; reported ending capital is never capped, only
// the carry into the next day is.
func (l *Ledger) Ending() float64 { return l.available + l.deployed }

// CarryOver returns the next day's opening capital: the true ending capital
// limited by the compounding cap. Capital above the cap is not discarded,
// only excluded from the next day's base.
func (l *Ledger) CarryOver() float64 {
	ending := l.Ending()
	if ending > l.cfg.CompoundCapKRW {
		return l.cfg.CompoundCapKRW
	}
	return ending
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
