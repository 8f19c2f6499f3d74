package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTier(t *testing.T) {
	assert.Equal(t, "1st", TierFirst.String())
	assert.Equal(t, "2nd", TierSecond.String())
	assert.Equal(t, "3rd", TierThird.String())

	assert.False(t, TierFirst.Additional())
	assert.True(t, TierSecond.Additional())
	assert.True(t, TierThird.Additional())
}

func TestPosition_UpdatePeak(t *testing.T) {
	entry := time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)
	p := New("ABCD", TierFirst, 1.0, 0.90, 700_000, 700, entry)

	assert.Equal(t, 1.0, p.PeakPrice)

	p.UpdatePeak(1.20)
	assert.Equal(t, 1.20, p.PeakPrice)

	// The peak never moves down.
	p.UpdatePeak(1.10)
	assert.Equal(t, 1.20, p.PeakPrice)

	p.UpdatePeak(0.80)
	assert.Equal(t, 1.20, p.PeakPrice)

	assert.InDelta(t, 20.0, p.PeakPct(), 1e-9)
}

func TestPosition_PnlPct(t *testing.T) {
	p := New("ABCD", TierFirst, 2.0, 1.80, 700_000, 700, time.Now())

	assert.InDelta(t, 0.0, p.PnlPct(2.0), 1e-9)
	assert.InDelta(t, 10.0, p.PnlPct(2.2), 1e-9)
	assert.InDelta(t, -15.0, p.PnlPct(1.7), 1e-9)
}

func TestPosition_Close(t *testing.T) {
	entry := time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)
	exit := entry.Add(45 * time.Minute)

	buyCommission := BuyCommissionFor(700_000, 0.1)
	require.InDelta(t, 700.0, buyCommission, 1e-9)

	p := New("ABCD", TierFirst, 1.0, 0.90, 700_000, buyCommission, entry)
	p.UpdatePeak(1.15)

	trade := p.Close(1.10, exit, ExitTrailing, 0.1)

	assert.NotEmpty(t, trade.ID)
	assert.Equal(t, "ABCD", trade.Ticker)
	assert.Equal(t, TierFirst, trade.Tier)
	assert.Equal(t, 1.0, trade.EntryPrice)
	assert.Equal(t, 1.10, trade.ExitPrice)
	assert.Equal(t, 45*time.Minute, trade.HoldingTime)
	assert.Equal(t, 700_000.0, trade.Invested)
	assert.Equal(t, ExitTrailing, trade.ExitReason)

	// Gross +10% on 700,000 minus 700 buy and 770 sell commission.
	assert.InDelta(t, 1470.0, trade.Commission, 1e-6)
	assert.InDelta(t, 68_530.0, trade.RealizedPnl, 1e-6)
	assert.InDelta(t, 10.0, trade.PnlPct, 1e-9)
	assert.InDelta(t, 15.0, trade.PeakPct, 1e-9)
}

func TestPosition_CloseAtLoss(t *testing.T) {
	entry := time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)
	p := New("ABCD", TierFirst, 1.0, 0.95, 100_000, 100, entry)

	trade := p.Close(0.85, entry.Add(10*time.Minute), ExitStopLoss, 0.1)

	// -15% gross on 100,000 plus 100 buy and 85 sell commission.
	assert.InDelta(t, -15_185.0, trade.RealizedPnl, 1e-6)
	assert.InDelta(t, -15.0, trade.PnlPct, 1e-9)
}
