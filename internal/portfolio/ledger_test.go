package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sungli01/stock-bot-sub000/internal/config"
	"github.com/sungli01/stock-bot-sub000/internal/position"
)

func TestNewLedger(t *testing.T) {
	cfg := config.DefaultEngine()

	_, err := NewLedger(cfg, 0)
	assert.Error(t, err)

	_, err = NewLedger(cfg, -100)
	assert.Error(t, err)

	l, err := NewLedger(cfg, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, 1_000_000.0, l.Starting())
	assert.Equal(t, 1_000_000.0, l.Available())
	assert.Equal(t, 0.0, l.Deployed())
}

// Generous liquidity so the volume cap never binds.
func deepRequest(tier position.Tier, slot int) CommitRequest {
	return CommitRequest{
		Tier:          tier,
		OpenPositions: slot,
		Price:         5.0,
		VolSinceQueue: 1_000_000,
	}
}

func TestLedger_Commit(t *testing.T) {
	t.Run("First tier splits by allocation ratio", func(t *testing.T) {
		l, err := NewLedger(config.DefaultEngine(), 1_000_000)
		require.NoError(t, err)

		amount, ok := l.Commit(deepRequest(position.TierFirst, 0))
		require.True(t, ok)
		assert.InDelta(t, 700_000.0, amount, 1e-6)
		assert.InDelta(t, 300_000.0, l.Available(), 1e-6)
		assert.InDelta(t, 700_000.0, l.Deployed(), 1e-6)

		// The second slot's share comes off the same base: deployed
		// capital still counts.
		amount, ok = l.Commit(deepRequest(position.TierFirst, 1))
		require.True(t, ok)
		assert.InDelta(t, 300_000.0, amount, 1e-6)
		assert.InDelta(t, 0.0, l.Available(), 1e-6)
	})

	t.Run("Base is limited by the compounding cap", func(t *testing.T) {
		cfg := config.DefaultEngine()
		cfg.CompoundCapKRW = 900_000
		l, err := NewLedger(cfg, 1_000_000)
		require.NoError(t, err)

		amount, ok := l.Commit(deepRequest(position.TierFirst, 0))
		require.True(t, ok)
		assert.InDelta(t, 630_000.0, amount, 1e-6)
	})

	t.Run("Liquidity cap binds thin tickers", func(t *testing.T) {
		l, err := NewLedger(config.DefaultEngine(), 1_000_000)
		require.NoError(t, err)

		// 10 shares at $5: 30% of the traded value in KRW.
		amount, ok := l.Commit(CommitRequest{
			Tier:          position.TierFirst,
			OpenPositions: 0,
			Price:         5.0,
			VolSinceQueue: 10,
		})
		require.True(t, ok)
		assert.InDelta(t, 10*0.30*5.0*1450, amount, 1e-6)
	})

	t.Run("Additional tier takes up to the remaining capital", func(t *testing.T) {
		l, err := NewLedger(config.DefaultEngine(), 1_000_000)
		require.NoError(t, err)

		amount, ok := l.Commit(deepRequest(position.TierSecond, 0))
		require.True(t, ok)
		assert.InDelta(t, 1_000_000.0, amount, 1e-6)
		assert.InDelta(t, 0.0, l.Available(), 1e-6)

		// Nothing left for the next entry.
		_, ok = l.Commit(deepRequest(position.TierThird, 0))
		assert.False(t, ok)
	})

	t.Run("Single order ceiling", func(t *testing.T) {
		cfg := config.DefaultEngine()
		cfg.MaxSingleBuyKRW = 200_000
		l, err := NewLedger(cfg, 1_000_000)
		require.NoError(t, err)

		amount, ok := l.Commit(deepRequest(position.TierSecond, 0))
		require.True(t, ok)
		assert.InDelta(t, 200_000.0, amount, 1e-6)
	})

	t.Run("Single order ceiling does not bind first tier", func(t *testing.T) {
		cfg := config.DefaultEngine()
		cfg.MaxSingleBuyKRW = 200_000
		l, err := NewLedger(cfg, 1_000_000)
		require.NoError(t, err)

		// First-tier sizing is allocation and liquidity only.
		amount, ok := l.Commit(deepRequest(position.TierFirst, 0))
		require.True(t, ok)
		assert.InDelta(t, 700_000.0, amount, 1e-6)
	})
}

func TestLedger_ReleaseAndCarryOver(t *testing.T) {
	cfg := config.DefaultEngine()
	cfg.CompoundCapKRW = 900_000
	l, err := NewLedger(cfg, 1_000_000)
	require.NoError(t, err)

	amount, ok := l.Commit(deepRequest(position.TierFirst, 0))
	require.True(t, ok)

	l.Release(position.Trade{Invested: amount, RealizedPnl: 50_000})

	assert.InDelta(t, 0.0, l.Deployed(), 1e-6)
	assert.InDelta(t, 50_000.0, l.RealizedPnl(), 1e-6)

	// Ending capital reports the full amount; only the carry into the
	// next day is capped.
	assert.InDelta(t, 1_050_000.0, l.Ending(), 1e-6)
	assert.InDelta(t, 900_000.0, l.CarryOver(), 1e-6)
}

func TestLedger_CapitalNeverGoesNegative(t *testing.T) {
	l, err := NewLedger(config.DefaultEngine(), 1_000_000)
	require.NoError(t, err)

	amount, ok := l.Commit(deepRequest(position.TierSecond, 0))
	require.True(t, ok)
	require.InDelta(t, 1_000_000.0, amount, 1e-6)

	// A full stop-out with commission on top.
	l.Release(position.Trade{Invested: amount, RealizedPnl: -160_000})

	assert.GreaterOrEqual(t, l.Available(), 0.0)
	assert.InDelta(t, 840_000.0, l.Ending(), 1e-6)
	assert.InDelta(t, 840_000.0, l.CarryOver(), 1e-6)
}
