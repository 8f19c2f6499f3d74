package spike

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sungli01/stock-bot-sub000/internal/bar"
	"github.com/sungli01/stock-bot-sub000/internal/config"
	"github.com/sungli01/stock-bot-sub000/internal/position"
)

func candidateBar(close, dailyOpen float64) bar.Bar {
	return bar.Bar{
		Ticker:      "ABCD",
		Timestamp:   time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC),
		Open:        close,
		High:        close,
		Low:         close,
		Close:       close,
		Volume:      1000,
		DailyOpen:   dailyOpen,
		DailyVolume: 500_000,
	}
}

func windows(curVol, prevVol float64) (current, previous bar.Window) {
	current = bar.Window{Ticker: "ABCD", Volume: curVol}
	previous = bar.Window{Ticker: "ABCD", Volume: prevVol}
	return current, previous
}

func TestDetector_Detect(t *testing.T) {
	d := NewDetector(config.DefaultEngine())
	// +10% from the day open, inside the $0.70..$30 band.
	b := candidateBar(5.5, 5.0)

	t.Run("First tier fires at 10x volume", func(t *testing.T) {
		cur, prev := windows(10_000, 1000)
		sig, ok := d.Detect(b, cur, prev, position.TierFirst)
		require.True(t, ok)
		assert.Equal(t, "ABCD", sig.Ticker)
		assert.Equal(t, position.TierFirst, sig.Tier)
		assert.Equal(t, 1000.0, sig.VolumeRatioPct)
		assert.Equal(t, 5.5, sig.Price)
	})

	t.Run("First tier holds below 10x", func(t *testing.T) {
		cur, prev := windows(9_999, 1000)
		_, ok := d.Detect(b, cur, prev, position.TierFirst)
		assert.False(t, ok)
	})

	t.Run("Additional tiers fire at 2x", func(t *testing.T) {
		cur, prev := windows(2_000, 1000)
		_, ok := d.Detect(b, cur, prev, position.TierFirst)
		assert.False(t, ok)

		sig, ok := d.Detect(b, cur, prev, position.TierSecond)
		require.True(t, ok)
		assert.Equal(t, position.TierSecond, sig.Tier)

		_, ok = d.Detect(b, cur, prev, position.TierThird)
		assert.True(t, ok)
	})

	t.Run("Zero previous volume never fires", func(t *testing.T) {
		cur, prev := windows(10_000, 0)
		_, ok := d.Detect(b, cur, prev, position.TierFirst)
		assert.False(t, ok)
	})

	t.Run("Zero current volume never fires", func(t *testing.T) {
		cur, prev := windows(0, 1000)
		_, ok := d.Detect(b, cur, prev, position.TierSecond)
		assert.False(t, ok)
	})
}

func TestDetector_FirstTierBands(t *testing.T) {
	d := NewDetector(config.DefaultEngine())
	cur, prev := windows(10_000, 1000)

	t.Run("Price band", func(t *testing.T) {
		low := candidateBar(0.60, 0.55)
		_, ok := d.Detect(low, cur, prev, position.TierFirst)
		assert.False(t, ok)

		high := candidateBar(33.0, 30.0)
		_, ok = d.Detect(high, cur, prev, position.TierFirst)
		assert.False(t, ok)
	})

	t.Run("Change from open band", func(t *testing.T) {
		flat := candidateBar(5.0, 5.0) // +0%
		_, ok := d.Detect(flat, cur, prev, position.TierFirst)
		assert.False(t, ok)

		atFloor := candidateBar(5.25, 5.0) // exactly +5%
		_, ok = d.Detect(atFloor, cur, prev, position.TierFirst)
		assert.True(t, ok)

		justBelowCeiling := candidateBar(5.95, 5.0) // +19%
		_, ok = d.Detect(justBelowCeiling, cur, prev, position.TierFirst)
		assert.True(t, ok)

		aboveCeiling := candidateBar(6.25, 5.0) // +25%
		_, ok = d.Detect(aboveCeiling, cur, prev, position.TierFirst)
		assert.False(t, ok)
	})

	t.Run("Additional tiers skip both bands", func(t *testing.T) {
		cur2, prev2 := windows(2_000, 1000)

		runaway := candidateBar(7.5, 5.0)
		_, ok := d.Detect(runaway, cur2, prev2, position.TierSecond)
		assert.True(t, ok)

		cheap := candidateBar(0.50, 0.45)
		_, ok = d.Detect(cheap, cur2, prev2, position.TierThird)
		assert.True(t, ok)
	})
}
