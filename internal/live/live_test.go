package live

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sungli01/stock-bot-sub000/internal/bar"
	"github.com/sungli01/stock-bot-sub000/internal/config"
	"github.com/sungli01/stock-bot-sub000/internal/db"
	"github.com/sungli01/stock-bot-sub000/internal/notifier"
)

func liveBar(ts time.Time, close, volume, dailyVolume float64) bar.Bar {
	return bar.Bar{
		Ticker:      "ABCD",
		Timestamp:   ts,
		Open:        close,
		High:        close,
		Low:         close,
		Close:       close,
		Volume:      volume,
		DailyOpen:   1.0,
		DailyVolume: dailyVolume,
	}
}

func liveConfig() config.Config {
	return config.Config{
		Mode:                "live",
		FeedURL:             "ws://feeder:8765/bars",
		ForceCloseBeforeMin: 15,
		Engine:              config.DefaultEngine(),
	}
}

// entryDay opens a first-tier position: a quiet window, a 10x surge
// queueing at 1.10, then the trigger bar at 1.33.
func entryDay(open time.Time) []bar.Bar {
	return []bar.Bar{
		liveBar(open, 1.00, 1000, 1000),
		liveBar(open.Add(1*time.Minute), 1.01, 1000, 2000),
		liveBar(open.Add(2*time.Minute), 1.02, 1000, 3000),
		liveBar(open.Add(3*time.Minute), 1.05, 10000, 13000),
		liveBar(open.Add(4*time.Minute), 1.08, 10000, 23000),
		liveBar(open.Add(5*time.Minute), 1.10, 10000, 33000),
		liveBar(open.Add(6*time.Minute), 1.33, 367000, 400000),
	}
}

func TestRunner_CutoffLiquidatesOpenPositions(t *testing.T) {
	ctx := context.Background()
	storage := db.NewMemory()
	r := NewRunner(liveConfig(), nil, storage, notifier.Noop{})

	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	open := day.Add(14*time.Hour + 30*time.Minute)
	for _, b := range entryDay(open) {
		require.NoError(t, r.onBar(ctx, b))
	}
	require.Equal(t, 1, r.runner.OpenPositions())

	// Winter session: the hard stop at 20:45 UTC is the cutoff. A bar
	// past it liquidates and is otherwise ignored.
	past := liveBar(day.Add(20*time.Hour+50*time.Minute), 1.40, 1000, 500000)
	require.NoError(t, r.onBar(ctx, past))
	assert.Equal(t, 0, r.runner.OpenPositions())
	assert.True(t, r.forced)
}

func TestRunner_DayRollover(t *testing.T) {
	ctx := context.Background()
	storage := db.NewMemory()
	r := NewRunner(liveConfig(), nil, storage, notifier.Noop{})

	day1 := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	open1 := day1.Add(14*time.Hour + 30*time.Minute)
	for _, b := range entryDay(open1) {
		require.NoError(t, r.onBar(ctx, b))
	}

	// The first bar of the next day finalizes day 1: the open position is
	// liquidated, the summary persisted, and the carried capital becomes
	// the new day's base.
	day2 := day1.AddDate(0, 0, 1)
	open2 := day2.Add(14*time.Hour + 30*time.Minute)
	require.NoError(t, r.onBar(ctx, liveBar(open2, 1.00, 1000, 1000)))

	assert.Equal(t, day2, r.day)
	assert.Equal(t, 0, r.runner.OpenPositions())

	sums, err := storage.GetDaySummaries(ctx, day1, day1)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, 1, sums[0].TradeCount)
	assert.Equal(t, sums[0].CarryOver, r.capital)
	assert.Equal(t, r.capital, r.runner.Ledger().Starting())

	events, err := storage.GetEvents(ctx, "exit", day1, day2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ABCD", events[0].Description)
}

func TestRunner_BollingerBreakIsJournaledOnce(t *testing.T) {
	ctx := context.Background()
	storage := db.NewMemory()
	cfg := liveConfig()
	cfg.BollingerConfirm = true
	cfg.BollingerPeriod = 3
	cfg.BollingerStd = 2
	r := NewRunner(cfg, nil, storage, notifier.Noop{})

	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	open := day.Add(14*time.Hour + 30*time.Minute)

	closes := []float64{1.00, 1.01, 1.00, 1.02, 1.02}
	for m, c := range closes {
		b := liveBar(open.Add(time.Duration(m)*time.Minute), c, 1000, float64(1000*(m+1)))
		if m >= 3 {
			// A spike through the band while the close stays inside it.
			b.High = 1.30
		}
		require.NoError(t, r.onBar(ctx, b))
	}

	events, err := storage.GetEvents(ctx, "bb_break", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
