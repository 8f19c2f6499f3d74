// Package db
package db

import (
	"context"
	"time"

	"github.com/sungli01/stock-bot-sub000/internal/bar"
	"github.com/sungli01/stock-bot-sub000/internal/journal"
	"github.com/sungli01/stock-bot-sub000/internal/market"
	"github.com/sungli01/stock-bot-sub000/internal/position"
)

// Storage is the interface for all persistent storage: cached raw bars,
// closed trades, day summaries, and the event journal. It also satisfies
// market.Provider, so a backtest can stream cached bars straight from it.
type Storage interface {
	market.Provider
	journal.Journaler

	SaveBars(ctx context.Context, bars []bar.Bar) error
	SaveTrades(ctx context.Context, day time.Time, trades []position.Trade) error
	SaveDaySummary(ctx context.Context, s DaySummary) error
	GetDaySummaries(ctx context.Context, from, to time.Time) ([]DaySummary, error)

	Close() error
}

// DaySummary is the persisted shape of one day's run.
type DaySummary struct {
	Day             time.Time
	StartingCapital float64
	EndingCapital   float64
	CarryOver       float64
	RealizedPnl     float64
	TradeCount      int
	Wins            int
	Losses          int
	SpikeCount      int
	Error           string
}
