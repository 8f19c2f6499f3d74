// Package live
package live

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sungli01/stock-bot-sub000/internal/bar"
	"github.com/sungli01/stock-bot-sub000/internal/config"
	"github.com/sungli01/stock-bot-sub000/internal/db"
	"github.com/sungli01/stock-bot-sub000/internal/engine"
	"github.com/sungli01/stock-bot-sub000/internal/feed"
	"github.com/sungli01/stock-bot-sub000/internal/indicator"
	"github.com/sungli01/stock-bot-sub000/internal/journal"
	"github.com/sungli01/stock-bot-sub000/internal/market"
	"github.com/sungli01/stock-bot-sub000/internal/metrics"
	"github.com/sungli01/stock-bot-sub000/internal/notifier"
	"github.com/sungli01/stock-bot-sub000/internal/position"
	"github.com/sungli01/stock-bot-sub000/internal/spike"
)

// Runner drives the engine against a live bar feed. Each bar is fully
// processed (aggregation, detection, expiry, trigger, exit) before the next
// is admitted, which preserves the same ordering guarantees as a backtest
// fold. Days roll over on the session clock; capital carries across them
// through the compounding cap.
type Runner struct {
	cfg      config.Config
	feed     *feed.WSFeed
	storage  db.Storage
	notifier notifier.Notifier

	runner      *engine.DayRunner
	day         time.Time
	cutoff      time.Time
	forced      bool
	capital     float64
	bands       map[string]*indicator.Bollinger
	bbConfirmed map[string]bool
}

// NewRunner wires a live runner. storage may be nil to run without
// persistence; notifier may be nil to run silent.
func NewRunner(cfg config.Config, f *feed.WSFeed, storage db.Storage, n notifier.Notifier) *Runner {
	if n == nil {
		n = notifier.Noop{}
	}
	return &Runner{
		cfg:         cfg,
		feed:        f,
		storage:     storage,
		notifier:    n,
		capital:     cfg.Engine.InitialCapitalKRW,
		bands:       make(map[string]*indicator.Bollinger),
		bbConfirmed: make(map[string]bool),
	}
}

// Run consumes the feed until ctx is cancelled or the feed fails.
// Cancellation stops feeding bars and leaves open positions untouched; only
// the session-end rule liquidates.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.feed.Connect(ctx); err != nil {
		return err
	}
	defer r.feed.Close()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Live | Stopped: %v", ctx.Err())
			return nil
		case err := <-r.feed.Errs:
			r.finishDay(ctx)
			return fmt.Errorf("feed failed: %w", err)
		case b, ok := <-r.feed.Bars:
			if !ok {
				r.finishDay(ctx)
				return nil
			}
			if err := r.onBar(ctx, b); err != nil {
				log.Printf("Live | Fatal bar error: %v", err)
				r.finishDay(ctx)
				return err
			}
		}
	}
}

// onBar is the per-bar critical section.
func (r *Runner) onBar(ctx context.Context, b bar.Bar) error {
	metrics.FeedBars.Inc()

	day := b.Timestamp.UTC().Truncate(24 * time.Hour)
	if r.runner == nil || !day.Equal(r.day) {
		r.finishDay(ctx)
		if err := r.startDay(day); err != nil {
			return err
		}
	}

	// Past the pre-close cutoff: liquidate and ignore the remainder of the
	// session.
	if !b.Timestamp.Before(r.cutoff) {
		if !r.forced {
			r.runner.ForceCloseAll(b.Timestamp)
			r.forced = true
		}
		return nil
	}

	if err := r.runner.ProcessBar(b); err != nil {
		return err
	}
	r.updateBands(b)

	ledger := r.runner.Ledger()
	metrics.Equity.Set(ledger.Ending())
	metrics.OpenPositions.Set(float64(r.runner.OpenPositions()))
	return nil
}

// updateBands tracks Bollinger bands per ticker and flags an upper-band
// break on a held ticker, confirming the trailing regime the way the live
// seller did.
func (r *Runner) updateBands(b bar.Bar) {
	if !r.cfg.BollingerConfirm {
		return
	}
	bands, ok := r.bands[b.Ticker]
	if !ok {
		bands = indicator.NewBollinger(r.cfg.BollingerPeriod, r.cfg.BollingerStd)
		r.bands[b.Ticker] = bands
	}
	bands.Push(b.Close)
	upper, _, _, full := bands.Bands()
	if !full || r.bbConfirmed[b.Ticker] || b.High <= upper {
		return
	}
	r.bbConfirmed[b.Ticker] = true
	r.logEvent(journal.Event{
		Time:        b.Timestamp,
		Type:        "bb_break",
		Description: b.Ticker,
		Data:        map[string]any{"upper": upper, "high": b.High},
	})
}

func (r *Runner) startDay(day time.Time) error {
	runner, err := engine.NewDayRunner(r.cfg.Engine, r.capital)
	if err != nil {
		return err
	}
	runner.OnSpike = func(sig spike.Signal) {
		metrics.Spikes.WithLabelValues(sig.Tier.String()).Inc()
	}
	runner.OnOpen = r.onOpen
	runner.OnClose = r.onClose
	r.runner = runner
	r.day = day
	r.cutoff = market.ForceCloseCutoff(day, time.Duration(r.cfg.ForceCloseBeforeMin)*time.Minute)
	r.forced = false
	r.bands = make(map[string]*indicator.Bollinger)
	r.bbConfirmed = make(map[string]bool)
	log.Printf("Live | Session %s started with ₩%.0f (cutoff %s)",
		day.Format("2006-01-02"), r.capital, r.cutoff.Format("15:04"))
	return nil
}

func (r *Runner) finishDay(ctx context.Context) {
	if r.runner == nil {
		return
	}
	result := r.runner.Finish()
	result.Date = r.day.Format("2006-01-02")
	r.capital = result.CarryOver

	if r.storage != nil {
		if err := r.storage.SaveTrades(ctx, r.day, result.Trades); err != nil {
			log.Printf("Live | Failed to save trades: %v", err)
		}
		if err := r.storage.SaveDaySummary(ctx, db.DaySummary{
			Day:             r.day,
			StartingCapital: result.StartingCapital,
			EndingCapital:   result.EndingCapital,
			CarryOver:       result.CarryOver,
			RealizedPnl:     result.RealizedPnl,
			TradeCount:      len(result.Trades),
			Wins:            result.Wins,
			Losses:          result.Losses,
			SpikeCount:      result.SpikeCount,
			Error:           result.Error,
		}); err != nil {
			log.Printf("Live | Failed to save day summary: %v", err)
		}
	}

	msg := fmt.Sprintf("📊 %s: ₩%.0f → ₩%.0f (%d trades, W:%d L:%d)",
		result.Date, result.StartingCapital, result.EndingCapital,
		len(result.Trades), result.Wins, result.Losses)
	if result.Error != "" {
		msg += fmt.Sprintf("\n⚠️ partial day: %s", result.Error)
	}
	if err := r.notifier.SendWithRetry(msg); err != nil {
		log.Printf("Live | Notification failed: %v", err)
	}
	r.runner = nil
}

func (r *Runner) onOpen(p *position.Position) {
	metrics.Entries.WithLabelValues(p.Tier.String()).Inc()
	r.logEvent(journal.Event{
		Time:        p.EntryTime,
		Type:        "entry",
		Description: p.Ticker,
		Data: map[string]any{
			"tier":      p.Tier.String(),
			"price":     p.EntryPrice,
			"committed": p.CapitalCommitted,
		},
	})
	msg := fmt.Sprintf("🚀 %s %s entry at %.4f (₩%.0f)", p.Ticker, p.Tier, p.EntryPrice, p.CapitalCommitted)
	if err := r.notifier.Send(msg); err != nil {
		log.Printf("Live | Notification failed: %v", err)
	}
}

func (r *Runner) onClose(t position.Trade) {
	metrics.ExitReasons.WithLabelValues(string(t.ExitReason), t.Tier.String()).Inc()
	r.logEvent(journal.Event{
		Time:        t.ExitTime,
		Type:        "exit",
		Description: t.Ticker,
		Data: map[string]any{
			"tier":    t.Tier.String(),
			"reason":  string(t.ExitReason),
			"price":   t.ExitPrice,
			"pnl":     t.RealizedPnl,
			"pnl_pct": t.PnlPct,
		},
	})
	icon := "✅"
	if t.RealizedPnl <= 0 {
		icon = "🔻"
	}
	msg := fmt.Sprintf("%s %s %s %s at %.4f (%+.2f%%, ₩%+.0f)",
		icon, t.Ticker, t.Tier, t.ExitReason, t.ExitPrice, t.PnlPct, t.RealizedPnl)
	if err := r.notifier.Send(msg); err != nil {
		log.Printf("Live | Notification failed: %v", err)
	}
}

func (r *Runner) logEvent(e journal.Event) {
	if r.storage == nil {
		return
	}
	if err := r.storage.LogEvent(context.Background(), e); err != nil {
		log.Printf("Live | Failed to journal %s event: %v", e.Type, err)
	}
}
