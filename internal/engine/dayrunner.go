// Package engine
package engine

import (
	"fmt"
	"time"

	"github.com/sungli01/stock-bot-sub000/internal/bar"
	"github.com/sungli01/stock-bot-sub000/internal/config"
	"github.com/sungli01/stock-bot-sub000/internal/portfolio"
	"github.com/sungli01/stock-bot-sub000/internal/position"
	"github.com/sungli01/stock-bot-sub000/internal/spike"
	"github.com/sungli01/stock-bot-sub000/internal/utils"
	"github.com/sungli01/stock-bot-sub000/internal/watch"
)

// Result is one day's output: the trade list, capital accounting, and
// per-exit-reason counts. Error marks a day that hit a fatal input error;
// the trades recorded up to that point are still reported.
type Result struct {
	Date            string                      `json:"date"`
	StartingCapital float64                     `json:"starting_capital"`
	EndingCapital   float64                     `json:"ending_capital"`
	CarryOver       float64                     `json:"carry_over"`
	RealizedPnl     float64                     `json:"realized_pnl"`
	Trades          []position.Trade            `json:"trades"`
	Wins            int                         `json:"wins"`
	Losses          int                         `json:"losses"`
	SpikeCount      int                         `json:"spike_count"`
	ExitReasons     map[position.ExitReason]int `json:"exit_reasons"`
	Error           string                      `json:"error,omitempty"`
}

// DayRunner drives one trading day. All per-ticker state (bar buffers,
// watch entries, open positions) lives in maps owned by the runner, so each
// day's run is independent and the whole day is a synchronous fold over the
// bar stream. Bars must arrive in chronological order, merged across
// tickers; within one bar, exits are evaluated before new entries.
type DayRunner struct {
	cfg config.EngineConfig

	agg       *bar.Aggregator
	detector  *spike.Detector
	queue     *watch.Queue
	evaluator *position.Evaluator
	ledger    *portfolio.Ledger

	open           map[string]*position.Position
	completedTiers map[string]int
	stopLossed     map[string]bool

	trades     []position.Trade
	spikeCount int
	lastTime   time.Time
	fatal      error

	// Optional hooks for the live runner; nil in backtests.
	OnSpike func(spike.Signal)
	OnOpen  func(*position.Position)
	OnClose func(position.Trade)
}

// NewDayRunner constructs a runner for one day from a validated config and
// the day's opening capital.
func NewDayRunner(cfg config.EngineConfig, startingCapital float64) (*DayRunner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	agg, err := bar.NewAggregator(cfg.WindowBars)
	if err != nil {
		return nil, err
	}
	ledger, err := portfolio.NewLedger(cfg, startingCapital)
	if err != nil {
		return nil, err
	}
	return &DayRunner{
		cfg:            cfg,
		agg:            agg,
		detector:       spike.NewDetector(cfg),
		queue:          watch.NewQueue(cfg.QueueExpire()),
		evaluator:      position.NewEvaluator(cfg),
		ledger:         ledger,
		open:           make(map[string]*position.Position),
		completedTiers: make(map[string]int),
		stopLossed:     make(map[string]bool),
	}, nil
}

// nextTier returns the tier a new entry on this ticker would take, or false
// when the ticker has exhausted its tiers or is blocked for the day.
func (r *DayRunner) nextTier(ticker string) (position.Tier, bool) {
	if r.cfg.BlockAfterStopLoss && r.stopLossed[ticker] {
		return 0, false
	}
	done := r.completedTiers[ticker]
	if done >= r.cfg.MaxTiers {
		return 0, false
	}
	return position.Tier(done + 1), true
}

// ProcessBar folds one bar through the pipeline: queue expiry, window
// aggregation, spike detection, exit evaluation, entry trigger. A malformed
// bar is fatal: the error is returned and the runner refuses further bars,
// since fabricated values would corrupt every downstream invariant.
func (r *DayRunner) ProcessBar(b bar.Bar) error {
	if r.fatal != nil {
		return r.fatal
	}
	if err := b.Validate(); err != nil {
		r.fatal = fmt.Errorf("bar for %q at %s: %w", b.Ticker, b.Timestamp.Format(time.RFC3339), err)
		return r.fatal
	}
	r.lastTime = b.Timestamp

	// Expiry runs unconditionally on every bar so stale entries cannot
	// linger between sparse events.
	r.queue.Expire(b.Timestamp)

	r.agg.Push(b)
	r.detectSpike(b)
	r.evaluateExit(b)
	r.evaluateEntry(b)
	return nil
}

// detectSpike queues the ticker when its latest window spikes. A ticker
// holding an open position, already queued, or blocked for the day is never
// queued.
func (r *DayRunner) detectSpike(b bar.Bar) {
	if _, held := r.open[b.Ticker]; held {
		return
	}
	if _, queued := r.queue.Get(b.Ticker); queued {
		return
	}
	tier, ok := r.nextTier(b.Ticker)
	if !ok {
		return
	}
	current, previous, full := r.agg.Windows(b.Ticker)
	if !full {
		return
	}
	sig, fired := r.detector.Detect(b, current, previous, tier)
	if !fired {
		return
	}
	r.queue.Add(watch.Entry{
		Ticker:           sig.Ticker,
		QueuedPrice:      sig.Price,
		QueuedTime:       b.Timestamp,
		Tier:             sig.Tier,
		VolumeRatioPct:   sig.VolumeRatioPct,
		CumulativeVolume: b.DailyVolume,
	})
	r.spikeCount++
	if r.OnSpike != nil {
		r.OnSpike(sig)
	}
}

// evaluateExit runs the exit rules for this ticker's open position, if any.
func (r *DayRunner) evaluateExit(b bar.Bar) {
	pos, held := r.open[b.Ticker]
	if !held {
		return
	}
	decision, fired := r.evaluator.Check(pos, b)
	if !fired {
		return
	}
	r.closePosition(pos, decision, b.Timestamp)
}

func (r *DayRunner) closePosition(pos *position.Position, decision position.ExitDecision, at time.Time) {
	trade := pos.Close(decision.FillPrice, at, decision.Reason, r.cfg.CommissionPct)
	r.ledger.Release(trade)
	delete(r.open, pos.Ticker)
	r.completedTiers[pos.Ticker] = int(pos.Tier)
	if decision.Reason == position.ExitStopLoss {
		r.stopLossed[pos.Ticker] = true
	}
	r.trades = append(r.trades, trade)
	utils.GetLogger().Printf("DayRunner | %s %s closed %s at %.4f (%.2f%%, ₩%.0f)",
		trade.Ticker, trade.Tier, trade.ExitReason, trade.ExitPrice, trade.PnlPct, trade.RealizedPnl)
	if r.OnClose != nil {
		r.OnClose(trade)
	}
}

// evaluateEntry checks this ticker's watch entry against the trigger rules
// and opens a position on success. Every rejection is silent: not
// triggering is an expected, frequent outcome.
func (r *DayRunner) evaluateEntry(b bar.Bar) {
	entry, queued := r.queue.Get(b.Ticker)
	if !queued {
		return
	}
	if _, held := r.open[b.Ticker]; held {
		return
	}

	pctFromQueue := (b.Close/entry.QueuedPrice - 1) * 100

	// The move has run too far to chase: drop the entry outright.
	if pctFromQueue > r.cfg.MaxPctFromQueue {
		r.queue.Remove(b.Ticker)
		return
	}
	// Below the trigger: leave it queued for a later bar.
	if pctFromQueue < r.cfg.TriggerPct.ForTier(int(entry.Tier)) {
		return
	}
	// First entries additionally require realized daily volume.
	if !entry.Tier.Additional() && b.DailyVolume < r.cfg.MinDailyVolume(b.Close) {
		return
	}
	if len(r.open) >= r.cfg.MaxPositions {
		return
	}

	amount, ok := r.ledger.Commit(portfolio.CommitRequest{
		Tier:          entry.Tier,
		OpenPositions: len(r.open),
		Price:         b.Close,
		VolSinceQueue: b.DailyVolume - entry.CumulativeVolume,
	})
	if !ok {
		return
	}

	entryPrice := b.Close * (1 + r.cfg.SlippageBuyPct/100)
	buyCommission := position.BuyCommissionFor(amount, r.cfg.CommissionPct)
	pos := position.New(b.Ticker, entry.Tier, entryPrice, entry.QueuedPrice, amount, buyCommission, b.Timestamp)
	r.open[b.Ticker] = pos
	r.queue.Remove(b.Ticker)
	utils.GetLogger().Printf("DayRunner | %s %s entry at %.4f (+%.1f%% from queue, ₩%.0f)",
		pos.Ticker, pos.Tier, pos.EntryPrice, pctFromQueue, amount)
	if r.OnOpen != nil {
		r.OnOpen(pos)
	}
}

// ForceCloseAll liquidates every still-open position at the last buffered
// price for its ticker.
func (r *DayRunner) ForceCloseAll(at time.Time) {
	for _, pos := range r.open {
		last, ok := r.agg.LastClose(pos.Ticker)
		if !ok {
			last = pos.EntryPrice
		}
		r.closePosition(pos, r.evaluator.ForceClose(last), at)
	}
}

// OpenPositions returns the number of currently open positions.
func (r *DayRunner) OpenPositions() int { return len(r.open) }

// Ledger exposes the day's capital state.
func (r *DayRunner) Ledger() *portfolio.Ledger { return r.ledger }

// Finish force-closes anything still open and assembles the day's result.
// A day that hit a fatal input error reports the partial result with an
// explicit error marker rather than a false zero-trade success.
func (r *DayRunner) Finish() Result {
	at := r.lastTime
	if at.IsZero() {
		at = time.Now().UTC()
	}
	r.ForceCloseAll(at)

	res := Result{
		StartingCapital: r.ledger.Starting(),
		EndingCapital:   r.ledger.Ending(),
		CarryOver:       r.ledger.CarryOver(),
		RealizedPnl:     r.ledger.RealizedPnl(),
		Trades:          r.trades,
		SpikeCount:      r.spikeCount,
		ExitReasons:     make(map[position.ExitReason]int),
	}
	for _, t := range r.trades {
		if t.RealizedPnl > 0 {
			res.Wins++
		} else {
			res.Losses++
		}
		res.ExitReasons[t.ExitReason]++
	}
	if r.fatal != nil {
		res.Error = r.fatal.Error()
	}
	return res
}

// Run folds a full day's chronological bar stream through a fresh runner.
// It stops at the first fatal input error; the returned result then carries
// the error marker and the trades closed up to that point.
func Run(cfg config.EngineConfig, startingCapital float64, bars []bar.Bar) (Result, error) {
	r, err := NewDayRunner(cfg, startingCapital)
	if err != nil {
		return Result{}, err
	}
	for _, b := range bars {
		if err := r.ProcessBar(b); err != nil {
			break
		}
	}
	return r.Finish(), nil
}
