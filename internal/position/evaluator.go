package position

import (
	"time"

	"github.com/sungli01/stock-bot-sub000/internal/bar"
	"github.com/sungli01/stock-bot-sub000/internal/config"
)

// Evaluator applies the exit rules to open positions, bar by bar, in fixed
// priority order: stop-loss, time limit, trailing stop.
type Evaluator struct {
	cfg config.EngineConfig
}

// NewEvaluator builds an evaluator from a validated engine config.
func NewEvaluator(cfg config.EngineConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// ExitDecision describes a fired exit rule and the fill it implies.
type ExitDecision struct {
	Reason    ExitReason
	FillPrice float64 // sell slippage already applied
}

// sellFill applies sell-side slippage to a raw price.
func (e *Evaluator) sellFill(raw float64) float64 {
	return raw * (1 - e.cfg.SlippageSellPct/100)
}

// allowedDrawdown returns the permitted drop from peak, in percentage
// points, for a given peak profit. The staircase widens at higher peaks;
// below the lowest step the tier's base width applies. Holding past the
// tighten threshold scales the width down.
func (e *Evaluator) allowedDrawdown(tier Tier, peakPct float64, elapsed time.Duration) float64 {
	width := e.cfg.TrailingBaseDropPct.ForTier(int(tier))
	for _, step := range e.cfg.TrailingSteps {
		if peakPct >= step.MinPeakPct {
			width = step.DropPct
			break
		}
	}
	if elapsed >= time.Duration(e.cfg.TrailingTightenAfterMin)*time.Minute {
		width *= e.cfg.TrailingTightenMultiplier
	}
	return width
}

// Check evaluates the exit rules for one position against one bar. It
// mutates the position (peak update, trailing latch) and returns the exit
// decision when a rule fires. The peak is raised from the bar's high before
// any rule runs, so trailing sees the best intrabar price; fills use the
// close (or the clamped stop price) to emulate realistic order timing.
func (e *Evaluator) Check(p *Position, b bar.Bar) (ExitDecision, bool) {
	p.UpdatePeak(b.High)

	elapsed := p.Elapsed(b.Timestamp)

	// 1. Stop-loss on the bar's low, filled at the stop price at worst.
	if p.PnlPct(b.Low) <= e.cfg.StopLossPct {
		stop := p.EntryPrice * (1 + e.cfg.StopLossPct/100)
		raw := b.Close
		if stop < raw {
			raw = stop
		}
		return ExitDecision{Reason: ExitStopLoss, FillPrice: e.sellFill(raw)}, true
	}

	// 2. Maximum holding duration.
	if elapsed >= e.cfg.MaxHold() {
		return ExitDecision{Reason: ExitTimeLimit, FillPrice: e.sellFill(b.Close)}, true
	}

	// 3. Trailing stop with staircase floor.
	peakPct := p.PeakPct()
	if peakPct >= e.cfg.TrailingActivatePct.ForTier(int(p.Tier)) {
		p.TrailingActive = true
	}
	if p.TrailingActive {
		curPct := p.PnlPct(b.Close)
		if peakPct-curPct >= e.allowedDrawdown(p.Tier, peakPct, elapsed) {
			return ExitDecision{Reason: ExitTrailing, FillPrice: e.sellFill(b.Close)}, true
		}
	}

	return ExitDecision{}, false
}

// ForceClose returns the liquidation fill for a still-open position at the
// last available price.
func (e *Evaluator) ForceClose(lastPrice float64) ExitDecision {
	return ExitDecision{Reason: ExitForceCloseEOD, FillPrice: e.sellFill(lastPrice)}
}
