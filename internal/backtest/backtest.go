// Package backtest
package backtest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sungli01/stock-bot-sub000/internal/config"
	"github.com/sungli01/stock-bot-sub000/internal/db"
	"github.com/sungli01/stock-bot-sub000/internal/engine"
	"github.com/sungli01/stock-bot-sub000/internal/journal"
	"github.com/sungli01/stock-bot-sub000/internal/market"
	"github.com/sungli01/stock-bot-sub000/internal/position"
)

// ReasonStat aggregates trades sharing an exit reason.
type ReasonStat struct {
	Count    int     `json:"count"`
	TotalPnl float64 `json:"total_pnl"`
	AvgPct   float64 `json:"avg_pct"`
}

// Summary is the aggregate outcome of a multi-day backtest. FinalCapital is
// the carried (capped) capital; days chain through engine.Result.CarryOver
// while each day's reported ending capital stays uncapped.
type Summary struct {
	From           string                           `json:"from"`
	To             string                           `json:"to"`
	Days           []engine.Result                  `json:"days"`
	InitialCapital float64                          `json:"initial_capital"`
	FinalCapital   float64                          `json:"final_capital"`
	TotalReturnPct float64                          `json:"total_return_pct"`
	MaxDrawdownPct float64                          `json:"max_drawdown_pct"`
	TotalTrades    int                              `json:"total_trades"`
	Wins           int                              `json:"wins"`
	Losses         int                              `json:"losses"`
	WinRatePct     float64                          `json:"win_rate_pct"`
	ProfitFactor   float64                          `json:"profit_factor"`
	ReasonStats    map[position.ExitReason]ReasonStat `json:"reason_stats"`
	CapHit         bool                             `json:"cap_hit"`
	ErrorDays      int                              `json:"error_days"`
}

// Run executes the engine day by day over the provider's trading days,
// chaining capital across days through the compounding cap. Results and
// trades are persisted through storage; a day that fails to load is skipped
// and counted, never aborts the whole run.
func Run(ctx context.Context, cfg config.Config, provider market.Provider, storage db.Storage) (Summary, error) {
	days, err := provider.TradingDays(ctx, cfg.From, cfg.To)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list trading days: %w", err)
	}
	if len(days) == 0 {
		return Summary{}, fmt.Errorf("no trading days between %s and %s", cfg.FromStr, cfg.ToStr)
	}

	sum := Summary{
		From:           cfg.FromStr,
		To:             cfg.ToStr,
		InitialCapital: cfg.Engine.InitialCapitalKRW,
		ReasonStats:    make(map[position.ExitReason]ReasonStat),
	}

	capital := cfg.Engine.InitialCapitalKRW
	peak := capital
	reasonPcts := make(map[position.ExitReason][]float64)
	var grossWin, grossLoss float64

	for i, day := range days {
		bars, err := provider.DayBars(ctx, day)
		if err != nil {
			log.Printf("Backtest | Skipping %s: %v", day.Format("2006-01-02"), err)
			sum.ErrorDays++
			continue
		}

		result, err := engine.Run(cfg.Engine, capital, bars)
		if err != nil {
			return Summary{}, fmt.Errorf("day %s: %w", day.Format("2006-01-02"), err)
		}
		result.Date = day.Format("2006-01-02")

		log.Printf("Backtest | [%d/%d] %s: ₩%.0f → ₩%.0f (%+.2f%%), %d trades",
			i+1, len(days), result.Date, result.StartingCapital, result.EndingCapital,
			(result.EndingCapital/result.StartingCapital-1)*100, len(result.Trades))

		if storage != nil {
			if err := storage.SaveTrades(ctx, day, result.Trades); err != nil {
				log.Printf("Backtest | Failed to save trades for %s: %v", result.Date, err)
			}
			if err := storage.SaveDaySummary(ctx, db.DaySummary{
				Day:             day,
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
				log.Printf("Backtest | Failed to save summary for %s: %v", result.Date, err)
			}
			if err := storage.LogEvent(ctx, journal.Event{
				Time:        time.Now().UTC(),
				Type:        "day_summary",
				Description: result.Date,
				Data: map[string]any{
					"ending_capital": result.EndingCapital,
					"trades":         len(result.Trades),
					"error":          result.Error,
				},
			}); err != nil {
				log.Printf("Backtest | Failed to journal summary for %s: %v", result.Date, err)
			}
		}

		for _, t := range result.Trades {
			sum.TotalTrades++
			if t.RealizedPnl > 0 {
				sum.Wins++
				grossWin += t.RealizedPnl
			} else {
				sum.Losses++
				grossLoss += -t.RealizedPnl
			}
			stat := sum.ReasonStats[t.ExitReason]
			stat.Count++
			stat.TotalPnl += t.RealizedPnl
			sum.ReasonStats[t.ExitReason] = stat
			reasonPcts[t.ExitReason] = append(reasonPcts[t.ExitReason], t.PnlPct)
		}
		if result.Error != "" {
			sum.ErrorDays++
		}

		sum.Days = append(sum.Days, result)

		if result.CarryOver >= cfg.Engine.CompoundCapKRW {
			sum.CapHit = true
		}
		capital = result.CarryOver

		if capital > peak {
			peak = capital
		}
		if dd := (peak - capital) / peak * 100; dd > sum.MaxDrawdownPct {
			sum.MaxDrawdownPct = dd
		}
	}

	for reason, pcts := range reasonPcts {
		stat := sum.ReasonStats[reason]
		var total float64
		for _, p := range pcts {
			total += p
		}
		stat.AvgPct = total / float64(len(pcts))
		sum.ReasonStats[reason] = stat
	}

	sum.FinalCapital = capital
	sum.TotalReturnPct = (capital/sum.InitialCapital - 1) * 100
	if closed := sum.Wins + sum.Losses; closed > 0 {
		sum.WinRatePct = float64(sum.Wins) / float64(closed) * 100
	}
	if grossLoss > 0 {
		sum.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		sum.ProfitFactor = grossWin
	}

	printSummary(sum)
	if cfg.ResultsDir != "" {
		if err := saveResults(cfg.ResultsDir, sum); err != nil {
			log.Printf("Backtest | Failed to save results: %v", err)
		}
	}
	return sum, nil
}

func printSummary(s Summary) {
	log.Printf("Backtest | ===== %s ~ %s (%d days) =====", s.From, s.To, len(s.Days))
	log.Printf("Backtest | Initial: ₩%.0f → Final: ₩%.0f (%+.1f%%) MDD: %.1f%%",
		s.InitialCapital, s.FinalCapital, s.TotalReturnPct, s.MaxDrawdownPct)
	log.Printf("Backtest | Trades: %d (W:%d L:%d) WR: %.1f%% PF: %.2f",
		s.TotalTrades, s.Wins, s.Losses, s.WinRatePct, s.ProfitFactor)
	for reason, stat := range s.ReasonStats {
		log.Printf("Backtest |   %s: %d trades, avg %+.1f%%, total ₩%+.0f",
			reason, stat.Count, stat.AvgPct, stat.TotalPnl)
	}
	if s.ErrorDays > 0 {
		log.Printf("Backtest | WARNING: %d days reported errors or were skipped", s.ErrorDays)
	}
}

// saveResults writes the JSON summary and a flat CSV of all trades.
func saveResults(dir string, s Summary) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create results dir: %w", err)
	}

	jsonPath := filepath.Join(dir, fmt.Sprintf("backtest_%s_%s.json", s.From, s.To))
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	csvPath := filepath.Join(dir, fmt.Sprintf("trades_%s_%s.csv", s.From, s.To))
	f, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create trades csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"date", "ticker", "tier", "entry_price", "exit_price", "invested", "pnl_krw", "pnl_pct", "peak_pct", "exit_reason", "hold_min"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, day := range s.Days {
		for _, t := range day.Trades {
			row := []string{
				day.Date,
				t.Ticker,
				t.Tier.String(),
				strconv.FormatFloat(t.EntryPrice, 'f', 4, 64),
				strconv.FormatFloat(t.ExitPrice, 'f', 4, 64),
				strconv.FormatFloat(t.Invested, 'f', 0, 64),
				strconv.FormatFloat(t.RealizedPnl, 'f', 0, 64),
				strconv.FormatFloat(t.PnlPct, 'f', 2, 64),
				strconv.FormatFloat(t.PeakPct, 'f', 2, 64),
				string(t.ExitReason),
				strconv.FormatFloat(t.HoldingTime.Minutes(), 'f', 1, 64),
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("failed to write csv row: %w", err)
			}
		}
	}
	log.Printf("Backtest | Results saved to %s and %s", jsonPath, csvPath)
	return nil
}
