// Package config
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

/*
YAML config example:

mode: "backtest"
db_conn_str: "postgres://..."
from: "2025-11-15"
to: "2026-02-18"
initial_capital_krw: 1000000
compound_cap_krw: 25000000
max_positions: 2
allocation_ratio: [0.7, 0.3]
engine:
  window_bars: 3
  min_price: 0.70
  max_price: 30.0
  spike_threshold_pct: {first: 1000, second: 200, third: 200}
  trigger_pct: {first: 20, second: 15, third: 15}
  max_pct_from_queue: 40
  queue_expire_min: 30
  stop_loss_pct: -15
  max_hold_min: 120
  trailing_activate_pct: {first: 6, second: 8, third: 10}
  trailing_base_drop_pct: {first: 2.0, second: 1.0, third: 0.5}
  trailing_steps:
    - {min_peak_pct: 80, drop_pct: 30}
    - {min_peak_pct: 50, drop_pct: 8}
    - {min_peak_pct: 15, drop_pct: 5}
*/

// TierValues holds one tunable per entry tier.
type TierValues struct {
	First  float64 `yaml:"first"`
	Second float64 `yaml:"second"`
	Third  float64 `yaml:"third"`
}

// ForTier returns the value for a 1-based tier ordinal. Tiers beyond the
// third reuse the third's value.
func (t TierValues) ForTier(tier int) float64 {
	switch tier {
	case 1:
		return t.First
	case 2:
		return t.Second
	default:
		return t.Third
	}
}

// TrailingStep is one rung of the staircase trailing floor: positions whose
// peak profit reached MinPeakPct are allowed DropPct percentage points of
// drawdown from peak.
type TrailingStep struct {
	MinPeakPct float64 `yaml:"min_peak_pct"`
	DropPct    float64 `yaml:"drop_pct"`
}

// EngineConfig is the flat options record the engine is constructed from.
// Every field is required; Validate rejects a half-populated record instead
// of substituting defaults inside evaluation branches.
type EngineConfig struct {
	WindowBars int `yaml:"window_bars"`

	MinPrice float64 `yaml:"min_price"`
	MaxPrice float64 `yaml:"max_price"`

	SpikeThresholdPct TierValues `yaml:"spike_threshold_pct"`
	TriggerPct        TierValues `yaml:"trigger_pct"`
	MaxPctFromQueue   float64    `yaml:"max_pct_from_queue"`
	QueueExpireMin    int        `yaml:"queue_expire_min"`

	// First-tier candidates must sit inside this percent-change-from-open
	// band; additional tiers are exempt.
	CandidateChangePct    float64 `yaml:"candidate_change_pct"`
	CandidateMaxChangePct float64 `yaml:"candidate_max_change_pct"`

	// First-tier minimum realized daily volume, split at HighPriceCutoff.
	MinDailyVolumeLow  float64 `yaml:"min_daily_volume_low"`
	MinDailyVolumeHigh float64 `yaml:"min_daily_volume_high"`
	HighPriceCutoff    float64 `yaml:"high_price_cutoff"`

	StopLossPct float64 `yaml:"stop_loss_pct"` // negative
	MaxHoldMin  int     `yaml:"max_hold_min"`

	TrailingActivatePct       TierValues     `yaml:"trailing_activate_pct"`
	TrailingBaseDropPct       TierValues     `yaml:"trailing_base_drop_pct"`
	TrailingSteps             []TrailingStep `yaml:"trailing_steps"`
	TrailingTightenAfterMin   int            `yaml:"trailing_tighten_after_min"`
	TrailingTightenMultiplier float64        `yaml:"trailing_tighten_multiplier"`

	MaxPositions    int       `yaml:"max_positions"`
	AllocationRatio []float64 `yaml:"allocation_ratio"`
	MaxTiers        int       `yaml:"max_tiers"`

	// Liquidity cap: committed capital may not exceed this fraction of the
	// share volume traded since the ticker was queued, valued at the current
	// price in KRW.
	VolCapPct  TierValues `yaml:"vol_cap_pct"`
	USDKRWRate float64    `yaml:"usd_krw_rate"`

	InitialCapitalKRW float64 `yaml:"initial_capital_krw"`
	CompoundCapKRW    float64 `yaml:"compound_cap_krw"`
	MaxSingleBuyKRW   float64 `yaml:"max_single_buy_krw"`

	SlippageBuyPct  float64 `yaml:"slippage_buy_pct"`
	SlippageSellPct float64 `yaml:"slippage_sell_pct"`
	CommissionPct   float64 `yaml:"commission_pct"`

	// A stop-lossed ticker is blocked from re-queueing for the rest of the
	// day when set.
	BlockAfterStopLoss bool `yaml:"block_after_stop_loss"`
}

// Validate fails at construction time on any missing or inconsistent
// threshold.
func (e EngineConfig) Validate() error {
	if e.WindowBars <= 0 {
		return fmt.Errorf("window_bars must be positive, got %d", e.WindowBars)
	}
	if e.MinPrice <= 0 || e.MaxPrice <= e.MinPrice {
		return fmt.Errorf("price band [%v, %v] is invalid", e.MinPrice, e.MaxPrice)
	}
	for tier := 1; tier <= 3; tier++ {
		if e.SpikeThresholdPct.ForTier(tier) <= 0 {
			return fmt.Errorf("spike_threshold_pct for tier %d is missing", tier)
		}
		if e.TriggerPct.ForTier(tier) <= 0 {
			return fmt.Errorf("trigger_pct for tier %d is missing", tier)
		}
		if e.TrailingActivatePct.ForTier(tier) <= 0 {
			return fmt.Errorf("trailing_activate_pct for tier %d is missing", tier)
		}
		if e.TrailingBaseDropPct.ForTier(tier) <= 0 {
			return fmt.Errorf("trailing_base_drop_pct for tier %d is missing", tier)
		}
		if e.VolCapPct.ForTier(tier) <= 0 {
			return fmt.Errorf("vol_cap_pct for tier %d is missing", tier)
		}
	}
	if e.MaxPctFromQueue <= 0 {
		return fmt.Errorf("max_pct_from_queue must be positive, got %v", e.MaxPctFromQueue)
	}
	if e.QueueExpireMin <= 0 {
		return fmt.Errorf("queue_expire_min must be positive, got %d", e.QueueExpireMin)
	}
	if e.CandidateMaxChangePct <= e.CandidateChangePct {
		return fmt.Errorf("candidate band [%v, %v) is invalid", e.CandidateChangePct, e.CandidateMaxChangePct)
	}
	if e.MinDailyVolumeLow <= 0 || e.MinDailyVolumeHigh <= 0 || e.HighPriceCutoff <= 0 {
		return fmt.Errorf("minimum daily volume thresholds are missing")
	}
	if e.StopLossPct >= 0 {
		return fmt.Errorf("stop_loss_pct must be negative, got %v", e.StopLossPct)
	}
	if e.MaxHoldMin <= 0 {
		return fmt.Errorf("max_hold_min must be positive, got %d", e.MaxHoldMin)
	}
	if len(e.TrailingSteps) == 0 {
		return fmt.Errorf("trailing_steps must not be empty")
	}
	for i := 1; i < len(e.TrailingSteps); i++ {
		if e.TrailingSteps[i].MinPeakPct >= e.TrailingSteps[i-1].MinPeakPct {
			return fmt.Errorf("trailing_steps must be sorted by descending min_peak_pct")
		}
	}
	if e.TrailingTightenAfterMin <= 0 {
		return fmt.Errorf("trailing_tighten_after_min must be positive, got %d", e.TrailingTightenAfterMin)
	}
	if e.TrailingTightenMultiplier <= 0 || e.TrailingTightenMultiplier > 1 {
		return fmt.Errorf("trailing_tighten_multiplier must be in (0, 1], got %v", e.TrailingTightenMultiplier)
	}
	if e.MaxPositions <= 0 {
		return fmt.Errorf("max_positions must be positive, got %d", e.MaxPositions)
	}
	if len(e.AllocationRatio) == 0 {
		return fmt.Errorf("allocation_ratio must not be empty")
	}
	for i, r := range e.AllocationRatio {
		if r <= 0 || r > 1 {
			return fmt.Errorf("allocation_ratio[%d] must be in (0, 1], got %v", i, r)
		}
	}
	if e.MaxTiers <= 0 {
		return fmt.Errorf("max_tiers must be positive, got %d", e.MaxTiers)
	}
	if e.USDKRWRate <= 0 {
		return fmt.Errorf("usd_krw_rate must be positive, got %v", e.USDKRWRate)
	}
	if e.InitialCapitalKRW <= 0 {
		return fmt.Errorf("initial_capital_krw must be positive, got %v", e.InitialCapitalKRW)
	}
	if e.CompoundCapKRW <= 0 {
		return fmt.Errorf("compound_cap_krw must be positive, got %v", e.CompoundCapKRW)
	}
	if e.MaxSingleBuyKRW <= 0 {
		return fmt.Errorf("max_single_buy_krw must be positive, got %v", e.MaxSingleBuyKRW)
	}
	if e.SlippageBuyPct < 0 || e.SlippageSellPct < 0 || e.CommissionPct < 0 {
		return fmt.Errorf("slippage and commission rates cannot be negative")
	}
	return nil
}

// QueueExpire returns the queue expiry window as a duration.
func (e EngineConfig) QueueExpire() time.Duration {
	return time.Duration(e.QueueExpireMin) * time.Minute
}

// MaxHold returns the maximum holding duration.
func (e EngineConfig) MaxHold() time.Duration {
	return time.Duration(e.MaxHoldMin) * time.Minute
}

// MinDailyVolume returns the first-tier realized-volume requirement for a
// given price.
func (e EngineConfig) MinDailyVolume(price float64) float64 {
	if price >= e.HighPriceCutoff {
		return e.MinDailyVolumeHigh
	}
	return e.MinDailyVolumeLow
}

// Config is the top-level application configuration.
type Config struct {
	Mode      string `yaml:"mode"` // "backtest" or "live"
	DBConnStr string `yaml:"db_conn_str"`
	DBMaxOpen int    `yaml:"db_max_open"`
	DBMaxIdle int    `yaml:"db_max_idle"`

	From time.Time `yaml:"-"`
	To   time.Time `yaml:"-"`

	FromStr string `yaml:"from"`
	ToStr   string `yaml:"to"`

	FeedURL             string        `yaml:"feed_url"`
	MetricsAddr         string        `yaml:"metrics_addr"`
	TelegramToken       string        `yaml:"telegram_token"`
	TelegramChatID      string        `yaml:"telegram_chat_id"`
	NotificationRetries int           `yaml:"notification_retries"`
	NotificationDelay   time.Duration `yaml:"notification_delay"`

	ForceCloseBeforeMin int     `yaml:"force_close_before_min"`
	BollingerConfirm    bool    `yaml:"bollinger_confirm"`
	BollingerPeriod     int     `yaml:"bollinger_period"`
	BollingerStd        float64 `yaml:"bollinger_std"`

	ResultsDir string `yaml:"results_dir"`

	Engine EngineConfig `yaml:"engine"`
}

// Validate checks the whole record, including the engine section.
func (c Config) Validate() error {
	switch c.Mode {
	case "backtest", "live":
	default:
		return fmt.Errorf("mode must be backtest or live, got %q", c.Mode)
	}
	if c.Mode == "backtest" && (c.From.IsZero() || c.To.IsZero() || !c.From.Before(c.To)) {
		return fmt.Errorf("backtest date range [%s, %s] is invalid", c.FromStr, c.ToStr)
	}
	if c.Mode == "live" && c.FeedURL == "" {
		return fmt.Errorf("live mode requires feed_url")
	}
	if c.ForceCloseBeforeMin < 0 {
		return fmt.Errorf("force_close_before_min cannot be negative, got %d", c.ForceCloseBeforeMin)
	}
	if c.BollingerConfirm && (c.BollingerPeriod <= 1 || c.BollingerStd <= 0) {
		return fmt.Errorf("bollinger confirmation requires period > 1 and positive std, got %d/%v", c.BollingerPeriod, c.BollingerStd)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	return nil
}

// Load reads configuration from flags and an optional YAML file. Flag values
// fill the top-level record; the engine section always comes from the file
// when one is given, otherwise from DefaultEngine.
func Load() (Config, error) {
	mode := flag.String("mode", "backtest", "Mode: backtest or live")
	from := flag.String("from", "", "Backtest start date (YYYY-MM-DD)")
	to := flag.String("to", "", "Backtest end date (YYYY-MM-DD)")
	feedURL := flag.String("feed-url", "", "WebSocket bar feed URL for live mode")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics listen address")
	telegramToken := flag.String("telegram-token", "", "Telegram bot token for notifications")
	telegramChatID := flag.String("telegram-chat", "", "Telegram chat ID for notifications")
	resultsDir := flag.String("results-dir", "results", "Directory for backtest result files")
	configFile := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg := Config{
		Mode:                *mode,
		DBConnStr:           os.Getenv("DB_CONN_STR"),
		DBMaxOpen:           10,
		DBMaxIdle:           5,
		FromStr:             *from,
		ToStr:               *to,
		FeedURL:             *feedURL,
		MetricsAddr:         *metricsAddr,
		TelegramToken:       *telegramToken,
		TelegramChatID:      *telegramChatID,
		NotificationRetries: 3,
		NotificationDelay:   5 * time.Second,
		ForceCloseBeforeMin: 15,
		BollingerPeriod:     20,
		BollingerStd:        2,
		ResultsDir:          *resultsDir,
		Engine:              DefaultEngine(),
	}

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if cfg.FromStr != "" {
		t, err := time.Parse("2006-01-02", cfg.FromStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid from date %q: %w", cfg.FromStr, err)
		}
		cfg.From = t
	}
	if cfg.ToStr != "" {
		t, err := time.Parse("2006-01-02", cfg.ToStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid to date %q: %w", cfg.ToStr, err)
		}
		cfg.To = t
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultEngine returns the sweep-validated production parameters.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		WindowBars: 3,
		MinPrice:   0.70,
		MaxPrice:   30.0,

		SpikeThresholdPct: TierValues{First: 1000, Second: 200, Third: 200},
		TriggerPct:        TierValues{First: 20, Second: 15, Third: 15},
		MaxPctFromQueue:   40,
		QueueExpireMin:    30,

		CandidateChangePct:    5,
		CandidateMaxChangePct: 20,

		MinDailyVolumeLow:  300_000,
		MinDailyVolumeHigh: 50_000,
		HighPriceCutoff:    10,

		StopLossPct: -15,
		MaxHoldMin:  120,

		TrailingActivatePct: TierValues{First: 6, Second: 8, Third: 10},
		TrailingBaseDropPct: TierValues{First: 2.0, Second: 1.0, Third: 0.5},
		TrailingSteps: []TrailingStep{
			{MinPeakPct: 80, DropPct: 30},
			{MinPeakPct: 50, DropPct: 8},
			{MinPeakPct: 15, DropPct: 5},
		},
		TrailingTightenAfterMin:   30,
		TrailingTightenMultiplier: 0.8,

		MaxPositions:    2,
		AllocationRatio: []float64{0.7, 0.3},
		MaxTiers:        3,
		VolCapPct:       TierValues{First: 30, Second: 10, Third: 10},
		USDKRWRate:      1450,

		InitialCapitalKRW: 1_000_000,
		CompoundCapKRW:    25_000_000,
		MaxSingleBuyKRW:   50_000_000,

		SlippageBuyPct:  0.5,
		SlippageSellPct: 0.5,
		CommissionPct:   0.1,

		BlockAfterStopLoss: true,
	}
}
