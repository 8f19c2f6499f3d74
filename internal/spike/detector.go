// Package spike
package spike

import (
	"github.com/sungli01/stock-bot-sub000/internal/bar"
	"github.com/sungli01/stock-bot-sub000/internal/config"
	"github.com/sungli01/stock-bot-sub000/internal/position"
)

// Detector flags a ticker the moment its latest aggregation window's volume
// exceeds a tier-dependent multiple of the prior window's volume.
type Detector struct {
	cfg config.EngineConfig
}

// NewDetector builds a detector from a validated engine config.
func NewDetector(cfg config.EngineConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Signal carries the context of a flagged spike.
type Signal struct {
	Ticker         string
	Tier           position.Tier
	VolumeRatioPct float64
	Price          float64
}

// Detect compares the two most recent windows for a ticker and reports
// whether a spike fired for the given tier. A zero previous-window volume
// skips the comparison entirely; a no-spike outcome is normal control flow,
// not an error.
//
// First-tier candidates must additionally sit inside the tradable price
// band and the percent-change-from-day-open band. Additional tiers are
// exempt from both: momentum on the ticker was already validated once
// today. The relaxation is deliberate and tunable via the config bands.
func (d *Detector) Detect(b bar.Bar, current, previous bar.Window, tier position.Tier) (Signal, bool) {
	if previous.Volume <= 0 || current.Volume <= 0 {
		return Signal{}, false
	}
	ratio := current.Volume / previous.Volume * 100
	if ratio < d.cfg.SpikeThresholdPct.ForTier(int(tier)) {
		return Signal{}, false
	}

	if !tier.Additional() {
		if b.Close < d.cfg.MinPrice || b.Close > d.cfg.MaxPrice {
			return Signal{}, false
		}
		changeFromOpen := (b.Close/b.DailyOpen - 1) * 100
		if changeFromOpen < d.cfg.CandidateChangePct || changeFromOpen >= d.cfg.CandidateMaxChangePct {
			return Signal{}, false
		}
	}

	return Signal{
		Ticker:         b.Ticker,
		Tier:           tier,
		VolumeRatioPct: ratio,
		Price:          b.Close,
	}, true
}
