// Package indicator
package indicator

import "math"

// Bollinger computes Bollinger bands over a rolling window of closes. The
// live seller uses an upper-band break as confirmation before arming the
// trailing stop.
type Bollinger struct {
	period int
	numStd float64
	closes []float64
}

// NewBollinger creates a Bollinger calculator with the given period and
// standard-deviation multiplier.
func NewBollinger(period int, numStd float64) *Bollinger {
	return &Bollinger{period: period, numStd: numStd}
}

// Push appends a close, trimming the window to the configured period.
func (b *Bollinger) Push(close float64) {
	b.closes = append(b.closes, close)
	if len(b.closes) > b.period {
		b.closes = b.closes[len(b.closes)-b.period:]
	}
}

// Bands returns (upper, middle, lower). ok is false until a full period of
// closes has been seen.
func (b *Bollinger) Bands() (upper, middle, lower float64, ok bool) {
	if len(b.closes) < b.period {
		return 0, 0, 0, false
	}
	var sum float64
	for _, c := range b.closes {
		sum += c
	}
	mean := sum / float64(len(b.closes))
	var variance float64
	for _, c := range b.closes {
		d := c - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(b.closes)))
	return mean + b.numStd*std, mean, mean - b.numStd*std, true
}
