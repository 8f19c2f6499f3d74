package bar

import "fmt"

// Aggregator keeps, per ticker, a rolling buffer of the most recent raw bars
// and derives the two most recent aggregation windows from it. Only
// 2×windowSize bars are retained per ticker; older history is not needed
// because the volume-ratio comparison looks one window back at most.
type Aggregator struct {
	windowSize int
	buffers    map[string][]Bar
}

// NewAggregator creates an aggregator for the given window length in bars
// (e.g. 3 for 3-minute windows over 1-minute bars).
func NewAggregator(windowSize int) (*Aggregator, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}
	return &Aggregator{
		windowSize: windowSize,
		buffers:    make(map[string][]Bar),
	}, nil
}

// Push appends a bar to the ticker's rolling buffer, trimming it to the
// last 2×windowSize bars.
func (a *Aggregator) Push(b Bar) {
	buf := append(a.buffers[b.Ticker], b)
	if max := 2 * a.windowSize; len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	a.buffers[b.Ticker] = buf
}

// Windows returns the current and previous completed windows for a ticker.
// ok is false until the buffer holds two full windows; callers skip the
// volume comparison for that bar rather than treating it as an error.
func (a *Aggregator) Windows(ticker string) (current, previous Window, ok bool) {
	buf := a.buffers[ticker]
	if len(buf) < 2*a.windowSize {
		return Window{}, Window{}, false
	}
	current = combine(buf[len(buf)-a.windowSize:])
	previous = combine(buf[len(buf)-2*a.windowSize : len(buf)-a.windowSize])
	return current, previous, true
}

// LastClose returns the most recent buffered close for a ticker, used for
// end-of-day liquidation when no fresher price exists.
func (a *Aggregator) LastClose(ticker string) (float64, bool) {
	buf := a.buffers[ticker]
	if len(buf) == 0 {
		return 0, false
	}
	return buf[len(buf)-1].Close, true
}
