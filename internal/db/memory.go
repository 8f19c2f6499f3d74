package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sungli01/stock-bot-sub000/internal/bar"
	"github.com/sungli01/stock-bot-sub000/internal/journal"
	"github.com/sungli01/stock-bot-sub000/internal/position"
)

// MemoryStorage is the in-memory Storage used by tests and dry runs.
type MemoryStorage struct {
	mu sync.RWMutex

	// Bars keyed by day (UTC midnight)
	bars map[time.Time][]bar.Bar

	// Trades keyed by day
	trades map[time.Time][]position.Trade

	summaries map[time.Time]DaySummary

	// Events (append-only)
	events []journal.Event
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		bars:      make(map[time.Time][]bar.Bar),
		trades:    make(map[time.Time][]position.Trade),
		summaries: make(map[time.Time]DaySummary),
		events:    make([]journal.Event, 0, 1024),
	}
}

func dayKey(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

func (m *MemoryStorage) SaveBars(ctx context.Context, bars []bar.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			return err
		}
		key := dayKey(b.Timestamp)
		m.bars[key] = append(m.bars[key], b)
	}
	return nil
}

func (m *MemoryStorage) TradingDays(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var days []time.Time
	for day := range m.bars {
		if !day.Before(dayKey(from)) && !day.After(dayKey(to)) {
			days = append(days, day)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

// DayBars returns the day's bars merged across tickers in chronological
// order, ties broken by ticker for a deterministic stream.
func (m *MemoryStorage) DayBars(ctx context.Context, day time.Time) ([]bar.Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.bars[dayKey(day)]
	out := make([]bar.Bar, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out, nil
}

func (m *MemoryStorage) SaveTrades(ctx context.Context, day time.Time, trades []position.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dayKey(day)
	m.trades[key] = append(m.trades[key], trades...)
	return nil
}

func (m *MemoryStorage) SaveDaySummary(ctx context.Context, s DaySummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[dayKey(s.Day)] = s
	return nil
}

func (m *MemoryStorage) GetDaySummaries(ctx context.Context, from, to time.Time) ([]DaySummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []DaySummary
	for day, s := range m.summaries {
		if !day.Before(dayKey(from)) && !day.After(dayKey(to)) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (m *MemoryStorage) LogEvent(ctx context.Context, event journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryStorage) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []journal.Event
	for _, e := range m.events {
		if eventType != "" && e.Type != eventType {
			continue
		}
		if e.Time.Before(start) || e.Time.After(end) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryStorage) Close() error { return nil }
