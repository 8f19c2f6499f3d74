package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/sungli01/stock-bot-sub000/internal/bar"
	"github.com/sungli01/stock-bot-sub000/internal/journal"
	"github.com/sungli01/stock-bot-sub000/internal/position"
)

// Postgres is the lib/pq backed Storage.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool and ensures the schema exists.
func NewPostgres(connStr string, maxOpen, maxIdle int) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.initSchema(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bars (
		ticker TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		open DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		low DOUBLE PRECISION NOT NULL,
		close DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL,
		daily_open DOUBLE PRECISION NOT NULL,
		daily_volume DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (ticker, timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_bars_day ON bars (date_trunc('day', timestamp));

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		day DATE NOT NULL,
		ticker TEXT NOT NULL,
		tier INT NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		exit_price DOUBLE PRECISION NOT NULL,
		entry_time TIMESTAMPTZ NOT NULL,
		exit_time TIMESTAMPTZ NOT NULL,
		invested DOUBLE PRECISION NOT NULL,
		commission DOUBLE PRECISION NOT NULL,
		realized_pnl DOUBLE PRECISION NOT NULL,
		pnl_pct DOUBLE PRECISION NOT NULL,
		peak_pct DOUBLE PRECISION NOT NULL,
		exit_reason TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_day ON trades (day);

	CREATE TABLE IF NOT EXISTS day_summaries (
		day DATE PRIMARY KEY,
		starting_capital DOUBLE PRECISION NOT NULL,
		ending_capital DOUBLE PRECISION NOT NULL,
		carry_over DOUBLE PRECISION NOT NULL,
		realized_pnl DOUBLE PRECISION NOT NULL,
		trade_count INT NOT NULL,
		wins INT NOT NULL,
		losses INT NOT NULL,
		spike_count INT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS events (
		id SERIAL PRIMARY KEY,
		time TIMESTAMPTZ NOT NULL,
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		data JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_events_type_time ON events (type, time);
	`
	if _, err := p.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

func (p *Postgres) SaveBars(ctx context.Context, bars []bar.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("invalid bar at index %d for %s at %s: %w", i, b.Ticker, b.Timestamp, err)
		}
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (ticker, timestamp, open, high, low, close, volume, daily_open, daily_volume)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (ticker, timestamp) DO UPDATE SET
			open=EXCLUDED.open, high=EXCLUDED.high, low=EXCLUDED.low,
			close=EXCLUDED.close, volume=EXCLUDED.volume,
			daily_open=EXCLUDED.daily_open, daily_volume=EXCLUDED.daily_volume`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare bar insert: %w", err)
	}
	defer stmt.Close()
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Ticker, b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume, b.DailyOpen, b.DailyVolume); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to save bar for %s at %s: %w", b.Ticker, b.Timestamp, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bars: %w", err)
	}
	return nil
}

func (p *Postgres) TradingDays(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT date_trunc('day', timestamp) AS day FROM bars
		WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY day`, from.UTC(), to.UTC().Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to query trading days: %w", err)
	}
	defer rows.Close()
	var days []time.Time
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("failed to scan trading day: %w", err)
		}
		days = append(days, day.UTC())
	}
	return days, rows.Err()
}

func (p *Postgres) DayBars(ctx context.Context, day time.Time) ([]bar.Bar, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)
	rows, err := p.db.QueryContext(ctx, `
		SELECT ticker, timestamp, open, high, low, close, volume, daily_open, daily_volume
		FROM bars WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY timestamp, ticker`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query day bars: %w", err)
	}
	defer rows.Close()
	var bars []bar.Bar
	for rows.Next() {
		var b bar.Bar
		if err := rows.Scan(&b.Ticker, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.DailyOpen, &b.DailyVolume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

func (p *Postgres) SaveTrades(ctx context.Context, day time.Time, trades []position.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (id, day, ticker, tier, entry_price, exit_price, entry_time, exit_time,
			invested, commission, realized_pnl, pnl_pct, peak_pct, exit_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare trade insert: %w", err)
	}
	defer stmt.Close()
	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx, t.ID, day.UTC().Truncate(24*time.Hour), t.Ticker, int(t.Tier),
			t.EntryPrice, t.ExitPrice, t.EntryTime.UTC(), t.ExitTime.UTC(),
			t.Invested, t.Commission, t.RealizedPnl, t.PnlPct, t.PeakPct, string(t.ExitReason)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to save trade %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trades: %w", err)
	}
	return nil
}

func (p *Postgres) SaveDaySummary(ctx context.Context, s DaySummary) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO day_summaries (day, starting_capital, ending_capital, carry_over, realized_pnl,
			trade_count, wins, losses, spike_count, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (day) DO UPDATE SET
			starting_capital=EXCLUDED.starting_capital, ending_capital=EXCLUDED.ending_capital,
			carry_over=EXCLUDED.carry_over, realized_pnl=EXCLUDED.realized_pnl,
			trade_count=EXCLUDED.trade_count, wins=EXCLUDED.wins, losses=EXCLUDED.losses,
			spike_count=EXCLUDED.spike_count, error=EXCLUDED.error`,
		s.Day.UTC().Truncate(24*time.Hour), s.StartingCapital, s.EndingCapital, s.CarryOver,
		s.RealizedPnl, s.TradeCount, s.Wins, s.Losses, s.SpikeCount, s.Error)
	if err != nil {
		return fmt.Errorf("failed to save day summary for %s: %w", s.Day.Format("2006-01-02"), err)
	}
	return nil
}

func (p *Postgres) GetDaySummaries(ctx context.Context, from, to time.Time) ([]DaySummary, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT day, starting_capital, ending_capital, carry_over, realized_pnl,
			trade_count, wins, losses, spike_count, error
		FROM day_summaries WHERE day >= $1 AND day <= $2 ORDER BY day`,
		from.UTC().Truncate(24*time.Hour), to.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to query day summaries: %w", err)
	}
	defer rows.Close()
	var out []DaySummary
	for rows.Next() {
		var s DaySummary
		if err := rows.Scan(&s.Day, &s.StartingCapital, &s.EndingCapital, &s.CarryOver, &s.RealizedPnl,
			&s.TradeCount, &s.Wins, &s.Losses, &s.SpikeCount, &s.Error); err != nil {
			return nil, fmt.Errorf("failed to scan day summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) LogEvent(ctx context.Context, event journal.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, `
		INSERT INTO events (time, type, description, data) VALUES ($1,$2,$3,$4)`,
		event.Time.UTC(), event.Type, event.Description, data); err != nil {
		return fmt.Errorf("failed to log event: %w", err)
	}
	return nil
}

func (p *Postgres) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT time, type, description, data FROM events
		WHERE ($1 = '' OR type = $1) AND time >= $2 AND time <= $3
		ORDER BY time`, eventType, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	var out []journal.Event
	for rows.Next() {
		var e journal.Event
		var data []byte
		if err := rows.Scan(&e.Time, &e.Type, &e.Description, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error { return p.db.Close() }
