// Package feed
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sungli01/stock-bot-sub000/internal/bar"
	"github.com/sungli01/stock-bot-sub000/internal/utils"
)

// barMessage is the wire shape of one per-minute bar on the feed.
type barMessage struct {
	Ticker      string  `json:"ticker"`
	TimeMs      int64   `json:"time_ms"`
	Open        float64 `json:"o"`
	High        float64 `json:"h"`
	Low         float64 `json:"l"`
	Close       float64 `json:"c"`
	Volume      float64 `json:"v"`
	DailyOpen   float64 `json:"daily_open"`
	DailyVolume float64 `json:"daily_volume_so_far"`
}

func (m barMessage) toBar() bar.Bar {
	return bar.Bar{
		Ticker:      m.Ticker,
		Timestamp:   time.UnixMilli(m.TimeMs).UTC(),
		Open:        m.Open,
		High:        m.High,
		Low:         m.Low,
		Close:       m.Close,
		Volume:      m.Volume,
		DailyOpen:   m.DailyOpen,
		DailyVolume: m.DailyVolume,
	}
}

// WSFeed receives per-minute bars over a WebSocket connection and delivers
// them on a channel, one at a time, in arrival order. The consumer fully
// processes each bar before reading the next, which keeps the engine's
// per-bar ordering guarantees intact in live mode.
type WSFeed struct {
	url  string
	conn *websocket.Conn
	mu   sync.Mutex

	Bars chan bar.Bar
	Errs chan error

	ReadTimeout  time.Duration
	PingInterval time.Duration
}

// NewWSFeed creates a feed client for the given URL.
func NewWSFeed(url string) *WSFeed {
	return &WSFeed{
		url:          url,
		Bars:         make(chan bar.Bar), // unbuffered: one bar admitted at a time
		Errs:         make(chan error, 10),
		ReadTimeout:  60 * time.Second,
		PingInterval: 20 * time.Second,
	}
}

// Connect dials the feed and starts the read and ping loops. The loops stop
// when ctx is cancelled; cancellation means "stop feeding bars", leaving
// the consumer's open positions exactly as they are.
func (f *WSFeed) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial feed %s: %w", f.url, err)
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	utils.GetLogger().Printf("Feed | Connected to %s", f.url)

	go f.readLoop(ctx)
	go f.pingLoop(ctx)
	return nil
}

func (f *WSFeed) readLoop(ctx context.Context) {
	defer close(f.Bars)
	for {
		if err := f.conn.SetReadDeadline(time.Now().Add(f.ReadTimeout)); err != nil {
			f.fail(ctx, fmt.Errorf("feed set read deadline: %w", err))
			return
		}
		_, payload, err := f.conn.ReadMessage()
		if err != nil {
			f.fail(ctx, fmt.Errorf("feed read: %w", err))
			return
		}
		var msg barMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			f.fail(ctx, fmt.Errorf("feed decode: %w", err))
			return
		}
		select {
		case f.Bars <- msg.toBar():
		case <-ctx.Done():
			return
		}
	}
}

func (f *WSFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(f.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.Lock()
			err := f.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			f.mu.Unlock()
			if err != nil {
				f.fail(ctx, fmt.Errorf("feed ping: %w", err))
				return
			}
		}
	}
}

func (f *WSFeed) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	select {
	case f.Errs <- err:
	default:
	}
}

// Close tears down the connection.
func (f *WSFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}
