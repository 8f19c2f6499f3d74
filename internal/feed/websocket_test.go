package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sungli01/stock-bot-sub000/internal/bar"
)

func TestWSFeed_DeliversBarsInOrder(t *testing.T) {
	upgrader := websocket.Upgrader{}
	done := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for i, msg := range []barMessage{
			{Ticker: "ABCD", TimeMs: 1767624600000, Open: 1.0, High: 1.02, Low: 0.99, Close: 1.01, Volume: 1000, DailyOpen: 1.0, DailyVolume: 1000},
			{Ticker: "ABCD", TimeMs: 1767624660000, Open: 1.01, High: 1.05, Low: 1.0, Close: 1.04, Volume: 2000, DailyOpen: 1.0, DailyVolume: 3000},
		} {
			require.NoError(t, conn.WriteJSON(msg), "message %d", i)
		}
		<-done
	}))
	defer srv.Close()
	defer close(done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewWSFeed("ws" + strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, f.Connect(ctx))
	defer f.Close()

	first := receiveBar(t, f)
	assert.Equal(t, "ABCD", first.Ticker)
	assert.Equal(t, time.UnixMilli(1767624600000).UTC(), first.Timestamp)
	assert.Equal(t, 1.01, first.Close)
	assert.Equal(t, 1000.0, first.DailyVolume)
	assert.NoError(t, first.Validate())

	second := receiveBar(t, f)
	assert.Equal(t, 1.04, second.Close)
	assert.True(t, second.Timestamp.After(first.Timestamp))
}

func TestWSFeed_ReportsReadFailure(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		// Slam the connection without a close frame.
		conn.Close()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewWSFeed("ws" + strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, f.Connect(ctx))
	defer f.Close()

	select {
	case err := <-f.Errs:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a feed error")
	}
}

func TestWSFeed_ConnectFailure(t *testing.T) {
	f := NewWSFeed("ws://127.0.0.1:1/bars")
	err := f.Connect(context.Background())
	assert.Error(t, err)
}

func receiveBar(t *testing.T, f *WSFeed) bar.Bar {
	t.Helper()
	select {
	case b, ok := <-f.Bars:
		require.True(t, ok, "bar channel closed early")
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a bar")
		return bar.Bar{}
	}
}
