package marketfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tradeServer upgrades each request, counts connections and pings, sends one
// trade frame and drops the connection shortly after to force a reconnect.
func tradeServer(t *testing.T, conns, pings *atomic.Int64) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns.Add(1)
		conn.SetPingHandler(func(string) error {
			pings.Add(1)
			return nil
		})

		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		_ = conn.WriteJSON(map[string]any{
			"type": "trade",
			"data": []map[string]any{
				{"s": "BTC", "p": 50000.0, "v": 0.5, "t": int64(1700000000000)},
			},
		})
		time.Sleep(80 * time.Millisecond)
		_ = conn.Close()
	}))
}

func TestClientReconnectCyclesWithoutWriterPileup(t *testing.T) {
	var conns, pings atomic.Int64
	srv := tradeServer(t, &conns, &pings)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New("", wsURL, []string{"BTC"}, 5*time.Millisecond, 10*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe(ctx))
	assert.True(t, c.IsConnected())

	// Each cycle reads until the server drops the conn, then reconnects. The
	// pinger from a dead connection must not survive into the next one.
	for cycle := 0; cycle < 3; cycle++ {
		ticks, errs := c.Read(ctx)

		select {
		case tick := <-ticks:
			require.NotNil(t, tick, "cycle %d delivered no tick", cycle)
			assert.Equal(t, "BTC", tick.Asset)
			assert.Equal(t, int64(1700000000), tick.Timestamp)
		case <-ctx.Done():
			t.Fatal("stream cycle timed out waiting for a tick")
		}

		// the server drops the conn; the reader surfaces it as a stream error
		select {
		case <-errs:
		case <-ctx.Done():
			t.Fatal("stream cycle timed out waiting for the drop")
		}

		if cycle < 2 {
			require.NoError(t, c.Reconnect(ctx))
			assert.True(t, c.IsConnected())
		}
	}

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())

	assert.GreaterOrEqual(t, conns.Load(), int64(3))
	assert.Greater(t, pings.Load(), int64(0))
}

func TestClientCloseIsIdempotent(t *testing.T) {
	var conns, pings atomic.Int64
	srv := tradeServer(t, &conns, &pings)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New("", wsURL, []string{"BTC"}, 5*time.Millisecond, 10*time.Millisecond, nil)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}
