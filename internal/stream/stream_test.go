package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"candlekeeper/internal/model"
)

// tickCollector gathers handled quotes.
type tickCollector struct {
	mu     sync.Mutex
	quotes []model.Quote
	err    error
}

func (c *tickCollector) HandleTick(q model.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.quotes = append(c.quotes, q)
	return nil
}

func (c *tickCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.quotes)
}

func (c *tickCollector) last() model.Quote {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quotes[len(c.quotes)-1]
}

func (c *tickCollector) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func tickFrame(symbol, close string, eventTime int64) []byte {
	return []byte(fmt.Sprintf(
		`{"stream":"%s","data":{"e":"24hrMiniTicker","E":%d,"s":"%s","c":"%s","o":"1","h":"2","l":"0.5","v":"100","q":"200"}}`,
		streamName(symbol), eventTime, symbol, close,
	))
}

func testManagerConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Symbols = []string{"BTCUSDT"}
	cfg.ReconnectWait = 10 * time.Millisecond
	cfg.MaxReconnectWait = 50 * time.Millisecond
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestManager_DeliversTicks(t *testing.T) {
	eventTime := time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC).UnixMilli()

	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, tickFrame("BTCUSDT", "42000.5", eventTime))
		conn.WriteMessage(websocket.TextMessage, tickFrame("BTCUSDT", "42001.25", eventTime+1000))
		time.Sleep(time.Second)
	})
	defer server.Close()

	collector := &tickCollector{}
	m := NewManager(testManagerConfig(wsURL(server)), collector, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop(context.Background())

	waitFor(t, 2*time.Second, func() bool { return collector.count() == 2 })

	q := collector.last()
	if q.Symbol != "BTCUSDT" {
		t.Errorf("Symbol = %q, want %q", q.Symbol, "BTCUSDT")
	}
	if want := decimal.RequireFromString("42001.25"); !q.Price.Equal(want) {
		t.Errorf("Price = %s, want %s", q.Price, want)
	}
	if want := time.UnixMilli(eventTime + 1000).UTC(); !q.At.Equal(want) {
		t.Errorf("At = %v, want %v", q.At, want)
	}

	if got := m.Stats().Ticks; got != 2 {
		t.Errorf("Stats().Ticks = %d, want 2", got)
	}
}

func TestManager_ReconnectsAfterDrop(t *testing.T) {
	var conns atomic.Int32

	server := mockWSServer(t, func(conn *websocket.Conn) {
		n := conns.Add(1)
		conn.WriteMessage(websocket.TextMessage, tickFrame("BTCUSDT", "100", 1))
		if n == 1 {
			// Drop the first connection after one tick.
			return
		}
		time.Sleep(time.Second)
	})
	defer server.Close()

	collector := &tickCollector{}
	m := NewManager(testManagerConfig(wsURL(server)), collector, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop(context.Background())

	waitFor(t, 2*time.Second, func() bool { return collector.count() >= 2 })

	if got := conns.Load(); got < 2 {
		t.Errorf("connections = %d, want >= 2", got)
	}
	if got := m.Stats().Reconnects; got < 1 {
		t.Errorf("Stats().Reconnects = %d, want >= 1", got)
	}
}

func TestManager_BadFramesAreDropped(t *testing.T) {
	frames := [][]byte{
		[]byte(`not json`),
		[]byte(`{"stream":"btcusdt@miniTicker"}`),
		[]byte(`{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1,"s":"BTCUSDT","c":"junk"}}`),
		tickFrame("BTCUSDT", "99.5", 1),
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, f := range frames {
			conn.WriteMessage(websocket.TextMessage, f)
		}
		time.Sleep(time.Second)
	})
	defer server.Close()

	collector := &tickCollector{}
	m := NewManager(testManagerConfig(wsURL(server)), collector, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop(context.Background())

	waitFor(t, 2*time.Second, func() bool { return collector.count() == 1 })

	if got := m.Stats().Dropped; got != 3 {
		t.Errorf("Stats().Dropped = %d, want 3", got)
	}
	if want := decimal.RequireFromString("99.5"); !collector.last().Price.Equal(want) {
		t.Errorf("Price = %s, want %s", collector.last().Price, want)
	}
}

func TestManager_HandlerErrorKeepsStreamAlive(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, tickFrame("BTCUSDT", "1", 1))
		time.Sleep(100 * time.Millisecond)
		conn.WriteMessage(websocket.TextMessage, tickFrame("BTCUSDT", "2", 2))
		time.Sleep(time.Second)
	})
	defer server.Close()

	collector := &tickCollector{}
	collector.setErr(errors.New("cache down"))
	m := NewManager(testManagerConfig(wsURL(server)), collector, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop(context.Background())

	waitFor(t, 2*time.Second, func() bool { return m.Stats().Dropped >= 1 })
	collector.setErr(nil)

	waitFor(t, 2*time.Second, func() bool { return collector.count() == 1 })

	if got := m.Stats().Reconnects; got != 0 {
		t.Errorf("Stats().Reconnects = %d, want 0", got)
	}
}

func TestManager_StartStop(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	m := NewManager(testManagerConfig(wsURL(server)), &tickCollector{}, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return m.Stats().Connected })

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if m.Stats().Connected {
		t.Error("Stats().Connected = true after Stop, want false")
	}
}

func TestManager_StartRequiresSymbols(t *testing.T) {
	cfg := DefaultConfig()
	m := NewManager(cfg, &tickCollector{}, nil)

	if err := m.Start(context.Background()); err == nil {
		t.Error("Start with no symbols succeeded, want error")
	}
}

func TestCombinedStreamURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		symbols []string
		want    string
	}{
		{
			name:    "single symbol",
			base:    "wss://stream.binance.com:9443",
			symbols: []string{"BTCUSDT"},
			want:    "wss://stream.binance.com:9443/stream?streams=btcusdt@miniTicker",
		},
		{
			name:    "multiple symbols joined",
			base:    "wss://stream.binance.com:9443",
			symbols: []string{"BTCUSDT", "ETHUSDT"},
			want:    "wss://stream.binance.com:9443/stream?streams=btcusdt@miniTicker/ethusdt@miniTicker",
		},
		{
			name:    "trailing slash trimmed",
			base:    "ws://localhost:8080/",
			symbols: []string{"SOLUSDT"},
			want:    "ws://localhost:8080/stream?streams=solusdt@miniTicker",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CombinedStreamURL(tt.base, tt.symbols); got != tt.want {
				t.Errorf("CombinedStreamURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMiniTickerToQuote(t *testing.T) {
	ev := miniTickerEvent{
		EventType: "24hrMiniTicker",
		EventTime: 1704067200000,
		Symbol:    "BTCUSDT",
		Close:     "42000.55",
	}

	q, err := ev.toQuote()
	if err != nil {
		t.Fatalf("toQuote failed: %v", err)
	}
	if q.Symbol != "BTCUSDT" {
		t.Errorf("Symbol = %q, want %q", q.Symbol, "BTCUSDT")
	}
	if want := decimal.RequireFromString("42000.55"); !q.Price.Equal(want) {
		t.Errorf("Price = %s, want %s", q.Price, want)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !q.At.Equal(want) {
		t.Errorf("At = %v, want %v", q.At, want)
	}

	if _, err := (miniTickerEvent{Symbol: "X", Close: "bad"}).toQuote(); err == nil {
		t.Error("toQuote with bad close price succeeded, want error")
	}
	if _, err := (miniTickerEvent{Close: "1"}).toQuote(); err == nil {
		t.Error("toQuote with no symbol succeeded, want error")
	}
}
