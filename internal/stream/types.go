package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"candlekeeper/internal/model"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Message wraps raw frame data with a receive timestamp.
type Message struct {
	Data       []byte    // Raw message bytes from the WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// TickHandler consumes live price updates.
type TickHandler interface {
	HandleTick(q model.Quote) error
}

// TickHandlerFunc adapts a function to the TickHandler interface.
type TickHandlerFunc func(q model.Quote) error

// HandleTick calls f(q).
func (f TickHandlerFunc) HandleTick(q model.Quote) error {
	return f(q)
}

// streamEnvelope wraps every payload on a combined stream.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// miniTickerEvent is one 24hrMiniTicker payload.
type miniTickerEvent struct {
	EventType   string `json:"e"`
	EventTime   int64  `json:"E"` // Milliseconds since epoch
	Symbol      string `json:"s"`
	Close       string `json:"c"`
	Open        string `json:"o"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Volume      string `json:"v"`
	QuoteVolume string `json:"q"`
}

// toQuote converts the event to a latest-price snapshot.
func (e miniTickerEvent) toQuote() (model.Quote, error) {
	if e.Symbol == "" {
		return model.Quote{}, errors.New("event has no symbol")
	}
	price, err := decimal.NewFromString(e.Close)
	if err != nil {
		return model.Quote{}, fmt.Errorf("parse close price %q: %w", e.Close, err)
	}
	return model.Quote{
		Symbol: e.Symbol,
		Price:  price,
		At:     time.UnixMilli(e.EventTime).UTC(),
	}, nil
}

// streamName returns the combined-stream name for one symbol.
func streamName(symbol string) string {
	return strings.ToLower(symbol) + "@miniTicker"
}

// CombinedStreamURL builds the combined-stream endpoint URL subscribing
// the given symbols to their miniTicker streams.
func CombinedStreamURL(base string, symbols []string) string {
	names := make([]string, 0, len(symbols))
	for _, s := range symbols {
		names = append(names, streamName(s))
	}
	return strings.TrimSuffix(base, "/") + "/stream?streams=" + strings.Join(names, "/")
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // Full WebSocket URL including stream names
	PingTimeout  time.Duration // Max time without a server ping before the connection is stale
	WriteTimeout time.Duration // Write deadline for control frames
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults. The exchange pings
// every 20 seconds, so a missed-ping window of 90 seconds means the
// connection is gone.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1024,
	}
}

// Config configures the stream Manager.
type Config struct {
	URL              string        // Base WebSocket endpoint (no path)
	Symbols          []string      // Symbols to keep warm
	ReconnectWait    time.Duration // First reconnect delay
	MaxReconnectWait time.Duration // Backoff cap
	PingTimeout      time.Duration // Passed through to the client
	WriteTimeout     time.Duration // Passed through to the client
	BufferSize       int           // Passed through to the client
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:              "wss://stream.binance.com:9443",
		ReconnectWait:    time.Second,
		MaxReconnectWait: time.Minute,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1024,
	}
}
