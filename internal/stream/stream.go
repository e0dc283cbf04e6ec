package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ManagerStats provides statistics about the stream manager.
type ManagerStats struct {
	Connected  bool
	Ticks      int64
	Dropped    int64
	Reconnects int64
}

// Manager holds the combined-stream connection open and feeds decoded
// ticks to the handler. A dropped connection is retried with doubling
// backoff; a successful connect resets the backoff.
type Manager struct {
	cfg     Config
	handler TickHandler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	client Client

	ticks      atomic.Int64
	dropped    atomic.Int64
	reconnects atomic.Int64
}

// NewManager creates a new stream Manager.
func NewManager(cfg Config, handler TickHandler, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}
}

// Start begins streaming. The connection is established on the manager
// goroutine, so a cold endpoint delays ticks rather than failing Start.
func (m *Manager) Start(ctx context.Context) error {
	if len(m.cfg.Symbols) == 0 {
		return errors.New("no symbols to stream")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("stream manager started",
		"url", m.cfg.URL,
		"symbols", len(m.cfg.Symbols),
	)
	return nil
}

// Stop closes the connection and waits for the manager goroutine to
// wind down or for ctx to expire.
func (m *Manager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	if c := m.currentClient(); c != nil {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("stream manager stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("stream manager stop timed out")
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	st := ManagerStats{
		Ticks:      m.ticks.Load(),
		Dropped:    m.dropped.Load(),
		Reconnects: m.reconnects.Load(),
	}
	if c := m.currentClient(); c != nil {
		st.Connected = c.IsConnected()
	}
	return st
}

// run owns the connect/consume/reconnect cycle.
func (m *Manager) run() {
	defer m.wg.Done()

	wait := m.cfg.ReconnectWait

	for {
		client := NewClient(m.clientConfig(), m.logger)

		if err := client.Connect(m.ctx); err != nil {
			if m.ctx.Err() != nil {
				return
			}
			m.logger.Warn("stream connect failed",
				"error", err,
				"retry_in", wait,
			)
			if !m.sleep(wait) {
				return
			}
			wait = m.nextWait(wait)
			continue
		}

		m.setClient(client)
		wait = m.cfg.ReconnectWait
		m.logger.Info("stream connected", "streams", len(m.cfg.Symbols))

		err := m.consume(client)

		m.setClient(nil)
		client.Close()

		if m.ctx.Err() != nil {
			return
		}

		m.reconnects.Add(1)
		m.logger.Warn("stream disconnected, reconnecting",
			"error", err,
			"retry_in", wait,
		)
		if !m.sleep(wait) {
			return
		}
		wait = m.nextWait(wait)
	}
}

// consume drains one connection until it fails or the manager stops.
func (m *Manager) consume(c Client) error {
	for {
		select {
		case <-m.ctx.Done():
			return m.ctx.Err()

		case err := <-c.Errors():
			return err

		case msg, ok := <-c.Messages():
			if !ok {
				return ErrNotConnected
			}
			m.handleMessage(msg)
		}
	}
}

// handleMessage decodes one combined-stream frame and hands the tick to
// the handler. Undecodable frames are counted and dropped; a handler
// error drops the tick but keeps the stream alive.
func (m *Manager) handleMessage(msg Message) {
	var env streamEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil || len(env.Data) == 0 {
		m.dropped.Add(1)
		return
	}

	var ev miniTickerEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		m.dropped.Add(1)
		m.logger.Debug("undecodable stream event", "stream", env.Stream)
		return
	}

	q, err := ev.toQuote()
	if err != nil {
		m.dropped.Add(1)
		m.logger.Debug("bad tick", "symbol", ev.Symbol, "error", err)
		return
	}

	if err := m.handler.HandleTick(q); err != nil {
		m.dropped.Add(1)
		m.logger.Warn("tick handler failed", "symbol", q.Symbol, "error", err)
		return
	}

	m.ticks.Add(1)
}

func (m *Manager) clientConfig() ClientConfig {
	return ClientConfig{
		URL:          CombinedStreamURL(m.cfg.URL, m.cfg.Symbols),
		PingTimeout:  m.cfg.PingTimeout,
		WriteTimeout: m.cfg.WriteTimeout,
		BufferSize:   m.cfg.BufferSize,
	}
}

func (m *Manager) setClient(c Client) {
	m.mu.Lock()
	m.client = c
	m.mu.Unlock()
}

func (m *Manager) currentClient() Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// sleep waits for d or until the manager is stopped. Returns false when
// stopped.
func (m *Manager) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-m.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *Manager) nextWait(wait time.Duration) time.Duration {
	wait *= 2
	if wait > m.cfg.MaxReconnectWait {
		wait = m.cfg.MaxReconnectWait
	}
	return wait
}
