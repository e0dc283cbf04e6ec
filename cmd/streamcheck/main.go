// streamcheck connects to the exchange combined stream and prints live
// ticks to the console.
// Usage: go run ./cmd/streamcheck -symbols BTCUSDT,ETHUSDT -duration 30s
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"candlekeeper/internal/model"
	"candlekeeper/internal/stream"
)

func main() {
	url := flag.String("url", stream.DefaultConfig().URL, "websocket endpoint")
	symbolsFlag := flag.String("symbols", "BTCUSDT,ETHUSDT", "comma-separated symbols")
	duration := flag.Duration("duration", 30*time.Second, "how long to stream (0 = until interrupted)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	var symbols []string
	for _, s := range strings.Split(*symbolsFlag, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		logger.Error("no symbols given")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), *duration)
	}
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := stream.DefaultConfig()
	cfg.URL = *url
	cfg.Symbols = symbols

	mgr := stream.NewManager(cfg, stream.TickHandlerFunc(func(q model.Quote) error {
		fmt.Printf("[TICK] symbol=%s price=%s at=%s\n", q.Symbol, q.Price, q.At.Format(time.RFC3339))
		return nil
	}), logger)

	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start stream manager", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := mgr.Stats()
				logger.Info("stats",
					"connected", st.Connected,
					"ticks", st.Ticks,
					"dropped", st.Dropped,
					"reconnects", st.Reconnects,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop", "symbols", len(symbols))

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	mgr.Stop(shutdownCtx)

	st := mgr.Stats()
	fmt.Printf("received %d ticks (%d dropped, %d reconnects)\n", st.Ticks, st.Dropped, st.Reconnects)
}
