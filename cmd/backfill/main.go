// backfill runs a one-shot collection pass and exits.
// Usage: go run ./cmd/backfill -config configs/collector.yaml -mode backward -from 2024-01-01T00:00:00Z
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

	"github.com/joho/godotenv"

	"candlekeeper/internal/binance"
	"candlekeeper/internal/collector"
	"candlekeeper/internal/config"
	"candlekeeper/internal/gaps"
	"candlekeeper/internal/model"
	"candlekeeper/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/collector.yaml", "path to config file")
	mode := flag.String("mode", "backward", "collection mode: backward or gaps")
	fromFlag := flag.String("from", "", "window start (RFC3339); defaults to collection.lookback before now")
	toFlag := flag.String("to", "", "window end (RFC3339, backward mode); defaults to yesterday midnight")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols; defaults to collection.symbols")
	flag.Parse()

	// Outcome lines go to stdout, logs to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	symbols := parseSymbols(*symbolsFlag)
	if len(symbols) == 0 {
		symbols = cfg.Collection.Symbols
	}
	if len(symbols) == 0 {
		logger.Error("no symbols requested or configured")
		os.Exit(2)
	}

	from := time.Now().UTC().Add(-cfg.Collection.Lookback)
	if *fromFlag != "" {
		from, err = time.Parse(time.RFC3339, *fromFlag)
		if err != nil {
			logger.Error("invalid -from, want RFC3339", "error", err)
			os.Exit(2)
		}
	}

	var to time.Time
	if *toFlag != "" {
		to, err = time.Parse(time.RFC3339, *toFlag)
		if err != nil {
			logger.Error("invalid -to, want RFC3339", "error", err)
			os.Exit(2)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	pool, err := store.NewPool(ctx, store.PoolConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MinConns: cfg.Database.MinConns,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	st := store.New(pool, logger)
	if err := st.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	apiClient := binance.NewClient(
		cfg.API.BaseURL,
		binance.WithLogger(logger),
		binance.WithTimeout(cfg.API.Timeout),
		binance.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
		binance.WithRateBudget(binance.NewRateBudget(
			cfg.API.RateLimit.MaxRequests,
			cfg.API.RateLimit.MaxWeight,
		)),
	)
	if !apiClient.TestConnectivity(ctx) {
		logger.Error("exchange unreachable", "url", cfg.API.BaseURL)
		os.Exit(1)
	}

	detector := gaps.New(gaps.Config{
		Interval:   time.Hour,
		Tolerance:  cfg.Collection.Tolerance,
		ForwardLag: cfg.Collection.ForwardLag,
	}, st, logger)

	coll := collector.New(collector.Config{
		MaxRetries:  cfg.Collection.MaxRetries,
		RetryDelay:  cfg.Collection.RetryDelay,
		ChunkSize:   cfg.Collection.ChunkSize,
		Concurrency: cfg.Collection.Concurrency,
	}, apiClient, st, detector, logger)

	var outcomes []model.CollectionOutcome
	switch *mode {
	case "backward":
		outcomes = coll.CollectBackward(ctx, symbols, from, to)
	case "gaps":
		outcomes = coll.DetectAndFillGaps(ctx, symbols, from)
	default:
		logger.Error("unknown mode, want backward or gaps", "mode", *mode)
		os.Exit(2)
	}

	unfilled := 0
	for _, o := range outcomes {
		line := fmt.Sprintf("%-12s %-8s records=%-6d ranges=%d/%d duration=%s",
			o.Symbol,
			o.Status,
			o.RecordsCollected,
			len(o.FailedRanges),
			len(o.AttemptedRanges),
			o.Duration.Round(time.Millisecond),
		)
		if o.Err != nil {
			line += " error=" + o.Error()
		}
		fmt.Println(line)

		if o.Status == model.StatusFailed || len(o.FailedRanges) > 0 {
			unfilled++
		}
	}

	stats := coll.Stats()
	fmt.Printf("done: assets=%d inserted=%d ranges=%d failed_ranges=%d\n",
		stats.AssetsProcessed,
		stats.RecordsInserted,
		stats.RangesAttempted,
		stats.RangesFailed,
	)

	if unfilled > 0 {
		os.Exit(1)
	}
}

func parseSymbols(flagValue string) []string {
	if flagValue == "" {
		return nil
	}
	var symbols []string
	for _, s := range strings.Split(flagValue, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}
