package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"candlekeeper/internal/binance"
	"candlekeeper/internal/collector"
	"candlekeeper/internal/config"
	"candlekeeper/internal/gaps"
	"candlekeeper/internal/model"
	"candlekeeper/internal/scheduler"
	"candlekeeper/internal/store"
	"candlekeeper/internal/stream"
	"candlekeeper/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/collector.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting collector",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Optional .env, feeds ${VAR} expansion in the config file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"api_url", cfg.API.BaseURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := store.NewPool(ctx, poolConfig(cfg.Database))
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

	logger.Info("database connected")

	// Latest-price cache (optional)
	var cache *store.PriceCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		cache = store.NewPriceCache(rdb, cfg.Redis.TTL)
		if err := cache.Ping(ctx); err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		logger.Info("price cache connected", "addr", cfg.Redis.Addr)
	}

	// Create API client
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

	// Check exchange connectivity
	logger.Info("checking exchange connectivity")
	if !apiClient.TestConnectivity(ctx) {
		logger.Error("exchange unreachable", "url", cfg.API.BaseURL)
		os.Exit(1)
	}

	// Resolve the collection universe
	symbols := cfg.Collection.Symbols
	if len(symbols) == 0 {
		symbols, err = rankedUniverse(ctx, apiClient, st, cfg.Collection.TopAssets)
		if err != nil {
			logger.Error("failed to resolve asset universe", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("collection universe resolved", "symbols", len(symbols))

	// Wire the detector and the orchestrator
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

	sched := scheduler.New(scheduler.Config{
		Interval:     cfg.Scheduler.Interval,
		MisfireGrace: cfg.Scheduler.MisfireGrace,
		Symbols:      symbols,
	}, coll, logger)

	// Start the admin server early so the first run is observable
	adminServer := &http.Server{
		Addr:    cfg.Health.Addr,
		Handler: createAdminHandler(pool, cache, sched, coll, logger),
	}

	go func() {
		logger.Info("starting admin server", "addr", cfg.Health.Addr)
		if err := adminServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("admin server error", "error", err)
		}
	}()

	// Start the scheduler (fires a forward run immediately)
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		sched.Stop(shutdownCtx)
	}()

	// Live ticker stream keeps the cache warm between hourly runs
	if cfg.Stream.Enabled && cache != nil {
		streamCfg := stream.DefaultConfig()
		streamCfg.URL = cfg.Stream.URL
		streamCfg.Symbols = symbols
		streamCfg.ReconnectWait = cfg.Stream.ReconnectWait
		streamCfg.MaxReconnectWait = cfg.Stream.MaxReconnectWait

		streamMgr := stream.NewManager(streamCfg, stream.TickHandlerFunc(func(q model.Quote) error {
			return cache.SetLatest(ctx, q)
		}), logger)

		if err := streamMgr.Start(ctx); err != nil {
			logger.Error("failed to start stream manager", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			streamMgr.Stop(shutdownCtx)
		}()
	}

	logger.Info("collector running",
		"instance_id", cfg.Instance.ID,
		"admin_addr", cfg.Health.Addr,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	adminServer.Shutdown(shutdownCtx)

	logger.Info("collector stopped")
}

// rankedUniverse ranks the most active assets, records their ranks, and
// returns their symbols in rank order.
func rankedUniverse(ctx context.Context, client *binance.Client, st *store.Store, limit int) ([]string, error) {
	infos, err := client.TopAssetsByActivity(ctx, limit)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(infos))
	for i, info := range infos {
		asset, err := st.GetOrCreateAsset(ctx, info.Symbol)
		if err != nil {
			return nil, err
		}
		if err := st.SetAssetRank(ctx, asset.ID, int32(i+1)); err != nil {
			return nil, err
		}
		symbols = append(symbols, info.Symbol)
	}
	return symbols, nil
}

func poolConfig(db config.DBConfig) store.PoolConfig {
	return store.PoolConfig{
		Host:     db.Host,
		Port:     db.Port,
		User:     db.User,
		Password: db.Password,
		Name:     db.Name,
		SSLMode:  db.SSLMode,
		MinConns: db.MinConns,
		MaxConns: db.MaxConns,
	}
}

// outcomeView is the JSON shape of one per-asset collection outcome.
type outcomeView struct {
	Symbol       string `json:"symbol"`
	Status       string `json:"status"`
	Records      int    `json:"records"`
	FailedRanges int    `json:"failed_ranges"`
	Duration     string `json:"duration"`
	Error        string `json:"error,omitempty"`
}

func toOutcomeViews(outcomes []model.CollectionOutcome) []outcomeView {
	views := make([]outcomeView, 0, len(outcomes))
	for _, o := range outcomes {
		views = append(views, outcomeView{
			Symbol:       o.Symbol,
			Status:       string(o.Status),
			Records:      o.RecordsCollected,
			FailedRanges: len(o.FailedRanges),
			Duration:     o.Duration.String(),
			Error:        o.Error(),
		})
	}
	return views
}

// createAdminHandler creates the HTTP handler for health and control
// endpoints.
func createAdminHandler(pool *pgxpool.Pool, cache *store.PriceCache, sched *scheduler.Scheduler, coll *collector.Collector, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		// Check cache
		if cache != nil {
			if err := cache.Ping(ctx); err != nil {
				if health.Status == "healthy" {
					health.Status = "degraded"
				}
				health.Components["redis"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["redis"] = "connected"
			}
		}

		// Check scheduler
		st := sched.Status()
		health.Components["scheduler"] = map[string]interface{}{
			"state":     string(st.State),
			"run_count": st.RunCount,
		}
		if st.State == scheduler.StateStopped {
			health.Status = "unhealthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		cs := sched.CollectionStatus()

		payload := struct {
			Scheduler  scheduler.Status `json:"scheduler"`
			Collection struct {
				Running          bool          `json:"running"`
				CurrentOperation string        `json:"current_operation,omitempty"`
				LastRunID        uuid.UUID     `json:"last_run_id,omitempty"`
				LastResults      []outcomeView `json:"last_results"`
			} `json:"collection"`
			Stats collector.Stats `json:"stats"`
		}{
			Scheduler: sched.Status(),
			Stats:     coll.Stats(),
		}
		payload.Collection.Running = cs.Running
		payload.Collection.CurrentOperation = cs.CurrentOperation
		payload.Collection.LastRunID = cs.LastRunID
		payload.Collection.LastResults = toOutcomeViews(cs.LastResults)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload)
	})

	mux.HandleFunc("/trigger", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var body struct {
			Mode    string   `json:"mode"`
			From    string   `json:"from"`
			To      string   `json:"to"`
			Symbols []string `json:"symbols"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		req := scheduler.TriggerRequest{
			Mode:    scheduler.Mode(body.Mode),
			Symbols: body.Symbols,
		}
		if body.From != "" {
			from, err := time.Parse(time.RFC3339, body.From)
			if err != nil {
				http.Error(w, "invalid from time, want RFC3339", http.StatusBadRequest)
				return
			}
			req.From = from
		}
		if body.To != "" {
			to, err := time.Parse(time.RFC3339, body.To)
			if err != nil {
				http.Error(w, "invalid to time, want RFC3339", http.StatusBadRequest)
				return
			}
			req.To = to
		}

		result := sched.TriggerManual(r.Context(), req)

		status := http.StatusAccepted
		if !result.Accepted {
			if strings.Contains(result.Message, "in progress") || strings.Contains(result.Message, "stopped") {
				status = http.StatusConflict
			} else {
				status = http.StatusBadRequest
			}
		}

		logger.Info("manual trigger",
			"mode", body.Mode,
			"accepted", result.Accepted,
			"message", result.Message,
		)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(result)
	})

	mux.HandleFunc("/prices/latest", func(w http.ResponseWriter, r *http.Request) {
		if cache == nil {
			http.Error(w, "price cache disabled", http.StatusNotFound)
			return
		}

		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			http.Error(w, "symbol query parameter is required", http.StatusBadRequest)
			return
		}

		quote, ok, err := cache.GetLatest(r.Context(), symbol)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "no recent price for symbol", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(quote)
	})

	return mux
}
