package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL          = "https://api.binance.com"
	DefaultAPITimeout       = 30 * time.Second
	DefaultAPIMaxRetries    = 3
	DefaultRetryBackoff     = 1 * time.Second
	DefaultMaxRequests      = 1200
	DefaultMaxWeight        = 6000
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultRedisAddr        = "localhost:6379"
	DefaultQuoteTTL         = 2 * time.Minute
	DefaultTopAssets        = 50
	DefaultConcurrency      = 4
	DefaultCollectRetries   = 3
	DefaultRetryDelay       = 5 * time.Second
	DefaultChunkSize        = 24 * time.Hour
	DefaultLookback         = 30 * 24 * time.Hour
	DefaultTolerance        = 5 * time.Minute
	DefaultForwardLag       = 1 * time.Hour
	DefaultInterval         = 1 * time.Hour
	DefaultMisfireGrace     = 5 * time.Minute
	DefaultStreamURL        = "wss://stream.binance.com:9443"
	DefaultReconnectWait    = 1 * time.Second
	DefaultMaxReconnectWait = 60 * time.Second
	DefaultHealthAddr       = ":8080"
)

func (c *CollectorConfig) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultAPIMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}
	if c.API.RateLimit.MaxRequests == 0 {
		c.API.RateLimit.MaxRequests = DefaultMaxRequests
	}
	if c.API.RateLimit.MaxWeight == 0 {
		c.API.RateLimit.MaxWeight = DefaultMaxWeight
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = DefaultQuoteTTL
	}

	// Collection defaults
	if c.Collection.TopAssets == 0 {
		c.Collection.TopAssets = DefaultTopAssets
	}
	if c.Collection.Concurrency == 0 {
		c.Collection.Concurrency = DefaultConcurrency
	}
	if c.Collection.MaxRetries == 0 {
		c.Collection.MaxRetries = DefaultCollectRetries
	}
	if c.Collection.RetryDelay == 0 {
		c.Collection.RetryDelay = DefaultRetryDelay
	}
	if c.Collection.ChunkSize == 0 {
		c.Collection.ChunkSize = DefaultChunkSize
	}
	if c.Collection.Lookback == 0 {
		c.Collection.Lookback = DefaultLookback
	}
	if c.Collection.Tolerance == 0 {
		c.Collection.Tolerance = DefaultTolerance
	}
	if c.Collection.ForwardLag == 0 {
		c.Collection.ForwardLag = DefaultForwardLag
	}

	// Scheduler defaults
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = DefaultInterval
	}
	if c.Scheduler.MisfireGrace == 0 {
		c.Scheduler.MisfireGrace = DefaultMisfireGrace
	}

	// Stream defaults
	if c.Stream.URL == "" {
		c.Stream.URL = DefaultStreamURL
	}
	if c.Stream.ReconnectWait == 0 {
		c.Stream.ReconnectWait = DefaultReconnectWait
	}
	if c.Stream.MaxReconnectWait == 0 {
		c.Stream.MaxReconnectWait = DefaultMaxReconnectWait
	}

	// Health defaults
	if c.Health.Addr == "" {
		c.Health.Addr = DefaultHealthAddr
	}
}
