package config

import "time"

// CollectorConfig is the root configuration for a collector instance.
type CollectorConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	API        APIConfig        `yaml:"api"`
	Database   DBConfig         `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Collection CollectionConfig `yaml:"collection"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Stream     StreamConfig     `yaml:"stream"`
	Health     HealthConfig     `yaml:"health"`
}

// InstanceConfig identifies this collector.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds exchange REST API settings.
type APIConfig struct {
	BaseURL      string          `yaml:"base_url"`
	Timeout      time.Duration   `yaml:"timeout"`
	MaxRetries   int             `yaml:"max_retries"`
	RetryBackoff time.Duration   `yaml:"retry_backoff"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig bounds request admission per rolling minute.
type RateLimitConfig struct {
	MaxRequests int `yaml:"max_requests"`
	MaxWeight   int `yaml:"max_weight"`
}

// DBConfig holds the PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds the latest-price cache settings.
type RedisConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	TTL     time.Duration `yaml:"ttl"`
}

// CollectionConfig holds collection orchestrator settings.
type CollectionConfig struct {
	Symbols     []string      `yaml:"symbols"`     // Fixed universe; empty means rank the top assets
	TopAssets   int           `yaml:"top_assets"`  // Universe size when symbols is empty
	Concurrency int           `yaml:"concurrency"` // Assets collected in parallel
	MaxRetries  int           `yaml:"max_retries"` // Per-range retry budget
	RetryDelay  time.Duration `yaml:"retry_delay"` // First retry delay, doubled per attempt
	ChunkSize   time.Duration `yaml:"chunk_size"`  // Missing ranges are filled in chunks this wide
	Lookback    time.Duration `yaml:"lookback"`    // How far back the initial backfill reaches
	Tolerance   time.Duration `yaml:"tolerance"`   // Slack before hourly spacing counts as a gap
	ForwardLag  time.Duration `yaml:"forward_lag"` // Staleness before forward collection kicks in
}

// SchedulerConfig holds periodic collection settings.
type SchedulerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	MisfireGrace time.Duration `yaml:"misfire_grace"`
}

// StreamConfig holds live ticker stream settings.
type StreamConfig struct {
	Enabled          bool          `yaml:"enabled"`
	URL              string        `yaml:"url"`
	ReconnectWait    time.Duration `yaml:"reconnect_wait"`
	MaxReconnectWait time.Duration `yaml:"max_reconnect_wait"`
}

// HealthConfig holds the admin HTTP server settings.
type HealthConfig struct {
	Addr string `yaml:"addr"`
}
