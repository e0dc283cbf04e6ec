package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-collector
api:
  base_url: https://testnet.binance.vision
database:
  host: localhost
  port: 5432
  name: test_db
  user: testuser
  password: testpass
collection:
  symbols: [BTCUSDT, ETHUSDT]
  chunk_size: 12h
scheduler:
  interval: 30m
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-collector" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-collector")
	}
	if cfg.API.BaseURL != "https://testnet.binance.vision" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "https://testnet.binance.vision")
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
	if len(cfg.Collection.Symbols) != 2 || cfg.Collection.Symbols[0] != "BTCUSDT" {
		t.Errorf("Collection.Symbols = %v, want [BTCUSDT ETHUSDT]", cfg.Collection.Symbols)
	}
	if cfg.Collection.ChunkSize != 12*time.Hour {
		t.Errorf("Collection.ChunkSize = %v, want 12h", cfg.Collection.ChunkSize)
	}
	if cfg.Scheduler.Interval != 30*time.Minute {
		t.Errorf("Scheduler.Interval = %v, want 30m", cfg.Scheduler.Interval)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-collector
database:
  host: localhost
  name: test_db
  user: testuser
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-collector
database:
  host: localhost
  name: test_db
  user: testuser
  password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.API.BaseURL != DefaultBaseURL {
		t.Errorf("API.BaseURL = %q, want default %q", cfg.API.BaseURL, DefaultBaseURL)
	}
	if cfg.API.Timeout != DefaultAPITimeout {
		t.Errorf("API.Timeout = %v, want default %v", cfg.API.Timeout, DefaultAPITimeout)
	}
	if cfg.API.RateLimit.MaxWeight != DefaultMaxWeight {
		t.Errorf("API.RateLimit.MaxWeight = %d, want default %d", cfg.API.RateLimit.MaxWeight, DefaultMaxWeight)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Database.MaxConns != DefaultMaxConns {
		t.Errorf("Database.MaxConns = %d, want default %d", cfg.Database.MaxConns, DefaultMaxConns)
	}
	if cfg.Collection.ChunkSize != DefaultChunkSize {
		t.Errorf("Collection.ChunkSize = %v, want default %v", cfg.Collection.ChunkSize, DefaultChunkSize)
	}
	if cfg.Scheduler.Interval != DefaultInterval {
		t.Errorf("Scheduler.Interval = %v, want default %v", cfg.Scheduler.Interval, DefaultInterval)
	}
	if cfg.Health.Addr != DefaultHealthAddr {
		t.Errorf("Health.Addr = %q, want default %q", cfg.Health.Addr, DefaultHealthAddr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load of missing file succeeded, want error")
	}
}

func TestValidate(t *testing.T) {
	validDB := DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2}

	valid := func() CollectorConfig {
		return CollectorConfig{
			Instance: InstanceConfig{ID: "test"},
			API: APIConfig{
				RateLimit: RateLimitConfig{MaxRequests: 1200, MaxWeight: 6000},
			},
			Database: validDB,
			Collection: CollectionConfig{
				Symbols:     []string{"BTCUSDT"},
				Concurrency: 4,
				ChunkSize:   24 * time.Hour,
				Lookback:    720 * time.Hour,
			},
			Scheduler: SchedulerConfig{Interval: time.Hour},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*CollectorConfig)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *CollectorConfig) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *CollectorConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing database host",
			mutate:  func(c *CollectorConfig) { c.Database.Host = "" },
			wantErr: "database.host is required",
		},
		{
			name:    "missing database password",
			mutate:  func(c *CollectorConfig) { c.Database.Password = "" },
			wantErr: "database.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *CollectorConfig) {
				c.Database.MinConns = 10
				c.Database.MaxConns = 5
			},
			wantErr: "database.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *CollectorConfig) { c.API.RateLimit.MaxRequests = 0 },
			wantErr: "api.rate_limit.max_requests must be >= 1",
		},
		{
			name: "redis enabled without addr",
			mutate: func(c *CollectorConfig) {
				c.Redis.Enabled = true
				c.Redis.Addr = ""
			},
			wantErr: "redis.addr is required when redis is enabled",
		},
		{
			name: "no symbols and no top assets",
			mutate: func(c *CollectorConfig) {
				c.Collection.Symbols = nil
				c.Collection.TopAssets = 0
			},
			wantErr: "collection.top_assets must be >= 1 when no symbols are configured",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *CollectorConfig) { c.Collection.Concurrency = 0 },
			wantErr: "collection.concurrency must be >= 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
