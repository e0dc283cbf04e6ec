package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *CollectorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.RateLimit.MaxRequests < 1 {
		return errors.New("api.rate_limit.max_requests must be >= 1")
	}
	if c.API.RateLimit.MaxWeight < 1 {
		return errors.New("api.rate_limit.max_weight must be >= 1")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}

	if len(c.Collection.Symbols) == 0 && c.Collection.TopAssets < 1 {
		return errors.New("collection.top_assets must be >= 1 when no symbols are configured")
	}
	if c.Collection.Concurrency < 1 {
		return errors.New("collection.concurrency must be >= 1")
	}
	if c.Collection.MaxRetries < 0 {
		return errors.New("collection.max_retries must be >= 0")
	}
	if c.Collection.ChunkSize < 1 {
		return errors.New("collection.chunk_size must be positive")
	}
	if c.Collection.Lookback < 1 {
		return errors.New("collection.lookback must be positive")
	}

	if c.Scheduler.Interval < 1 {
		return errors.New("scheduler.interval must be positive")
	}

	if c.Stream.Enabled && c.Stream.URL == "" {
		return errors.New("stream.url is required when the stream is enabled")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
