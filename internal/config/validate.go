package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *WatcherConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.RPC.Endpoint == "" {
		return errors.New("rpc.endpoint is required")
	}

	if c.Loader.ChunkSize < 1 {
		return errors.New("loader.chunk_size must be >= 1")
	}
	if c.Loader.GroupSize < 1 {
		return errors.New("loader.group_size must be >= 1")
	}
	if c.Loader.Interval <= 0 {
		return errors.New("loader.interval must be positive")
	}

	if c.Subscriber.Enabled && c.Subscriber.URL == "" {
		return errors.New("subscriber.url is required when subscriber is enabled")
	}

	if c.Archiver.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
		if c.Archiver.BatchSize < 1 {
			return errors.New("archiver.batch_size must be >= 1")
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	for i, addr := range c.Accounts {
		if addr == "" {
			return fmt.Errorf("accounts[%d] is empty", i)
		}
	}

	return nil
}

func (db *DatabaseConfig) validate(prefix string) error {
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
