package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRPCTimeout        = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultRetryBackoff      = 1 * time.Second
	DefaultPollInterval      = 1 * time.Second
	DefaultChunkSize         = 99
	DefaultGroupSize         = 10
	DefaultCommitment        = "confirmed"
	DefaultRequestTimeout    = 10 * time.Second
	DefaultSubscribeTimeout  = 10 * time.Second
	DefaultPingInterval      = 15 * time.Second
	DefaultReconnectBase     = 1 * time.Second
	DefaultReconnectMax      = 60 * time.Second
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultBatchSize         = 1000
	DefaultFlushInterval     = 1 * time.Second
	DefaultHealthPort        = 8080
)

func (c *WatcherConfig) applyDefaults() {
	// RPC defaults
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = DefaultRPCTimeout
	}
	if c.RPC.MaxRetries == 0 {
		c.RPC.MaxRetries = DefaultMaxRetries
	}
	if c.RPC.RetryBackoff == 0 {
		c.RPC.RetryBackoff = DefaultRetryBackoff
	}

	// Loader defaults
	if c.Loader.Interval == 0 {
		c.Loader.Interval = DefaultPollInterval
	}
	if c.Loader.ChunkSize == 0 {
		c.Loader.ChunkSize = DefaultChunkSize
	}
	if c.Loader.GroupSize == 0 {
		c.Loader.GroupSize = DefaultGroupSize
	}
	if c.Loader.Commitment == "" {
		c.Loader.Commitment = DefaultCommitment
	}
	if c.Loader.RequestTimeout == 0 {
		c.Loader.RequestTimeout = DefaultRequestTimeout
	}

	// Subscriber defaults
	if c.Subscriber.SubscribeTimeout == 0 {
		c.Subscriber.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if c.Subscriber.PingInterval == 0 {
		c.Subscriber.PingInterval = DefaultPingInterval
	}
	if c.Subscriber.ReconnectBaseDelay == 0 {
		c.Subscriber.ReconnectBaseDelay = DefaultReconnectBase
	}
	if c.Subscriber.ReconnectMaxDelay == 0 {
		c.Subscriber.ReconnectMaxDelay = DefaultReconnectMax
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

	// Archiver defaults
	if c.Archiver.BatchSize == 0 {
		c.Archiver.BatchSize = DefaultBatchSize
	}
	if c.Archiver.FlushInterval == 0 {
		c.Archiver.FlushInterval = DefaultFlushInterval
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}
