package config

import "time"

// WatcherConfig is the root configuration for a watcher instance.
type WatcherConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	RPC        RPCConfig        `yaml:"rpc"`
	Loader     LoaderConfig     `yaml:"loader"`
	Subscriber SubscriberConfig `yaml:"subscriber"`
	Database   DatabaseConfig   `yaml:"database"`
	Archiver   ArchiverConfig   `yaml:"archiver"`
	Health     HealthConfig     `yaml:"health"`

	// Accounts is the initial set of addresses to watch.
	Accounts []string `yaml:"accounts"`
}

// InstanceConfig identifies this watcher.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// RPCConfig holds ledger node HTTP JSON-RPC settings.
type RPCConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// LoaderConfig holds polling loader settings.
type LoaderConfig struct {
	Interval       time.Duration `yaml:"interval"`
	ChunkSize      int           `yaml:"chunk_size"`
	GroupSize      int           `yaml:"group_size"`
	Commitment     string        `yaml:"commitment"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SubscriberConfig holds WebSocket push subscription settings.
type SubscriberConfig struct {
	Enabled            bool          `yaml:"enabled"`
	URL                string        `yaml:"url"`
	SubscribeTimeout   time.Duration `yaml:"subscribe_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
}

// DatabaseConfig holds the PostgreSQL connection for the archiver.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ArchiverConfig holds account update persistence settings.
type ArchiverConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}
