// Package config loads the server configuration from YAML.
package config

import (
	"time"

	"token-find/internal/copytrade"
)

// Search backends.
const (
	BackendLocal  = "local"  // in-memory token index
	BackendRemote = "remote" // analytics API
	// BackendRemoteWithFallback queries the API and falls back to the index on failure.
	BackendRemoteWithFallback = "remote+local"
)

// Feed subscriptions.
const (
	SubscriptionCopyTrades = "copytrades"
	SubscriptionMCUpdates  = "mc_updates"
)

// Config is the root configuration.
type Config struct {
	Feed      FeedConfig      `yaml:"feed"`
	Search    SearchConfig    `yaml:"search"`
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	HTTP      HTTPConfig      `yaml:"http"`
	CopyTrade CopyTradeConfig `yaml:"copytrade"`
}

// FeedConfig holds realtime feed settings.
type FeedConfig struct {
	URL                  string        `yaml:"url"`
	Subscriptions        []string      `yaml:"subscriptions"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
}

// SearchConfig holds controller and backend settings.
type SearchConfig struct {
	Backend            string        `yaml:"backend"`
	MinQueryLength     int           `yaml:"min_query_length"`
	MaxResults         int           `yaml:"max_results"`
	Debounce           time.Duration `yaml:"debounce"`
	ShowResultsOnFocus bool          `yaml:"show_results_on_focus"`
	SendBuffer         int           `yaml:"send_buffer"`
}

// APIConfig holds analytics backend settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RateLimit  float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst      int           `yaml:"burst"`
}

// StorageConfig selects and configures the stores.
type StorageConfig struct {
	UseMemory     bool          `yaml:"use_memory"`
	PostgresDSN   string        `yaml:"postgres_dsn"`
	ClickHouseDSN string        `yaml:"clickhouse_dsn"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	// ReplayLimit is how many recent trades seed the token index at startup.
	ReplayLimit int `yaml:"replay_limit"`
}

// HTTPConfig holds the HTTP listener settings.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CopyTradeConfig holds standing copy-trade rules.
type CopyTradeConfig struct {
	Rules []copytrade.Rule `yaml:"rules"`
}
