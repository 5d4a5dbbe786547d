package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"token-find/internal/feed"
	"token-find/internal/search"
)

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML after expanding ${VAR} references.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Default returns a config with every default applied and no feed URL.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	fc := feed.DefaultClientConfig()
	if len(c.Feed.Subscriptions) == 0 {
		c.Feed.Subscriptions = []string{SubscriptionCopyTrades}
	}
	if c.Feed.ReconnectBaseDelay <= 0 {
		c.Feed.ReconnectBaseDelay = fc.ReconnectBaseDelay
	}
	if c.Feed.MaxReconnectAttempts <= 0 {
		c.Feed.MaxReconnectAttempts = fc.MaxReconnectAttempts
	}
	if c.Feed.HandshakeTimeout <= 0 {
		c.Feed.HandshakeTimeout = fc.HandshakeTimeout
	}
	if c.Feed.PingInterval <= 0 {
		c.Feed.PingInterval = fc.PingInterval
	}
	if c.Feed.ReadTimeout <= 0 {
		c.Feed.ReadTimeout = fc.ReadTimeout
	}

	if c.Search.Backend == "" {
		c.Search.Backend = BackendLocal
	}
	if c.Search.MinQueryLength <= 0 {
		c.Search.MinQueryLength = search.DefaultMinQueryLength
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 20
	}
	if c.Search.Debounce <= 0 {
		c.Search.Debounce = search.DefaultDebounce
	}

	if c.Storage.ReplayLimit <= 0 {
		c.Storage.ReplayLimit = 1000
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
}

// Validate checks the config for required and consistent values.
func (c *Config) Validate() error {
	var errs []error

	if c.Feed.URL == "" {
		errs = append(errs, errors.New("feed.url is required"))
	} else if u, err := url.Parse(c.Feed.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Errorf("feed.url must be a ws:// or wss:// URL, got %q", c.Feed.URL))
	}
	for _, s := range c.Feed.Subscriptions {
		if s != SubscriptionCopyTrades && s != SubscriptionMCUpdates {
			errs = append(errs, fmt.Errorf("feed.subscriptions: unknown %q", s))
		}
	}

	switch c.Search.Backend {
	case BackendLocal:
	case BackendRemote, BackendRemoteWithFallback:
		if c.API.BaseURL == "" {
			errs = append(errs, fmt.Errorf("api.base_url is required for search backend %q", c.Search.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("search.backend: unknown %q", c.Search.Backend))
	}
	if c.API.RateLimit < 0 || c.API.Burst < 0 {
		errs = append(errs, errors.New("api.rate_limit and api.burst must be non-negative"))
	}

	if !c.Storage.UseMemory && (c.Storage.PostgresDSN == "" || c.Storage.ClickHouseDSN == "") {
		errs = append(errs, errors.New("storage.postgres_dsn and storage.clickhouse_dsn are required unless storage.use_memory is set"))
	}

	seen := make(map[string]bool)
	for i := range c.CopyTrade.Rules {
		r := &c.CopyTrade.Rules[i]
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("copytrade.rules[%d]: id is required", i))
			continue
		}
		if seen[r.ID] {
			errs = append(errs, fmt.Errorf("copytrade.rules: duplicate id %q", r.ID))
		}
		seen[r.ID] = true
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// FeedOptions converts the subscription list.
func (c *Config) FeedOptions() feed.Options {
	var opts feed.Options
	for _, s := range c.Feed.Subscriptions {
		switch s {
		case SubscriptionCopyTrades:
			opts.SubscribeCopyTrades = true
		case SubscriptionMCUpdates:
			opts.SubscribeMarketCapUpdates = true
		}
	}
	return opts
}

// FeedClientConfig returns the reconnect and keepalive settings.
func (c *Config) FeedClientConfig() feed.ClientConfig {
	cc := feed.DefaultClientConfig()
	cc.ReconnectBaseDelay = c.Feed.ReconnectBaseDelay
	cc.MaxReconnectAttempts = c.Feed.MaxReconnectAttempts
	cc.HandshakeTimeout = c.Feed.HandshakeTimeout
	cc.PingInterval = c.Feed.PingInterval
	cc.ReadTimeout = c.Feed.ReadTimeout
	return cc
}
