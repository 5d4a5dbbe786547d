// Package feed maintains a reconnecting websocket connection to the realtime
// trade feed and dispatches decoded frames to a single replaceable handler.
package feed

import "time"

// State is the connection state of a Client.
type State int

// Connection states.
const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Handler receives every successfully decoded frame.
type Handler[T any] func(msg T)

// Options selects the subscriptions replayed on every (re)connect.
// Fixed for the lifetime of a Client.
type Options struct {
	SubscribeCopyTrades       bool
	SubscribeMarketCapUpdates bool
}

// DefaultOptions subscribes to copy trades only.
func DefaultOptions() Options {
	return Options{
		SubscribeCopyTrades:       true,
		SubscribeMarketCapUpdates: false,
	}
}

// ClientConfig configures reconnect and keepalive behavior.
type ClientConfig struct {
	// ReconnectBaseDelay is the delay before the first reconnect; it doubles per attempt.
	ReconnectBaseDelay time.Duration
	// MaxReconnectAttempts is the number of reconnects tried before giving up.
	MaxReconnectAttempts int
	// HandshakeTimeout bounds a single dial.
	HandshakeTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long a connection may stay silent (no frame, no pong).
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultClientConfig returns default feed client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ReconnectBaseDelay:   1 * time.Second,
		MaxReconnectAttempts: 5,
		HandshakeTimeout:     10 * time.Second,
		PingInterval:         30 * time.Second,
		ReadTimeout:          60 * time.Second,
		WriteTimeout:         10 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultClientConfig.
func (c ClientConfig) withDefaults() ClientConfig {
	d := DefaultClientConfig()
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = d.ReconnectBaseDelay
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	return c
}

// BackoffDelay returns the reconnect delay for a zero-based attempt: base * 2^attempt.
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return base << uint(attempt)
}
