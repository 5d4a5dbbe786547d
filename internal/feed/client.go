package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"token-find/internal/observability"
)

// timer is the cancellable handle of a scheduled reconnect.
type timer interface {
	Stop() bool
}

// scheduleFunc runs f after d. Replaced in tests.
type scheduleFunc func(d time.Duration, f func()) timer

func afterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

// eventNamer is implemented by message types that expose their discriminator.
type eventNamer interface {
	EventName() string
}

// EventName returns the frame discriminator.
func (e Envelope) EventName() string {
	return e.Event
}

// Client maintains at most one websocket connection to the feed endpoint.
// Transport failures are retried with exponential backoff and never returned
// to the caller; IsConnected is the only observable signal.
type Client[T any] struct {
	endpoint string
	opts     Options
	config   ClientConfig
	logger   *log.Logger
	dialer   websocket.Dialer
	schedule scheduleFunc

	// handler is read at dispatch time so callers can swap it without reconnecting.
	handler atomic.Pointer[Handler[T]]
	// dispatching is set while the handler runs on the read goroutine.
	dispatching atomic.Bool

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	attempt  int
	retry    timer
	retryGen uint64
	closed   bool

	// ctx aborts in-flight dials on Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a feed client and immediately starts connecting in the background.
func NewClient[T any](endpoint string, handler Handler[T], opts Options, config *ClientConfig, logger *log.Logger) *Client[T] {
	c := newClient(endpoint, handler, opts, config, logger)
	c.Connect()
	return c
}

// NewEnvelopeClient creates a client that delivers Envelope frames.
func NewEnvelopeClient(endpoint string, handler Handler[Envelope], opts Options, config *ClientConfig, logger *log.Logger) *Client[Envelope] {
	return NewClient(endpoint, handler, opts, config, logger)
}

// newClient builds a client without connecting.
func newClient[T any](endpoint string, handler Handler[T], opts Options, config *ClientConfig, logger *log.Logger) *Client[T] {
	cfg := DefaultClientConfig()
	if config != nil {
		cfg = config.withDefaults()
	}
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client[T]{
		endpoint: endpoint,
		opts:     opts,
		config:   cfg,
		logger:   logger,
		dialer: websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		schedule: afterFunc,
		state:    Disconnected,
		ctx:      ctx,
		cancel:   cancel,
	}
	c.SetHandler(handler)
	return c
}

// SetHandler replaces the message handler. Takes effect for the next frame.
func (c *Client[T]) SetHandler(h Handler[T]) {
	c.handler.Store(&h)
}

// Connect starts a connection attempt. It is a no-op while connecting,
// while connected, and after Close.
func (c *Client[T]) Connect() {
	c.mu.Lock()
	if c.closed || c.state != Disconnected {
		c.mu.Unlock()
		return
	}
	c.stopRetryLocked()
	c.setStateLocked(Connecting)
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run()
}

// IsConnected reports whether the socket is open.
func (c *Client[T]) IsConnected() bool {
	return c.State() == Connected
}

// State returns the current connection state.
func (c *Client[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempt returns the reconnect attempt counter. Reset to 0 on every successful open.
func (c *Client[T]) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// Endpoint returns the feed URL.
func (c *Client[T]) Endpoint() string {
	return c.endpoint
}

// Close cancels any pending reconnect, closes the socket with a normal-closure
// frame and waits for background goroutines to exit. Called from inside a
// Handler it does not wait; the read goroutine exits once the handler returns.
func (c *Client[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil // Already closed
	}
	c.closed = true
	c.stopRetryLocked()
	conn := c.conn
	c.mu.Unlock()

	c.cancel()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.config.WriteTimeout))
		_ = conn.Close()
	}

	if !c.dispatching.Load() {
		c.wg.Wait()
	}

	c.mu.Lock()
	c.conn = nil
	if c.state != Disconnected {
		c.setStateLocked(Disconnected)
	}
	c.mu.Unlock()
	return nil
}

// run dials, replays subscriptions and reads until the connection ends.
func (c *Client[T]) run() {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(c.ctx, c.config.HandshakeTimeout)
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	cancel()
	if err != nil {
		c.logger.Printf("[feed] dial %s: %v", c.endpoint, err)
		c.handleDisconnect(nil, websocket.CloseAbnormalClosure)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.attempt = 0
	c.setStateLocked(Connected)
	c.mu.Unlock()

	c.logger.Printf("[feed] connected to %s", c.endpoint)

	if err := c.sendSubscriptions(conn); err != nil {
		// Reader observes the closed socket and takes the retry path.
		c.logger.Printf("[feed] subscribe: %v", err)
		conn.Close()
	}

	done := make(chan struct{})
	c.wg.Add(1)
	go c.pingLoop(conn, done)

	code := c.readLoop(conn)
	close(done)

	c.handleDisconnect(conn, code)
}

// sendSubscriptions writes one subscription frame per enabled option, copy trades first.
func (c *Client[T]) sendSubscriptions(conn *websocket.Conn) error {
	var events []string
	if c.opts.SubscribeCopyTrades {
		events = append(events, subscribeCopyTradesEvent)
	}
	if c.opts.SubscribeMarketCapUpdates {
		events = append(events, subscribeMCUpdatesEvent)
	}

	for _, event := range events {
		conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		if err := conn.WriteJSON(subscribeRequest{Event: event}); err != nil {
			return fmt.Errorf("write %s: %w", event, err)
		}
	}
	return nil
}

// readLoop reads frames until the connection fails and returns the close code.
func (c *Client[T]) readLoop(conn *websocket.Conn) int {
	conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return closeCode(err)
		}
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		c.dispatch(data)
	}
}

// dispatch decodes a frame and hands it to the current handler.
// Malformed frames are logged and dropped.
func (c *Client[T]) dispatch(data []byte) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Printf("[feed] dropping malformed frame (%d bytes): %v", len(data), err)
		observability.RecordFeedDecodeError()
		return
	}

	if named, ok := any(msg).(eventNamer); ok {
		observability.RecordFeedMessage(named.EventName())
	}

	if h := c.handler.Load(); h != nil && *h != nil {
		c.dispatching.Store(true)
		defer c.dispatching.Store(false)
		(*h)(msg)
	}
}

// handleDisconnect moves to Disconnected and schedules a reconnect when allowed.
func (c *Client[T]) handleDisconnect(conn *websocket.Conn, code int) {
	if conn != nil {
		conn.Close()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if conn != nil && c.conn == conn {
		c.conn = nil
	}
	c.setStateLocked(Disconnected)

	if c.closed {
		return
	}

	if code == websocket.CloseNormalClosure {
		c.logger.Printf("[feed] closed normally by server, not reconnecting")
		return
	}

	if c.attempt >= c.config.MaxReconnectAttempts {
		c.logger.Printf("[feed] giving up after %d reconnect attempts", c.attempt)
		observability.RecordRetriesExhausted()
		return
	}

	delay := BackoffDelay(c.config.ReconnectBaseDelay, c.attempt)
	c.logger.Printf("[feed] connection lost (code %d), reconnecting in %v (attempt %d/%d)",
		code, delay, c.attempt+1, c.config.MaxReconnectAttempts)

	c.stopRetryLocked()
	gen := c.retryGen
	c.retry = c.schedule(delay, func() { c.fireReconnect(gen) })
	observability.RecordReconnectScheduled(delay.Seconds())
}

// fireReconnect runs when a scheduled reconnect timer expires.
func (c *Client[T]) fireReconnect(gen uint64) {
	c.mu.Lock()
	if c.closed || c.retry == nil || c.retryGen != gen {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	c.retryGen++
	c.attempt++
	c.mu.Unlock()

	c.Connect()
}

// stopRetryLocked cancels a pending reconnect. Caller holds c.mu.
func (c *Client[T]) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.retryGen++
}

// setStateLocked updates state and metrics. Caller holds c.mu.
func (c *Client[T]) setStateLocked(s State) {
	c.state = s
	observability.SetFeedState(s.String(), s == Connected)
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *Client[T]) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			// Write failures surface as read errors in readLoop.
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
		}
	}
}

// closeCode extracts the websocket close code; anything else is an abnormal closure.
func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}
