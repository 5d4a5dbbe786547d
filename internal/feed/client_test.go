package feed

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var quietLogger = log.New(io.Discard, "", 0)

// fakeTimer records a scheduled reconnect without running it.
type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool {
	return !t.stopped.Swap(true)
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) schedule(d time.Duration, f func()) timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.timers))
	for i, t := range s.timers {
		out[i] = t.delay
	}
	return out
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[len(s.timers)-1]
}

// fireLast runs the most recent timer as if it had expired.
func (s *fakeScheduler) fireLast() {
	s.last().fn()
}

func (s *fakeScheduler) waitFor(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.count() >= n }, 2*time.Second, 5*time.Millisecond,
		"expected %d scheduled reconnects", n)
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testClient(t *testing.T, endpoint string, handler Handler[Envelope], opts Options) (*Client[Envelope], *fakeScheduler) {
	t.Helper()
	fs := &fakeScheduler{}
	c := newClient(endpoint, handler, opts, &ClientConfig{HandshakeTimeout: 2 * time.Second}, quietLogger)
	c.schedule = fs.schedule
	t.Cleanup(func() { c.Close() })
	return c, fs
}

// readSubscriptions reads n subscription frames from a server-side connection.
func readSubscriptions(t *testing.T, conn *websocket.Conn, n int) []string {
	var events []string
	for i := 0; i < n; i++ {
		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			t.Errorf("read subscription: %v", err)
			return events
		}
		events = append(events, req.Event)
	}
	return events
}

func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{-1, 1 * time.Second},
	}
	for _, tt := range tests {
		if got := BackoffDelay(time.Second, tt.attempt); got != tt.want {
			t.Errorf("BackoffDelay(1s, %d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestClient_SubscriptionHandshake(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{"defaults", DefaultOptions(), []string{"subscribe_copytrades"}},
		{"both", Options{SubscribeCopyTrades: true, SubscribeMarketCapUpdates: true},
			[]string{"subscribe_copytrades", "subscribe_mc_updates"}},
		{"mc only", Options{SubscribeMarketCapUpdates: true}, []string{"subscribe_mc_updates"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make(chan []string, 1)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				conn, err := upgrader.Upgrade(w, r, nil)
				if err != nil {
					return
				}
				defer conn.Close()
				got <- readSubscriptions(t, conn, len(tt.want))
				holdOpen(conn)
			}))
			defer server.Close()

			c, _ := testClient(t, wsURL(server), nil, tt.opts)
			c.Connect()

			select {
			case events := <-got:
				assert.Equal(t, tt.want, events)
			case <-time.After(2 * time.Second):
				t.Fatal("timeout waiting for subscriptions")
			}
			assert.True(t, c.IsConnected())
		})
	}
}

func TestClient_DispatchesToCurrentHandler(t *testing.T) {
	send := make(chan []byte)
	var connections atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connections.Add(1)
		defer conn.Close()
		readSubscriptions(t, conn, 1)
		for frame := range send {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}))
	defer server.Close()
	defer close(send)

	var first, second atomic.Int32
	received := make(chan Envelope, 4)

	c, _ := testClient(t, wsURL(server), func(Envelope) { first.Add(1) }, DefaultOptions())
	c.Connect()
	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)

	c.SetHandler(func(e Envelope) {
		second.Add(1)
		received <- e
	})

	send <- []byte(`{"event":"error","message":"rate limited"}`)

	select {
	case e := <-received:
		msg, err := e.ErrorMessage()
		require.NoError(t, err)
		assert.Equal(t, "rate limited", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
	}

	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
	assert.Equal(t, int32(1), connections.Load(), "handler swap must not reconnect")
}

func TestClient_MalformedFrameDropped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		readSubscriptions(t, conn, 1)
		conn.WriteMessage(websocket.TextMessage, []byte(`not json{`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"new_trade","tradeData":{"tradeDataToBroadcast":{"signature":"sig1","tokenSymbol":"BONK","side":"buy"}}}`))
		holdOpen(conn)
	}))
	defer server.Close()

	received := make(chan Envelope, 4)
	c, fs := testClient(t, wsURL(server), func(e Envelope) { received <- e }, DefaultOptions())
	c.Connect()

	select {
	case e := <-received:
		trade, err := e.NewTrade()
		require.NoError(t, err)
		assert.Equal(t, "BONK", trade.TokenSymbol)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
	}

	assert.Len(t, received, 0, "malformed frame must not reach the handler")
	assert.True(t, c.IsConnected())
	assert.Equal(t, 0, fs.count())
}

func TestClient_ConnectIdempotent(t *testing.T) {
	var connections atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connections.Add(1)
		defer conn.Close()
		holdOpen(conn)
	}))
	defer server.Close()

	c, _ := testClient(t, wsURL(server), nil, DefaultOptions())
	c.Connect()
	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)

	c.Connect()
	c.Connect()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), connections.Load())
	assert.Equal(t, 0, c.Attempt())
	assert.True(t, c.IsConnected())
}

func TestClient_NormalClosureIsTerminal(t *testing.T) {
	var connections atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connections.Add(1)
		defer conn.Close()
		readSubscriptions(t, conn, 1)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		holdOpen(conn)
	}))
	defer server.Close()

	c, fs := testClient(t, wsURL(server), nil, DefaultOptions())
	c.Connect()

	require.Eventually(t, func() bool { return connections.Load() == 1 && c.State() == Disconnected },
		2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, fs.count(), "no reconnect may be scheduled after code 1000")
	assert.Equal(t, int32(1), connections.Load())
}

func TestClient_AbnormalCloseReconnects(t *testing.T) {
	var connections atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := connections.Add(1)
		readSubscriptions(t, conn, 1)
		if n == 1 {
			// Drop without a close frame.
			conn.UnderlyingConn().Close()
			return
		}
		defer conn.Close()
		holdOpen(conn)
	}))
	defer server.Close()

	c, fs := testClient(t, wsURL(server), nil, DefaultOptions())
	c.Connect()

	fs.waitFor(t, 1)
	assert.Equal(t, []time.Duration{time.Second}, fs.delays())
	assert.False(t, c.IsConnected())

	fs.fireLast()
	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), connections.Load())
	assert.Equal(t, 0, c.Attempt())
}

func TestClient_RecoversAfterConsecutiveFailures(t *testing.T) {
	var connections atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := connections.Add(1)
		if n >= 2 && n <= 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			conn.UnderlyingConn().Close()
			return
		}
		defer conn.Close()
		holdOpen(conn)
	}))
	defer server.Close()

	c, fs := testClient(t, wsURL(server), nil, DefaultOptions())
	c.Connect()

	for i := 1; i <= 3; i++ {
		fs.waitFor(t, i)
		fs.fireLast()
	}

	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, fs.delays())
	assert.Equal(t, 0, c.Attempt(), "attempt counter resets after a successful open")
}

func TestClient_BackoffScheduleExhausts(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := wsURL(server)
	server.Close()

	c, fs := testClient(t, endpoint, nil, DefaultOptions())
	c.Connect()

	for i := 1; i <= 5; i++ {
		fs.waitFor(t, i)
		fs.fireLast()
	}

	require.Eventually(t, func() bool { return c.State() == Disconnected && c.Attempt() == 5 },
		2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}, fs.delays())
}

func TestClient_CloseCancelsPendingReconnect(t *testing.T) {
	var connections atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connections.Add(1)
		conn.UnderlyingConn().Close()
	}))
	defer server.Close()

	c, fs := testClient(t, wsURL(server), nil, DefaultOptions())
	c.Connect()
	fs.waitFor(t, 1)

	require.NoError(t, c.Close())
	assert.True(t, fs.last().stopped.Load(), "pending reconnect must be cancelled")

	// A timer that already fired races with Close; it must be ignored.
	fs.fireLast()
	c.Connect()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), connections.Load())
	assert.Equal(t, 1, fs.count())
	assert.Equal(t, Disconnected, c.State())
}

func TestClient_CloseSendsNormalClosure(t *testing.T) {
	closeCodes := make(chan int, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeCodes <- closeCode(err)
				return
			}
		}
	}))
	defer server.Close()

	c, fs := testClient(t, wsURL(server), nil, DefaultOptions())
	c.Connect()
	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case code := <-closeCodes:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for close frame")
	}
	assert.Equal(t, 0, fs.count())
	assert.False(t, c.IsConnected())
}

func TestEnvelope_Accessors(t *testing.T) {
	raw := `{"event":"mc_update","tradeData":{"mcUpdateData":{"tokenAddress":"So11111111111111111111111111111111111111112","newMarketCap":250000,"marketCapGain":12.5,"currentPrice":0.00025,"timestamp":1700000000000,"workerId":"w-3"}}}`

	var e Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	assert.Equal(t, EventMarketCapUpdate, e.Event)

	upd, err := e.MarketCapUpdate()
	require.NoError(t, err)
	assert.Equal(t, 250000.0, upd.NewMarketCap)
	assert.Equal(t, "w-3", upd.WorkerID)

	_, err = e.NewTrade()
	assert.Error(t, err, "accessor for another event must fail")

	snapshot := `{"event":"subscribe_copytrades","data":{"trades":[{"signature":"a"},{"signature":"b"}]}}`
	require.NoError(t, json.Unmarshal([]byte(snapshot), &e))
	trades, err := e.CopyTrades()
	require.NoError(t, err)
	assert.Len(t, trades, 2)

	out, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, snapshot, string(out))
}

func TestClient_CloseFromHandler(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"error","data":"shutting down"}`))
		holdOpen(conn)
	}))
	defer server.Close()

	var c *Client[Envelope]
	closed := make(chan error, 1)
	c, fs := testClient(t, wsURL(server), func(env Envelope) {
		if env.Event == EventError {
			closed <- c.Close()
		}
	}, Options{})
	c.Connect()

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close inside handler did not return")
	}

	require.Eventually(t, func() bool { return c.State() == Disconnected }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, fs.count(), "closed client must not reconnect")
}
