// Package session exposes search controllers over websocket. Each connection
// owns one controller for its lifetime.
package session

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"token-find/internal/observability"
	"token-find/internal/search"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// DefaultSendBuffer is the number of outbound frames queued per session.
	DefaultSendBuffer = 64
)

// Inbound message types.
const (
	MsgInput   = "input"
	MsgKeyDown = "keydown"
	MsgFocus   = "focus"
	MsgBlur    = "blur"
	MsgClear   = "clear"
	MsgSelect  = "select"
)

// Outbound message types.
const (
	MsgState    = "state"
	MsgSelected = "selected"
	MsgError    = "error"
)

// Inbound is a client command.
type Inbound struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Key  string `json:"key,omitempty"`
	ID   string `json:"id,omitempty"`
}

// Outbound is a server push.
type Outbound[T any] struct {
	Type    string                  `json:"type"`
	Session string                  `json:"session"`
	State   *search.State[T]        `json:"state,omitempty"`
	Result  *search.ScoredResult[T] `json:"result,omitempty"`
	Message string                  `json:"message,omitempty"`
}

// Config configures a Server.
type Config[T any] struct {
	Search             search.SearchFunc[T]
	MinQueryLength     int
	MaxResults         int
	Debounce           time.Duration
	ShowResultsOnFocus bool

	// SendBuffer bounds queued outbound frames; a session that overflows it is dropped.
	SendBuffer int
	// OnSelect observes selections across all sessions.
	OnSelect func(sessionID string, result search.ScoredResult[T])

	Logger *log.Logger
}

// Server upgrades HTTP requests to search sessions.
type Server[T any] struct {
	cfg      Config[T]
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu       sync.Mutex
	sessions map[string]*Session[T]
	closing  bool
	wg       sync.WaitGroup
}

// ErrServerClosed is returned for sessions opened after Shutdown started.
var ErrServerClosed = errors.New("session server closed")

// NewServer creates a session server. Config.Search is required.
func NewServer[T any](cfg Config[T]) (*Server[T], error) {
	if cfg.Search == nil {
		return nil, search.ErrNoSearchFunc
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Server[T]{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:   logger,
		sessions: make(map[string]*Session[T]),
	}, nil
}

// ServeHTTP upgrades the request and runs the session until the client leaves.
func (s *Server[T]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("upgrade failed: %v", err)
		return
	}

	sess, err := s.newSession(conn)
	if err != nil {
		s.logger.Printf("create session: %v", err)
		conn.Close()
		return
	}
	sess.start()
}

// Count returns the number of open sessions.
func (s *Server[T]) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown disconnects every session and waits for their goroutines.
// Upgrades completing afterwards are rejected.
func (s *Server[T]) Shutdown() {
	s.mu.Lock()
	s.closing = true
	open := make([]*Session[T], 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		sess.disconnect()
	}
	s.wg.Wait()
}

func (s *Server[T]) newSession(conn *websocket.Conn) (*Session[T], error) {
	sess := &Session[T]{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
		send:   make(chan []byte, s.cfg.SendBuffer),
		done:   make(chan struct{}),
		logger: s.logger,
	}

	ctrl, err := search.NewController(search.Config[T]{
		Search:             s.cfg.Search,
		MinQueryLength:     s.cfg.MinQueryLength,
		MaxResults:         s.cfg.MaxResults,
		Debounce:           s.cfg.Debounce,
		ShowResultsOnFocus: s.cfg.ShowResultsOnFocus,
		OnChange:           sess.pushState,
		OnSelect:           sess.pushSelected,
		Logger:             s.logger,
	})
	if err != nil {
		return nil, err
	}
	sess.ctrl = ctrl

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		ctrl.Close()
		return nil, ErrServerClosed
	}
	s.sessions[sess.id] = sess
	s.wg.Add(2)
	s.mu.Unlock()

	observability.SessionOpened()
	s.logger.Printf("session %s opened from %s", sess.id, conn.RemoteAddr())
	return sess, nil
}

func (s *Server[T]) remove(sess *Session[T]) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
}

// Session is one websocket connection and its controller.
type Session[T any] struct {
	id     string
	server *Server[T]
	conn   *websocket.Conn
	ctrl   *search.Controller[T]
	logger *log.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// ID returns the session id.
func (s *Session[T]) ID() string {
	return s.id
}

func (s *Session[T]) start() {
	state := s.ctrl.State()
	s.enqueue(Outbound[T]{Type: MsgState, Session: s.id, State: &state})

	go s.writePump()
	go s.readPump()
}

// readPump applies client commands until the connection fails, then tears
// the session down.
func (s *Session[T]) readPump() {
	defer func() {
		s.disconnect()
		s.ctrl.Close()
		s.server.remove(s)
		observability.SessionClosed()
		s.logger.Printf("session %s closed", s.id)
		s.server.wg.Done()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Printf("session %s read error: %v", s.id, err)
			}
			return
		}
		s.handle(data)
	}
}

func (s *Session[T]) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		s.server.wg.Done()
	}()

	for {
		select {
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Printf("session %s write error: %v", s.id, err)
				s.disconnect()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.disconnect()
				return
			}

		case <-s.done:
			return
		}
	}
}

// handle applies one inbound frame to the controller.
func (s *Session[T]) handle(data []byte) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		s.pushError("malformed message")
		return
	}

	switch in.Type {
	case MsgInput:
		s.ctrl.InputChange(in.Text)
	case MsgKeyDown:
		s.ctrl.KeyDown(search.ParseKey(in.Key))
	case MsgFocus:
		s.ctrl.Focus()
	case MsgBlur:
		s.ctrl.Blur()
	case MsgClear:
		s.ctrl.Clear()
	case MsgSelect:
		for _, r := range s.ctrl.State().Results {
			if r.ID == in.ID {
				s.ctrl.ResultClick(r)
				return
			}
		}
		s.pushError("unknown result " + in.ID)
	default:
		s.pushError("unknown message type " + in.Type)
	}
}

func (s *Session[T]) pushState(state search.State[T]) {
	s.enqueue(Outbound[T]{Type: MsgState, Session: s.id, State: &state})
}

func (s *Session[T]) pushSelected(result search.ScoredResult[T]) {
	s.enqueue(Outbound[T]{Type: MsgSelected, Session: s.id, Result: &result})
	if s.server.cfg.OnSelect != nil {
		s.server.cfg.OnSelect(s.id, result)
	}
}

func (s *Session[T]) pushError(message string) {
	s.enqueue(Outbound[T]{Type: MsgError, Session: s.id, Message: message})
}

// enqueue never blocks. A full buffer means the client is not keeping up,
// and the session is dropped.
func (s *Session[T]) enqueue(msg Outbound[T]) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("session %s: encode %s: %v", s.id, msg.Type, err)
		return
	}

	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.send <- data:
	default:
		s.logger.Printf("session %s: send buffer full, disconnecting", s.id)
		s.disconnect()
	}
}

// disconnect closes the connection once. Both pumps exit afterwards.
func (s *Session[T]) disconnect() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}
