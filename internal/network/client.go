package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/bedrock-chatlog/internal/events"
	"github.com/MRamiBalles/bedrock-chatlog/internal/platform/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum frame size accepted from the bridge.
	maxMessageSize = 64 * 1024
	// Time allowed for the bridge to accept the WebSocket handshake.
	handshakeTimeout = 15 * time.Second
)

var (
	// ErrClosed is returned when the session has already been torn down.
	ErrClosed = errors.New("session closed")
	// ErrNotConnected is returned when the bridge socket is not up yet.
	ErrNotConnected = errors.New("session not connected")
	// ErrSendQueueFull is returned when outbound frames back up.
	ErrSendQueueFull = errors.New("send queue full")
)

// DialerConfig tunes the bridge client.
type DialerConfig struct {
	Path        string // defaults to /session
	EventBuffer int
	SendBuffer  int
}

// Dialer opens bridge sessions. It implements events.Dialer.
type Dialer struct {
	cfg    DialerConfig
	ws     *websocket.Dialer
	logger *logger.Logger
}

var _ events.Dialer = (*Dialer)(nil)

// NewDialer creates a bridge dialer.
func NewDialer(cfg DialerConfig, log *logger.Logger) *Dialer {
	if cfg.Path == "" {
		cfg.Path = "/session"
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 16
	}
	return &Dialer{
		cfg: cfg,
		ws: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeTimeout,
		},
		logger: log,
	}
}

// SessionURL builds the bridge URL for opts.
func (d *Dialer) SessionURL(opts events.Options) string {
	q := url.Values{}
	q.Set("username", opts.Username)
	q.Set("offline", strconv.FormatBool(opts.Offline))
	u := url.URL{
		Scheme:   "ws",
		Host:     net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Path:     d.cfg.Path,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Open starts connecting in the background and returns at once.
func (d *Dialer) Open(ctx context.Context, opts events.Options) events.Session {
	dialCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		events: make(chan events.Event, d.cfg.EventBuffer),
		send:   make(chan outbound, d.cfg.SendBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
		logger: d.logger,
	}
	go s.run(dialCtx, d.ws, d.SessionURL(opts))
	return s
}

type outbound struct {
	frame Frame
	ack   chan error
}

// Session is one bridge connection.
type Session struct {
	events chan events.Event
	send   chan outbound
	done   chan struct{}
	cancel context.CancelFunc
	logger *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	closeOnce sync.Once
}

// Events implements events.Session.
func (s *Session) Events() <-chan events.Event {
	return s.events
}

// run owns the events channel: it dials, reads until a terminal event, then
// closes the channel.
func (s *Session) run(ctx context.Context, dialer *websocket.Dialer, target string) {
	defer close(s.events)
	defer s.cancel()

	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		s.emit(events.Event{Type: events.EventTypeError, Err: fmt.Errorf("dial bridge: %w", err)})
		return
	}

	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		conn.Close()
		return
	default:
	}
	s.conn = conn
	s.mu.Unlock()

	go s.writePump(conn)
	s.readPump(conn)
}

// readPump pumps frames from the bridge to the events channel.
func (s *Session) readPump(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.isClosed() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.emit(events.Event{Type: events.EventTypeClosed, Reason: err.Error()})
				return
			}
			s.emit(events.Event{Type: events.EventTypeError, Err: fmt.Errorf("read bridge: %w", err)})
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			s.logger.Warnf("Dropping malformed bridge frame: %v", err)
			continue
		}
		ev, err := frame.toEvent()
		if err != nil {
			s.logger.Warnf("Dropping bridge frame %q: %v", frame.Event, err)
			continue
		}
		s.emit(ev)
		if ev.Type.Terminal() {
			return
		}
	}
}

// writePump pumps outbound frames and keepalive pings to the bridge.
func (s *Session) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-s.done:
			return
		case out := <-s.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteJSON(out.frame)
			if err == nil && out.frame.Event == FrameDisconnect {
				err = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, out.frame.Reason))
			}
			if out.ack != nil {
				out.ack <- err
			}
			if err != nil {
				s.logger.Warnf("Bridge write failed: %v", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// emit delivers ev unless the session was closed underneath it.
func (s *Session) emit(ev events.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send queues a command for the bot to run. It never blocks.
func (s *Session) Send(command string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if !s.connected() {
		return ErrNotConnected
	}
	select {
	case s.send <- outbound{frame: Frame{Event: FrameCommand, Command: command}}:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Disconnect asks the bridge to leave the server and waits for the frame
// to be written.
func (s *Session) Disconnect(reason string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if !s.connected() {
		return ErrNotConnected
	}

	ack := make(chan error, 1)
	timeout := time.NewTimer(writeWait)
	defer timeout.Stop()

	select {
	case s.send <- outbound{frame: Frame{Event: FrameDisconnect, Reason: reason}, ack: ack}:
	case <-s.done:
		return ErrClosed
	case <-timeout.C:
		return ErrSendQueueFull
	}

	select {
	case err := <-ack:
		return err
	case <-s.done:
		return ErrClosed
	case <-timeout.C:
		return fmt.Errorf("disconnect: no ack within %s", writeWait)
	}
}

// Close drops the connection without negotiation. Safe to call repeatedly.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.conn != nil {
			err = s.conn.Close()
		}
	})
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
