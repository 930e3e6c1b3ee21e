// Package bridge owns the duplex websocket session to the editor.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"lukebridge/internal/codec"
	"lukebridge/internal/discovery"
	"lukebridge/internal/domain"
	"lukebridge/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// State is the connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// EndpointLocator resolves the editor's port.
type EndpointLocator interface {
	Discover() (discovery.Endpoint, bool)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Locator          EndpointLocator
	Host             string        // default: localhost
	HandshakeTimeout time.Duration // default: 5s
	RequestTimeout   time.Duration // applied when the caller's ctx has no deadline; 0 disables
	Dialer           *websocket.Dialer
	Logger           *slog.Logger
}

// Session holds at most one websocket connection to the editor. Send is
// single-flight: one request/response cycle runs at a time. Any fault closes
// the connection so the next Send rediscovers and redials.
type Session struct {
	id               string
	locator          EndpointLocator
	host             string
	handshakeTimeout time.Duration
	requestTimeout   time.Duration
	dialer           *websocket.Dialer
	logger           *slog.Logger

	// live mirrors conn for Close, which must reach the socket without s.mu.
	live    atomic.Pointer[websocket.Conn]
	closing atomic.Bool

	mu       sync.Mutex
	conn     *websocket.Conn
	endpoint discovery.Endpoint
	state    State
	attempts int
}

// NewSession creates a disconnected session. Nothing is dialed until the first Send.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Locator == nil {
		cfg.Locator = discovery.NewLocator(discovery.LocatorConfig{Logger: cfg.Logger})
	}
	id := uuid.NewString()
	return &Session{
		id:               id,
		locator:          cfg.Locator,
		host:             cfg.Host,
		handshakeTimeout: cfg.HandshakeTimeout,
		requestTimeout:   cfg.RequestTimeout,
		dialer:           cfg.Dialer,
		logger:           cfg.Logger.With("session_id", id),
	}
}

// ID identifies the session in logs and the journal.
func (s *Session) ID() string { return s.id }

// State reports the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnectAttempts counts how many times the session tried to establish a connection.
func (s *Session) ConnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Endpoint returns the endpoint of the live connection, if any.
func (s *Session) Endpoint() (discovery.Endpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint, s.conn != nil
}

// Connect establishes the connection if none is open.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureConnected(ctx)
}

// Send runs one request/response cycle. A reply with success=false is still a
// successful round trip; interpreting it is the caller's job.
func (s *Session) Send(ctx context.Context, cmd domain.Command) (domain.Response, error) {
	payload, err := codec.EncodeCommand(cmd)
	if err != nil {
		return domain.Response{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok && s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		metrics.CanceledRequests.Inc()
		return domain.Response{}, fmt.Errorf("%w: %w", ErrCanceled, err)
	}

	if err := s.ensureConnected(ctx); err != nil {
		return domain.Response{}, err
	}

	metrics.RequestsTotal.Inc()
	start := time.Now()
	resp, err := s.roundTrip(ctx, payload)
	if err != nil {
		s.fault(err)
		if s.closing.Load() {
			return domain.Response{}, fmt.Errorf("%w: %s: session closed", ErrTransport, cmd.Type())
		}
		if ctxErr := deadlineCause(ctx, err); ctxErr != nil {
			metrics.CanceledRequests.Inc()
			return domain.Response{}, fmt.Errorf("%w: %s: %w", ErrCanceled, cmd.Type(), ctxErr)
		}
		metrics.TransportFaults.Inc()
		return domain.Response{}, fmt.Errorf("%w: %s: %v", ErrTransport, cmd.Type(), err)
	}
	metrics.RequestLatency.Observe(time.Since(start).Seconds())

	s.logger.Debug("editor round trip", "command", cmd.Type(), "success", resp.Success, "elapsed", time.Since(start))
	return resp, nil
}

// Close closes the connection, if any, with a normal-closure frame. A Send in
// flight on another goroutine is interrupted first and fails with ErrTransport,
// so Close never waits on the editor. The session stays usable; the next Send
// redials.
func (s *Session) Close() error {
	s.closing.Store(true)
	defer s.closing.Store(false)
	if conn := s.live.Load(); conn != nil {
		past := time.Unix(1, 0)
		_ = conn.SetReadDeadline(past)
		_ = conn.SetWriteDeadline(past)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := s.conn.Close()
	s.retire(StateDisconnected)
	return err
}

// ensureConnected makes exactly one discovery and one dial when no connection
// is open. Callers must hold s.mu.
func (s *Session) ensureConnected(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	s.state = StateDisconnected
	s.attempts++
	metrics.ConnectAttempts.Inc()

	ep, ok := s.locator.Discover()
	if !ok {
		metrics.DiscoveryFailures.Inc()
		return ErrEndpointNotFound
	}

	s.state = StateConnecting
	url := "ws://" + net.JoinHostPort(s.host, strconv.Itoa(ep.Port))

	dialCtx, cancel := context.WithTimeout(ctx, s.handshakeTimeout)
	defer cancel()

	conn, resp, err := s.dialer.DialContext(dialCtx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		s.state = StateDisconnected
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.CanceledRequests.Inc()
			return fmt.Errorf("%w: connect: %w", ErrCanceled, ctxErr)
		}
		metrics.ConnectFailures.Inc()
		s.logger.Warn("editor connection failed", "url", url, "err", err)
		return fmt.Errorf("%w at %s: %v", ErrConnect, url, err)
	}

	s.conn = conn
	s.live.Store(conn)
	s.endpoint = ep
	s.state = StateConnected
	metrics.Connected.Set(1)
	s.logger.Info("connected to editor", "url", url, "marker", ep.Source)
	return nil
}

// roundTrip writes one message and reads exactly one reply. Cancelling ctx
// expires the socket deadlines so a blocked read returns promptly.
func (s *Session) roundTrip(ctx context.Context, payload []byte) (domain.Response, error) {
	conn := s.conn

	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return domain.Response{}, fmt.Errorf("set write deadline: %w", err)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return domain.Response{}, fmt.Errorf("set read deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		past := time.Unix(1, 0)
		_ = conn.SetReadDeadline(past)
		_ = conn.SetWriteDeadline(past)
	})
	defer stop()

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return domain.Response{}, fmt.Errorf("send command: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return domain.Response{}, fmt.Errorf("read response: %w", err)
	}

	return codec.DecodeResponse(msg)
}

// fault closes and forgets the connection after a failed round trip.
func (s *Session) fault(err error) {
	s.logger.Warn("editor connection faulted", "err", err)
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.retire(StateFaulted)
}

func (s *Session) retire(state State) {
	s.conn = nil
	s.live.Store(nil)
	s.endpoint = discovery.Endpoint{}
	s.state = state
	metrics.Connected.Set(0)
}

// deadlineCause returns the context error behind a failed round trip. Socket
// deadlines are only ever derived from ctx, so a net timeout counts as the
// deadline even when it fires a moment before ctx reports it.
func deadlineCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return context.DeadlineExceeded
	}
	return nil
}
