// Package editor is an in-memory stand-in for the editor extension: it hosts
// the websocket command endpoint, publishes its port in a marker file, and
// applies drawing commands to per-file scenes.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"lukebridge/internal/bus"
	"lukebridge/internal/codec"
	"lukebridge/internal/discovery"
	"lukebridge/internal/domain"
	"lukebridge/internal/metrics"

	"github.com/gorilla/websocket"
)

// ErrDuplicateID is the rejection message for a draw that reuses an id.
const ErrDuplicateID = "duplicate id"

// Config configures the reference editor.
type Config struct {
	Host        string        // default: 127.0.0.1
	Port        int           // 0 picks a free port
	PortFile    string        // marker to publish the bound port in; empty skips it
	MetricsPath string        // serves the metrics collector when set (e.g. /metrics)
	Events      *bus.EventBus // scene changes are published here; nil creates a private bus
	Logger      *slog.Logger
}

// Server is the reference editor endpoint.
type Server struct {
	host        string
	port        int
	portFile    string
	metricsPath string
	logger      *slog.Logger
	events      *bus.EventBus

	listener net.Listener
	server   *http.Server

	mu       sync.Mutex
	active   string
	scenes   map[string][]domain.Element
	requests []domain.Command
	clients  map[*websocket.Conn]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // loopback-only endpoint
	},
}

// New creates an editor. Nothing listens until Listen or Start.
func New(cfg Config) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Events == nil {
		cfg.Events = bus.NewEventBus(cfg.Logger, 0)
	}
	return &Server{
		host:        cfg.Host,
		port:        cfg.Port,
		portFile:    cfg.PortFile,
		metricsPath: cfg.MetricsPath,
		logger:      cfg.Logger,
		events:      cfg.Events,
		scenes:      make(map[string][]domain.Element),
		clients:     make(map[*websocket.Conn]struct{}),
	}
}

// Listen binds the endpoint and returns the port, without serving yet.
func (s *Server) Listen() (int, error) {
	if s.listener != nil {
		return s.port, nil
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(s.host, fmt.Sprint(s.port)))
	if err != nil {
		return 0, fmt.Errorf("listen: %w", err)
	}
	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	return s.port, nil
}

// Port returns the bound port (or the configured one before Listen).
func (s *Server) Port() int { return s.port }

// Start listens if needed, publishes the marker, and serves until ctx is done.
// The marker is removed again on shutdown.
func (s *Server) Start(ctx context.Context) error {
	if _, err := s.Listen(); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	if s.metricsPath != "" {
		mux.HandleFunc(s.metricsPath, metrics.Collector.Handler())
	}
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.portFile != "" {
		if err := discovery.WritePortFile(s.portFile, s.port); err != nil {
			return fmt.Errorf("write port marker: %w", err)
		}
		defer os.Remove(s.portFile)
	}

	s.logger.Info("editor endpoint listening", "port", s.port, "marker", s.portFile)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.closeAllClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
	metrics.EditorClients.Inc()
	remote := conn.RemoteAddr().String()
	s.logger.Info("bridge client connected", "remote", remote)
	s.events.Emit(bus.Event{Type: bus.EventClientConnected, Detail: remote})

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		metrics.EditorClients.Dec()
		conn.Close()
		s.logger.Info("bridge client disconnected", "remote", remote)
		s.events.Emit(bus.Event{Type: bus.EventClientDisconnected, Detail: remote})
	}()

	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		resp := s.HandleMessage(message)
		out, err := codec.EncodeResponse(resp)
		if err != nil {
			s.logger.Error("encode response", "err", err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			s.logger.Debug("websocket write failed", "err", err)
			return
		}
	}
}

// HandleMessage decodes one wire message and applies it.
func (s *Server) HandleMessage(message []byte) domain.Response {
	cmd, err := codec.DecodeCommand(message)
	if err != nil {
		s.logger.Warn("invalid command", "err", err)
		return domain.Fail(fmt.Sprintf("invalid command: %v", err))
	}
	return s.Handle(cmd)
}

// Handle applies a decoded command to the scene and returns the reply.
// Scene changes are published on the event bus after the scene lock is released.
func (s *Server) Handle(cmd domain.Command) domain.Response {
	metrics.EditorCommands.Inc()

	resp, ev := s.apply(cmd)
	if ev != nil {
		s.events.Emit(*ev)
	}
	return resp
}

func (s *Server) apply(cmd domain.Command) (domain.Response, *bus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, cmd)

	switch c := cmd.(type) {
	case domain.GetActiveFile:
		return ok(domain.ActiveFile{FilePath: s.active}), nil

	case domain.SetFile:
		s.active = c.FilePath
		if _, exists := s.scenes[c.FilePath]; !exists {
			s.scenes[c.FilePath] = []domain.Element{}
		}
		return ok(map[string]string{"status": "success", "file_path": c.FilePath}),
			&bus.Event{Type: bus.EventFileOpened, FilePath: c.FilePath}

	case domain.DrawCircle:
		return s.add(c.FilePath, domain.CircleElement(c.Circle))

	case domain.DrawRectangle:
		return s.add(c.FilePath, domain.RectangleElement(c.Rectangle))

	case domain.GetElements:
		elements := s.scenes[c.FilePath]
		if elements == nil {
			elements = []domain.Element{}
		}
		return ok(elements), nil

	case domain.GetElementByID:
		if i := s.indexOf(c.FilePath, c.ID); i >= 0 {
			return ok(s.scenes[c.FilePath][i]), nil
		}
		return ok(nil), nil

	default:
		return domain.Fail(fmt.Sprintf("unsupported command %q", cmd.Type())), nil
	}
}

func (s *Server) add(path string, el domain.Element) (domain.Response, *bus.Event) {
	if s.indexOf(path, el.ID) >= 0 {
		return domain.Fail(ErrDuplicateID),
			&bus.Event{Type: bus.EventElementRejected, FilePath: path, ElementID: el.ID, Detail: ErrDuplicateID}
	}
	s.scenes[path] = append(s.scenes[path], el)
	return ok(el), &bus.Event{Type: bus.EventElementAdded, FilePath: path, ElementID: el.ID, Detail: el.Type}
}

func (s *Server) indexOf(path, id string) int {
	return slices.IndexFunc(s.scenes[path], func(e domain.Element) bool { return e.ID == id })
}

// ActiveFile returns the focused document.
func (s *Server) ActiveFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Elements returns a copy of a document's scene.
func (s *Server) Elements(path string) []domain.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.scenes[path])
}

// Events returns the bus scene changes are published on.
func (s *Server) Events() *bus.EventBus { return s.events }

// Requests returns every command received so far, in arrival order.
func (s *Server) Requests() []domain.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// DropClients closes every open bridge connection, simulating an editor reload.
func (s *Server) DropClients() {
	s.closeAllClients()
}

func (s *Server) closeAllClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.Close()
	}
}

func ok(v any) domain.Response {
	raw, err := codec.Result(v)
	if err != nil {
		return domain.Fail(err.Error())
	}
	return domain.OK(raw)
}
