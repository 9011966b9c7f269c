package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/wsnext"
	"github.com/luciancaetano/wsnext/internal/dispatch"
	"github.com/luciancaetano/wsnext/internal/protocol"
)

// CheckOriginFn is a function that validates the origin of a WebSocket connection request.
// It receives the HTTP request and returns true if the origin is allowed, false otherwise.
// Use this to implement CORS policies for your WebSocket server.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is a callback function that is called when a new connection is accepted.
// It runs after the WebSocket handshake completes and before the endpoint's
// OnOpen callback. This is the place to:
//   - Track connected clients
//   - Send welcome messages
//   - Reject a connection early by closing it
//
// Note: This function is called synchronously during connection setup.
// Avoid long-running operations that could block new connections.
type OnConnectFn = func(conn wsnext.Connection)

// OnClientDisconnectFn is a callback type invoked once a connection is closed and its
// OnClose callback has run. voluntary is true when the peer initiated the closure, and
// false for server-initiated or abnormal closures.
type OnClientDisconnectFn = func(conn wsnext.Connection, voluntary bool)

// Engine defaults applied by New.
const (
	DefaultReadTimeout    = 60 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultPingInterval   = 54 * time.Second
	DefaultSendQueueSize  = 256
	DefaultMaxMessageSize = protocol.MaxPayloadSize
	DefaultBufferSize     = 1024
)

type ServerConfig struct {
	Addr               string
	RateLimitConfig    *RateLimitConfig
	CheckOrigin        CheckOriginFn
	OnConnect          OnConnectFn
	OnClientDisconnect OnClientDisconnectFn

	// EventLoops defaults to runtime.NumCPU() and Workers to 200.
	EventLoops      int
	Workers         int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	SendQueueSize   int
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	Logger          *slog.Logger

	// Container defaults to a wsnext.Beans holding the declared owners.
	Container     wsnext.Container
	TextCodecs    []wsnext.TextCodec
	BinaryCodecs  []wsnext.BinaryCodec
	Endpoints     []*wsnext.Endpoint
	ErrorHandlers []*wsnext.ErrorHandlers
}

// WithEndpoints appends endpoint declarations.
func (c *ServerConfig) WithEndpoints(eps ...*wsnext.Endpoint) *ServerConfig {
	c.Endpoints = append(c.Endpoints, eps...)
	return c
}

// WithErrorHandlers appends global error handler declarations.
func (c *ServerConfig) WithErrorHandlers(handlers ...*wsnext.ErrorHandlers) *ServerConfig {
	c.ErrorHandlers = append(c.ErrorHandlers, handlers...)
	return c
}

// WithCodecs registers additional codecs.
func (c *ServerConfig) WithCodecs(text []wsnext.TextCodec, binary []wsnext.BinaryCodec) *ServerConfig {
	c.TextCodecs = append(c.TextCodecs, text...)
	c.BinaryCodecs = append(c.BinaryCodecs, binary...)
	return c
}

// WithContainer sets the container owner instances are resolved from.
func (c *ServerConfig) WithContainer(container wsnext.Container) *ServerConfig {
	c.Container = container
	return c
}

// WithLogger sets the logger.
func (c *ServerConfig) WithLogger(logger *slog.Logger) *ServerConfig {
	c.Logger = logger
	return c
}

// ApplyDefaults fills zero settings with their defaults.
func (c *ServerConfig) ApplyDefaults() {
	if c.RateLimitConfig == nil {
		c.RateLimitConfig = DefaultRateLimitConfig()
	}
	if c.EventLoops <= 0 {
		c.EventLoops = runtime.NumCPU()
	}
	if c.Workers <= 0 {
		c.Workers = dispatch.DefaultWorkers
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = DefaultSendQueueSize
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = DefaultBufferSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// RateLimitConfig defines rate limiting configuration for clients
type RateLimitConfig struct {
	// MessagesPerSecond defines how many messages a client can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration
// Allows 100 messages per second with burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

var _ wsnext.Server = (*Server)(nil)

// Server implements the wsnext.Server interface
type Server struct {
	addr      string
	cfg       *ServerConfig
	server    *http.Server
	router    *Router
	executors *dispatch.Executors
	sessions  sync.Map // map[string]*dispatch.Session
	logger    *slog.Logger

	mu           sync.RWMutex
	running      bool
	upgrader     websocket.Upgrader
	onConnect    OnConnectFn
	onDisconnect OnClientDisconnectFn
}

// New creates a server with no endpoints. Endpoints are added with
// RegisterEndpoint before the server starts accepting connections.
//
// The event loops and worker pool are started immediately and stopped by
// Stop.
func New(cfg *ServerConfig) *Server {
	cfg.ApplyDefaults()
	return &Server{
		addr:         cfg.Addr,
		cfg:          cfg,
		router:       NewRouter(),
		executors:    dispatch.NewExecutors(cfg.EventLoops, cfg.Workers, cfg.Logger),
		logger:       cfg.Logger,
		onConnect:    cfg.OnConnect,
		onDisconnect: cfg.OnClientDisconnect,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

// RegisterEndpoint routes upgrade requests matching the normalized path p
// to sessions created by factory.
func (s *Server) RegisterEndpoint(p, id string, factory SessionFactory) error {
	if err := s.router.RegisterEndpoint(p, id, factory); err != nil {
		return err
	}
	s.logger.Info("websocket endpoint registered", "endpoint", id, "path", p)
	return nil
}

// Router returns the server's route table.
func (s *Server) Router() *Router {
	return s.router
}

// Start starts the WebSocket server
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New(wsnext.ErrMsgServerRunning)
	}
	s.running = true
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s,
	}
	s.server = srv
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Check for immediate startup errors with a small timeout
	select {
	case err := <-errChan:
		// Reset running state without calling Stop to avoid deadlock
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		// Context cancelled, stop the server
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	case <-time.After(100 * time.Millisecond):
		// Server started successfully, no immediate errors
		s.logger.Info("websocket server listening", "addr", s.addr)
		return nil
	}
}

// Stop closes every connection with 1001, waits for their close callbacks
// until ctx is done, then shuts the HTTP server and the executors down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	var pending []*dispatch.Session
	s.sessions.Range(func(_, value any) bool {
		if session, ok := value.(*dispatch.Session); ok {
			session.Conn().CloseWithCode(context.Background(), wsnext.CloseGoingAway, "server shutdown")
			pending = append(pending, session)
		}
		return true
	})

	var err error
	for _, session := range pending {
		select {
		case <-session.Done():
		case <-ctx.Done():
			err = ctx.Err()
		}
		if err != nil {
			break
		}
	}

	if srv != nil {
		if serr := srv.Shutdown(ctx); serr != nil && err == nil {
			err = serr
		}
	}
	s.executors.Stop()
	return err
}

// ServeHTTP upgrades requests whose path matches a registered endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, params, ok := s.router.Match(r.URL.Path)
	if !ok {
		http.Error(w, wsnext.ErrMsgEndpointNotFound, http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		s.logger.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, r.RemoteAddr, s.cfg)
	session := route.factory(dispatch.Options{
		Transport:  client,
		Executors:  s.executors,
		Manager:    route.manager,
		Handshake:  handshake(r),
		PathParams: params,
		Logger:     s.logger,
		OnClosed:   s.handleClosed,
	})
	s.sessions.Store(session.Conn().ID(), session)

	// Call onConnect callback if provided
	if s.onConnect != nil {
		s.onConnect(session.Conn())
	}

	session.Start()
	go func() {
		if err := client.Serve(session); err != nil {
			s.logger.Debug("websocket transport stopped", "client_id", session.Conn().ID(), "remote_addr", client.RemoteAddr(), "error", err)
		}
	}()
}

func (s *Server) handleClosed(conn *dispatch.Conn, code int, reason string, remote bool) {
	s.sessions.Delete(conn.ID())
	s.logger.Debug("websocket connection closed", "client_id", conn.ID(), "remote_addr", conn.RemoteAddr(), "code", code, "reason", reason)
	if s.onDisconnect != nil {
		s.onDisconnect(conn, remote)
	}
}

// BroadcastText sends a text frame to every open connection of an endpoint.
func (s *Server) BroadcastText(ctx context.Context, endpointID string, text string) error {
	route, ok := s.router.Route(endpointID)
	if !ok {
		return fmt.Errorf("%s: %s", wsnext.ErrMsgEndpointNotFound, endpointID)
	}
	return route.manager.SendText(ctx, text)
}

// BroadcastBinary sends a binary frame to every open connection of an endpoint.
func (s *Server) BroadcastBinary(ctx context.Context, endpointID string, data []byte) error {
	route, ok := s.router.Route(endpointID)
	if !ok {
		return fmt.Errorf("%s: %s", wsnext.ErrMsgEndpointNotFound, endpointID)
	}
	return route.manager.SendBinary(ctx, data)
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	n := 0
	s.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func handshake(r *http.Request) *wsnext.HandshakeRequest {
	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	return &wsnext.HandshakeRequest{
		Headers:    r.Header.Clone(),
		Scheme:     scheme,
		Host:       r.Host,
		Path:       r.URL.Path,
		Query:      r.URL.Query(),
		RemoteAddr: r.RemoteAddr,
	}
}
