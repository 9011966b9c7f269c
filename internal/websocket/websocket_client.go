package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/wsnext"
	"github.com/luciancaetano/wsnext/internal/dispatch"
	"github.com/luciancaetano/wsnext/internal/protocol"
)

type outbound struct {
	kind protocol.FrameKind
	data []byte
	done *wsnext.Future[wsnext.Void]
}

// Client is the gorilla/websocket transport of one accepted connection. It
// implements dispatch.Transport.
type Client struct {
	conn        *websocket.Conn
	remoteAddr  string
	cfg         *ServerConfig
	ctx         context.Context
	cancel      context.CancelFunc
	sendCh      chan outbound
	mu          sync.RWMutex
	closed      bool
	rateLimiter *rate.Limiter // Rate limiter for incoming messages
	logger      *slog.Logger
}

// NewClient wraps an upgraded connection. cfg must have its defaults
// applied.
func NewClient(conn *websocket.Conn, remoteAddr string, cfg *ServerConfig) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	var limiter *rate.Limiter
	if cfg.RateLimitConfig != nil && cfg.RateLimitConfig.Enabled {
		limiter = rate.NewLimiter(cfg.RateLimitConfig.MessagesPerSecond, cfg.RateLimitConfig.Burst)
	}

	return &Client{
		conn:        conn,
		remoteAddr:  remoteAddr,
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan outbound, cfg.SendQueueSize),
		rateLimiter: limiter,
		logger:      cfg.Logger.With("remote_addr", remoteAddr),
	}
}

// RemoteAddr returns the client's remote network address
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// WriteFrame queues a frame for the write pump. It never blocks: a full
// queue fails the frame.
func (c *Client) WriteFrame(kind protocol.FrameKind, data []byte) *wsnext.Future[wsnext.Void] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return wsnext.Failed[wsnext.Void](wsnext.ErrConnectionClosed)
	}

	out := outbound{kind: kind, data: data, done: wsnext.NewFuture[wsnext.Void]()}
	select {
	case c.sendCh <- out:
		return out.done
	default:
		return wsnext.Failed[wsnext.Void](errors.New(wsnext.ErrMsgSendQueueFull))
	}
}

// Close sends a close frame and closes the connection. Frames still queued
// fail with wsnext.ErrConnectionClosed.
func (c *Client) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.cancel()

	message := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(time.Second)
	c.conn.WriteControl(websocket.CloseMessage, message, deadline)

	c.drain()
	return c.conn.Close()
}

// IsAlive returns true until Close is called.
func (c *Client) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// CheckRateLimit checks if the client has exceeded the rate limit
// Returns true if the message is allowed, false if rate limited
func (c *Client) CheckRateLimit() bool {
	if c.rateLimiter == nil {
		// Rate limiting disabled
		return true
	}
	return c.rateLimiter.Allow()
}

// Serve runs the read loop and the write pump until the connection ends.
// Frames are delivered to session, which decides when to close.
func (c *Client) Serve(session *dispatch.Session) error {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(appData string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		session.OnFrame(protocol.PongFrame, []byte(appData))
		return nil
	})

	eg, ctx := errgroup.WithContext(c.ctx)
	eg.Go(func() error {
		return c.writePump(ctx)
	})
	eg.Go(func() error {
		c.readLoop(session)
		return nil
	})
	return eg.Wait()
}

// readLoop reads frames until the connection fails or the session stops
// reading because of a rate limit violation.
func (c *Client) readLoop(session *dispatch.Session) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			code, reason := closeStatus(err)
			if c.IsAlive() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.logger.Warn("unexpected websocket close", "error", err)
			}
			session.OnTransportClose(code, reason)
			return
		}

		// Reset read deadline after successful read
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		if !c.CheckRateLimit() {
			c.logger.Warn("rate limit exceeded", "client_id", session.Conn().ID())
			session.Conn().CloseWithCode(context.Background(), wsnext.ClosePolicyViolation, wsnext.ErrMsgRateLimitExceeded)
			return
		}

		switch mt {
		case websocket.TextMessage:
			session.OnFrame(protocol.TextFrame, data)
		case websocket.BinaryMessage:
			session.OnFrame(protocol.BinaryFrame, data)
		}
	}
}

// writePump pumps frames from the send queue to the websocket connection
// and pings the peer every PingInterval.
func (c *Client) writePump(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.drain()
	}()

	for {
		select {
		case out := <-c.sendCh:
			if err := c.write(out.kind, out.data); err != nil {
				out.done.Fail(err)
				// Unblocks the read loop, which reports the failure to the session.
				c.conn.Close()
				return err
			}
			out.done.Complete(wsnext.Void{})

		case <-ticker.C:
			// Send ping to keep connection alive
			if err := c.write(protocol.PingFrame, nil); err != nil {
				c.conn.Close()
				return err
			}

		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Client) write(kind protocol.FrameKind, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err := c.conn.WriteMessage(messageType(kind), data)
	if err == nil {
		return nil
	}
	if !c.IsAlive() || errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", wsnext.ErrConnectionClosed, err)
	}
	return err
}

// drain fails every queued frame once the pump has stopped.
func (c *Client) drain() {
	for {
		select {
		case out := <-c.sendCh:
			out.done.Fail(wsnext.ErrConnectionClosed)
		default:
			return
		}
	}
}

func messageType(kind protocol.FrameKind) int {
	switch kind {
	case protocol.TextFrame:
		return websocket.TextMessage
	case protocol.PingFrame:
		return websocket.PingMessage
	case protocol.PongFrame:
		return websocket.PongMessage
	case protocol.CloseFrame:
		return websocket.CloseMessage
	default:
		return websocket.BinaryMessage
	}
}

// closeStatus extracts the close code and reason of a read error.
func closeStatus(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return wsnext.CloseMessageTooBig, err.Error()
	}
	return wsnext.CloseAbnormalClosure, err.Error()
}
