package dispatch

import (
	"context"
	"fmt"

	"github.com/luciancaetano/wsnext"
	"github.com/luciancaetano/wsnext/internal/protocol"
)

// Conn implements wsnext.Connection and compiler.Outbound for one session.
type Conn struct {
	id         string
	endpointID string
	params     wsnext.PathParams
	handshake  *wsnext.HandshakeRequest
	remoteAddr string
	ctx        context.Context
	cancel     context.CancelFunc
	session    *Session
	manager    *Manager
}

// ID returns a unique identifier for the connection.
func (c *Conn) ID() string {
	return c.id
}

// EndpointID returns the id of the endpoint serving the connection.
func (c *Conn) EndpointID() string {
	return c.endpointID
}

// PathParam returns the value of a path parameter, or "".
func (c *Conn) PathParam(name string) string {
	return c.params[name]
}

// PathParams returns a copy of the path parameters.
func (c *Conn) PathParams() wsnext.PathParams {
	return copyParams(c.params)
}

// Handshake returns the upgrade request.
func (c *Conn) Handshake() *wsnext.HandshakeRequest {
	return c.handshake
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Context returns the connection's lifecycle context.
func (c *Conn) Context() context.Context {
	return c.ctx
}

// Connection implements compiler.Outbound.
func (c *Conn) Connection() wsnext.Connection {
	return c
}

// Send implements compiler.Outbound.
func (c *Conn) Send(kind protocol.FrameKind, data []byte, broadcast bool) *wsnext.Future[wsnext.Void] {
	if broadcast {
		return c.manager.Broadcast(kind, data)
	}
	return c.write(kind, data)
}

// Fail implements compiler.Outbound.
func (c *Conn) Fail(err error) {
	c.session.fail(err)
}

// SendText queues a text frame.
func (c *Conn) SendText(ctx context.Context, text string) error {
	return c.queue(ctx, protocol.TextFrame, []byte(text))
}

// SendBinary queues a binary frame.
func (c *Conn) SendBinary(ctx context.Context, data []byte) error {
	return c.queue(ctx, protocol.BinaryFrame, data)
}

// SendPing queues a ping frame.
func (c *Conn) SendPing(ctx context.Context, data []byte) error {
	return c.queue(ctx, protocol.PingFrame, data)
}

// Broadcast returns a Sender targeting every open connection of the
// endpoint.
func (c *Conn) Broadcast() wsnext.Sender {
	return c.manager
}

// Close initiates a normal closure.
func (c *Conn) Close(ctx context.Context) error {
	return c.CloseWithCode(ctx, wsnext.CloseNormalClosure, "")
}

// CloseWithCode initiates a closure. It returns before the close callback
// runs.
func (c *Conn) CloseWithCode(ctx context.Context, code int, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := protocol.EncodeClose(code, reason); err != nil {
		return err
	}
	c.session.close(code, reason)
	return nil
}

// IsAlive returns true until the connection starts closing.
func (c *Conn) IsAlive() bool {
	return c.session.State() < ClosePending
}

func (c *Conn) write(kind protocol.FrameKind, data []byte) *wsnext.Future[wsnext.Void] {
	if !c.IsAlive() {
		return wsnext.Failed[wsnext.Void](wsnext.ErrConnectionClosed)
	}
	if err := protocol.CheckPayload(kind, data); err != nil {
		return wsnext.Failed[wsnext.Void](err)
	}
	return c.session.transport.WriteFrame(kind, data)
}

// queue writes a frame and reports failures known at queueing time.
func (c *Conn) queue(ctx context.Context, kind protocol.FrameKind, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", wsnext.ErrMsgContextCancelled, err)
	}
	return queued(c.write(kind, data))
}

// queued returns the error of an already failed future, or nil if the
// future is still pending or succeeded.
func queued(fut *wsnext.Future[wsnext.Void]) error {
	select {
	case <-fut.Done():
		_, err := fut.Await(context.Background())
		return err
	default:
		return nil
	}
}
