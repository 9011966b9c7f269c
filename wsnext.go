package wsnext

import (
	"context"
	"net/http"
)

// Server is a WebSocket server that serves compiled endpoints.
//
// Example usage:
//
//	server, err := ws.New(ws.NewConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins(), nil, nil).
//	    WithEndpoints(echo))
//	if err != nil {
//	    log.Fatal(err) // invalid declarations never start the server
//	}
//	server.Start(ctx)
type Server interface {
	// Start starts listening for connections.
	//
	// Returns an error if the server is already running or if there's a problem
	// binding to the network address.
	Start(ctx context.Context) error

	// Stop closes all connections and shuts the server down.
	Stop(ctx context.Context) error

	// ServeHTTP upgrades requests whose path matches a registered endpoint.
	// It allows mounting the server on an existing http.Server.
	ServeHTTP(w http.ResponseWriter, r *http.Request)

	// BroadcastText sends a text frame to every open connection of the
	// endpoint with the given id.
	BroadcastText(ctx context.Context, endpointID string, text string) error

	// BroadcastBinary sends a binary frame to every open connection of the
	// endpoint with the given id.
	BroadcastBinary(ctx context.Context, endpointID string, data []byte) error
}

// Sender sends frames.
type Sender interface {
	// SendText queues a text frame. It returns once the frame is queued, not
	// once it is written.
	SendText(ctx context.Context, text string) error

	// SendBinary queues a binary frame.
	SendBinary(ctx context.Context, data []byte) error
}

// Connection is the handle of one live WebSocket connection. It can be bound
// as a callback parameter.
//
// Each connection has a unique identifier and its own dispatch state. The
// connection's context is cancelled when the connection closes.
type Connection interface {
	Sender

	// ID returns a unique identifier for the connection.
	ID() string

	// EndpointID returns the id of the endpoint serving the connection.
	EndpointID() string

	// PathParam returns the value of a path parameter, or "" if absent.
	PathParam(name string) string

	// PathParams returns a copy of all path parameters.
	PathParams() PathParams

	// Handshake returns the upgrade request.
	Handshake() *HandshakeRequest

	// RemoteAddr returns the peer's network address, e.g. "192.168.1.100:54321".
	RemoteAddr() string

	// Context returns the connection's lifecycle context.
	//
	// Example:
	//
	//	go func() {
	//	    <-conn.Context().Done()
	//	    log.Printf("Connection %s closed", conn.ID())
	//	}()
	Context() context.Context

	// SendPing queues a ping frame. The peer's pong is delivered to the
	// endpoint's OnPongMessage callback.
	SendPing(ctx context.Context, data []byte) error

	// Broadcast returns a Sender that targets every open connection of the
	// same endpoint, including this one.
	Broadcast() Sender

	// Close initiates a normal closure. The OnClose callback runs before the
	// transport is torn down. Close does not wait for the closure to finish;
	// wait on Context().Done() for that.
	Close(ctx context.Context) error

	// CloseWithCode initiates a closure with a specific close code and reason.
	//
	// Common close codes:
	//   - 1000 (CloseNormalClosure): Normal closure
	//   - 1001 (CloseGoingAway): Endpoint going away
	//   - 1008 (ClosePolicyViolation): Policy violation
	//   - 1011 (CloseInternalError): Unexpected condition
	CloseWithCode(ctx context.Context, code int, reason string) error

	// IsAlive returns true until the connection starts closing.
	IsAlive() bool
}

// Container supplies the owner instances of callbacks. The engine calls
// ResolveInstance once per invocation and never caches the result itself.
type Container interface {
	ResolveInstance(ownerID string) (any, error)
}
