// Package wsnext compiles declared WebSocket endpoints into dispatchers and
// serves them.
//
// An endpoint is a path template and an owner type whose methods are bound
// to protocol events. Declarations are validated and compiled once, when the
// server is created; invalid declarations return a *DiscoveryError and
// nothing is registered.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/wsnext"
//	    "github.com/luciancaetano/wsnext/ws"
//	)
//
//	type Echo struct{}
//
//	func (e *Echo) Echo(msg string) string { return msg }
//
//	cfg := ws.NewConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins(), nil, nil).
//	    WithEndpoints(&wsnext.Endpoint{
//	        Path:  "/echo/{room}",
//	        Owner: &Echo{},
//	        Callbacks: []wsnext.Callback{
//	            {Event: wsnext.OnTextMessage, Method: (*Echo).Echo},
//	        },
//	    })
//	server, err := ws.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	server.Start(ctx)
//
// # Callbacks
//
// A callback binds one method to an Event. Its parameters are resolved at
// compile time: the message (text and binary callbacks only), the
// Connection, the HandshakeRequest, PathParam values named by
// Callback.PathParams, PathParams, and for error callbacks the error itself.
// A parameter nothing can supply is a deploy-time error.
//
// Messages are decoded by type: string, Buffer, JSONObject and JSONArray are
// built in; other types go through the registered codecs (JSON for text,
// CBOR for binary by default). Return values are encoded the same way and
// sent back, or broadcast when Callback.Broadcast is set.
//
// # Execution
//
// Every connection is driven by its own dispatcher. In Serial mode at most
// one callback runs at a time and frames queue in arrival order; in
// Concurrent mode invocations may overlap. Frames received before OnOpen
// completes are held until it does.
//
// A callback runs on the connection's event loop when it returns a *Future
// or a receive channel, and on the worker pool otherwise. Blocking,
// NonBlocking and RunOnVirtualThread markers override that choice.
//
// A text or binary callback whose message parameter is a receive channel
// consumes the connection as a stream. It is invoked once, on the first
// frame, and runs on its own goroutine unless a marker says otherwise.
// Frames are decoded and delivered in arrival order, and the channel is
// closed when the connection closes.
//
// # Errors
//
// A callback error is routed to the most specific OnError callback of the
// endpoint, then of its parents, then of the global ErrorHandlers. An error
// nothing handles closes the connection with 1011 (Internal Error).
//
// # Rate Limiting
//
// Each connection has an independent token bucket:
//
//	// Default: 100 messages/second, burst 200
//	rateLimitConfig := ws.DefaultRateLimitConfig()
//
//	// Disabled
//	rateLimitConfig := ws.NoRateLimit()
//
// When the rate limit is exceeded the connection is closed with 1008
// (Policy Violation).
//
// # Important
//
//   - Buffer parameters reference the read buffer; do not retain them
//   - Event loop callbacks must not block
//   - Configure CheckOriginFn in production (never use ws.AllOrigins() in production)
package wsnext
