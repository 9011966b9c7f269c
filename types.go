package wsnext

import (
	"net/http"
	"net/url"
)

// Buffer is a raw frame payload. Binding a message parameter of type Buffer
// hands the callback the frame bytes without copying them.
//
// Pong callbacks must declare their message parameter as Buffer.
type Buffer []byte

// JSONObject is the built-in structured type for JSON objects.
type JSONObject map[string]any

// JSONArray is the built-in structured type for JSON arrays.
type JSONArray []any

// PathParam is a callback parameter bound to one path parameter of the
// endpoint path. Names are assigned positionally from Callback.PathParams.
type PathParam string

// PathParams is a callback parameter bound to all path parameters of the
// connection, keyed by name.
type PathParams map[string]string

// ExecutionMode governs whether callback invocations for one connection may
// overlap in time.
type ExecutionMode int

const (
	// Serial allows at most one callback invocation in flight per connection.
	// Frames received while an invocation is running are queued.
	Serial ExecutionMode = iota
	// Concurrent allows any number of in-flight invocations per connection.
	Concurrent
)

func (m ExecutionMode) String() string {
	switch m {
	case Serial:
		return "SERIAL"
	case Concurrent:
		return "CONCURRENT"
	default:
		return "UNKNOWN"
	}
}

// ExecutionModel is the scheduling context a callback runs on.
type ExecutionModel int

const (
	// EventLoop runs the callback on the event loop the connection is pinned
	// to. The callback must not block.
	EventLoop ExecutionModel = iota
	// WorkerThread runs the callback on the bounded worker pool.
	WorkerThread
	// VirtualThread runs the callback on its own goroutine.
	VirtualThread
)

func (m ExecutionModel) String() string {
	switch m {
	case EventLoop:
		return "EVENT_LOOP"
	case WorkerThread:
		return "WORKER_THREAD"
	case VirtualThread:
		return "VIRTUAL_THREAD"
	default:
		return "UNKNOWN"
	}
}

// HandshakeRequest describes the HTTP upgrade request of a connection.
type HandshakeRequest struct {
	Headers    http.Header
	Scheme     string
	Host       string
	Path       string
	Query      url.Values
	RemoteAddr string
}

// Header returns the first value of the named request header.
func (h *HandshakeRequest) Header(name string) string {
	if h == nil || h.Headers == nil {
		return ""
	}
	return h.Headers.Get(name)
}

// QueryParam returns the first value of the named query parameter.
func (h *HandshakeRequest) QueryParam(name string) string {
	if h == nil || h.Query == nil {
		return ""
	}
	return h.Query.Get(name)
}
