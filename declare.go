package wsnext

// Event is the protocol event a callback is bound to.
type Event int

const (
	OnOpen Event = iota + 1
	OnTextMessage
	OnBinaryMessage
	OnPongMessage
	OnClose
	OnError
)

func (e Event) String() string {
	switch e {
	case OnOpen:
		return "OnOpen"
	case OnTextMessage:
		return "OnTextMessage"
	case OnBinaryMessage:
		return "OnBinaryMessage"
	case OnPongMessage:
		return "OnPongMessage"
	case OnClose:
		return "OnClose"
	case OnError:
		return "OnError"
	default:
		return "Unknown"
	}
}

// AcceptsMessage reports whether callbacks for the event receive a frame
// payload.
func (e Event) AcceptsMessage() bool {
	return e == OnTextMessage || e == OnBinaryMessage || e == OnPongMessage
}

// Marker explicitly places a callback on an execution model. Without a
// marker the model is derived from the callback's return type.
type Marker int

const (
	NoMarker Marker = iota
	// Blocking places the callback on the worker pool.
	Blocking
	// NonBlocking places the callback on the connection's event loop.
	NonBlocking
	// RunOnVirtualThread runs each invocation on its own goroutine.
	RunOnVirtualThread
)

// Callback declares one handler method of an endpoint.
//
// Method is either a method expression whose first parameter is the owner
// type, for example (*Chat).OnMessage, or a plain function. The remaining
// parameters are bound by argument resolvers:
//
//   - the message (text, binary and pong callbacks only)
//   - wsnext.Connection
//   - wsnext.PathParam / wsnext.PathParams
//   - *wsnext.HandshakeRequest
//   - context.Context
//   - an error type (error callbacks only)
//
// Supported results are nothing, T, *Future[T] or <-chan T, each optionally
// followed by an error.
type Callback struct {
	Event  Event
	Method any

	// Marker overrides the execution model derived from the signature.
	Marker Marker

	// Broadcast sends the result to every open connection of the endpoint.
	Broadcast bool

	// PathParams names the PathParam parameters of Method, in order.
	PathParams []string

	// InputCodec and OutputCodec select a registered codec by name.
	InputCodec  string
	OutputCodec string
}

// Endpoint declares one WebSocket endpoint.
//
//	chat := &wsnext.Endpoint{
//	    Path:  "/chat/{room}",
//	    Owner: &Chat{},
//	    Callbacks: []wsnext.Callback{
//	        {Event: wsnext.OnOpen, Method: (*Chat).Join},
//	        {Event: wsnext.OnTextMessage, Method: (*Chat).Say, Broadcast: true},
//	    },
//	}
type Endpoint struct {
	// Path may contain {name} placeholders. Nested endpoints are prefixed
	// with the path of their Parent.
	Path string

	// ID defaults to the owner identifier.
	ID string

	ExecutionMode ExecutionMode

	// Owner is the instance (or a typed prototype) that declares the
	// callbacks. OwnerID defaults to the owner's type name and is the key
	// passed to Container.ResolveInstance.
	Owner   any
	OwnerID string

	Parent *Endpoint

	Callbacks []Callback
}

// ErrorHandlers declares error callbacks that are not bound to an endpoint.
// They apply to every endpoint that has no local handler for the same error
// type.
type ErrorHandlers struct {
	Owner     any
	OwnerID   string
	Callbacks []Callback
}
