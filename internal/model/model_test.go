package model

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/wsnext"
)

type chat struct{}

func (c *chat) Join(conn wsnext.Connection, room wsnext.PathParam) string { return "joined " + string(room) }
func (c *chat) Say(msg string) (string, error)                            { return msg, nil }
func (c *chat) Upload(data []byte) *wsnext.Future[int]                    { return wsnext.Completed(len(data)) }
func (c *chat) Pong(data wsnext.Buffer)                                   {}
func (c *chat) PongString(data string)                                    {}
func (c *chat) Leave(ctx context.Context)                                 {}
func (c *chat) LeaveAsync() *wsnext.Future[wsnext.Void]                   { return wsnext.Completed(wsnext.Void{}) }
func (c *chat) LeaveWithResult() string                                   { return "bye" }
func (c *chat) Ticks(msg string) <-chan int                               { return nil }
func (c *chat) Consume(in <-chan string)                                  {}
func (c *chat) Produce(out chan<- string)                                 {}
func (c *chat) OnAnyError(err error) string                               { return err.Error() }
func (c *chat) OnPanic(err *wsnext.PanicError) string                     { return "panic" }
func (c *chat) OnTwoErrors(a error, b *wsnext.PanicError)                 {}
func (c *chat) OnRoomError(err error, room wsnext.PathParam)              {}
func (c *chat) NoMessage(conn wsnext.Connection) string                   { return "" }
func (c *chat) TwoMessages(a, b string) string                            { return a + b }
func (c *chat) OpenWithPayload(p struct{ X int }) string                  { return "" }

type lobby struct{}

func (l *lobby) Join() {}

type errorHandlers struct{}

func (h *errorHandlers) Any(err error) string { return "global" }
func (h *errorHandlers) AnyAgain(err error)   {}

func discoverOne(t *testing.T, ep *wsnext.Endpoint) (*Endpoint, error) {
	t.Helper()
	models, _, err := Discover([]*wsnext.Endpoint{ep}, nil, nil)
	if err != nil {
		return nil, err
	}
	require.Len(t, models, 1)
	return models[0], nil
}

func TestDiscoverEndpoint(t *testing.T) {
	t.Parallel()

	m, err := discoverOne(t, &wsnext.Endpoint{
		Path:  "/chat/{room}",
		Owner: &chat{},
		Callbacks: []wsnext.Callback{
			{Event: wsnext.OnOpen, Method: (*chat).Join, PathParams: []string{"room"}},
			{Event: wsnext.OnTextMessage, Method: (*chat).Say, Broadcast: true},
			{Event: wsnext.OnBinaryMessage, Method: (*chat).Upload},
			{Event: wsnext.OnPongMessage, Method: (*chat).Pong},
			{Event: wsnext.OnClose, Method: (*chat).Leave, Marker: wsnext.RunOnVirtualThread},
			{Event: wsnext.OnError, Method: (*chat).OnAnyError},
			{Event: wsnext.OnError, Method: (*chat).OnPanic},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "/chat/:room", m.Path)
	assert.Equal(t, "*model.chat", m.ID)
	assert.Equal(t, "*model.chat", m.OwnerID)
	assert.Equal(t, wsnext.Serial, m.ExecutionMode)

	assert.Equal(t, "model.(*chat).Join()", m.OnOpen.Method)
	assert.True(t, m.OnOpen.HasOwner())
	assert.Equal(t, ReturnValue, m.OnOpen.Return)
	assert.Equal(t, wsnext.WorkerThread, m.OnOpen.ExecutionModel)

	assert.True(t, m.OnTextMessage.ReturnsError)
	assert.True(t, m.OnTextMessage.Broadcast)
	assert.Equal(t, reflect.TypeFor[string](), m.OnTextMessage.MessageType())

	assert.Equal(t, ReturnAsync, m.OnBinaryMessage.Return)
	assert.Equal(t, reflect.TypeFor[int](), m.OnBinaryMessage.ResultType)
	assert.Equal(t, wsnext.EventLoop, m.OnBinaryMessage.ExecutionModel)

	assert.True(t, m.OnPongMessage.IsVoid())
	assert.Equal(t, wsnext.VirtualThread, m.OnClose.ExecutionModel)

	require.Len(t, m.OnErrors, 2)
	assert.Equal(t, reflect.TypeFor[error](), m.OnErrors[0].ErrorType)
	assert.Equal(t, reflect.TypeFor[*wsnext.PanicError](), m.OnErrors[1].ErrorType)
	assert.Len(t, m.Callbacks(), 7)
}

func TestNestedPaths(t *testing.T) {
	t.Parallel()

	root := &wsnext.Endpoint{Path: "api/"}
	rooms := &wsnext.Endpoint{Path: "/rooms", Parent: root}
	ep := &wsnext.Endpoint{
		Path:      "{room}",
		Parent:    rooms,
		Owner:     &lobby{},
		Callbacks: []wsnext.Callback{{Event: wsnext.OnOpen, Method: (*lobby).Join}},
	}

	m, err := discoverOne(t, ep)
	require.NoError(t, err)
	assert.Equal(t, "/api/rooms/:room", m.Path)

	root.Parent = ep
	_, err = discoverOne(t, ep)
	assert.True(t, wsnext.IsDiscoveryError(err, wsnext.InvalidEndpoint), "got %v", err)
}

func TestDiscoverErrors(t *testing.T) {
	t.Parallel()

	open := wsnext.Callback{Event: wsnext.OnOpen, Method: (*lobby).Join}

	tests := []struct {
		name      string
		endpoints []*wsnext.Endpoint
		globals   []*wsnext.ErrorHandlers
		want      wsnext.DiscoveryErrorKind
	}{
		{
			name: "duplicate path",
			endpoints: []*wsnext.Endpoint{
				{Path: "/a/{x}", ID: "one", Owner: &lobby{}, Callbacks: []wsnext.Callback{open}},
				{Path: "/a/:x", ID: "two", Owner: &lobby{}, Callbacks: []wsnext.Callback{open}},
			},
			want: wsnext.DuplicatePath,
		},
		{
			name: "duplicate id",
			endpoints: []*wsnext.Endpoint{
				{Path: "/a", Owner: &lobby{}, Callbacks: []wsnext.Callback{open}},
				{Path: "/b", Owner: &lobby{}, Callbacks: []wsnext.Callback{open}},
			},
			want: wsnext.DuplicateID,
		},
		{
			name:      "ambiguous token",
			endpoints: []*wsnext.Endpoint{{Path: "/a/{x}y", Owner: &lobby{}, Callbacks: []wsnext.Callback{open}}},
			want:      wsnext.AmbiguousPathToken,
		},
		{
			name: "missing callback",
			endpoints: []*wsnext.Endpoint{{Path: "/a", Owner: &chat{}, Callbacks: []wsnext.Callback{
				{Event: wsnext.OnClose, Method: (*chat).Leave},
			}}},
			want: wsnext.MissingCallback,
		},
		{
			name: "two callbacks for one event",
			endpoints: []*wsnext.Endpoint{{Path: "/a", Owner: &chat{}, Callbacks: []wsnext.Callback{
				{Event: wsnext.OnTextMessage, Method: (*chat).Say},
				{Event: wsnext.OnTextMessage, Method: (*chat).Say},
			}}},
			want: wsnext.InvalidCallback,
		},
		{
			name: "duplicate local error handler",
			endpoints: []*wsnext.Endpoint{{Path: "/a", Owner: &chat{}, Callbacks: []wsnext.Callback{
				{Event: wsnext.OnTextMessage, Method: (*chat).Say},
				{Event: wsnext.OnError, Method: (*chat).OnAnyError},
				{Event: wsnext.OnError, Method: (*chat).OnAnyError},
			}}},
			want: wsnext.DuplicateErrorHandler,
		},
		{
			name: "duplicate global error handler",
			globals: []*wsnext.ErrorHandlers{{Owner: &errorHandlers{}, Callbacks: []wsnext.Callback{
				{Event: wsnext.OnError, Method: (*errorHandlers).Any},
				{Event: wsnext.OnError, Method: (*errorHandlers).AnyAgain},
			}}},
			want: wsnext.DuplicateErrorHandler,
		},
		{
			name: "global handler for a non-error event",
			globals: []*wsnext.ErrorHandlers{{Owner: &errorHandlers{}, Callbacks: []wsnext.Callback{
				{Event: wsnext.OnOpen, Method: (*errorHandlers).Any},
			}}},
			want: wsnext.InvalidCallback,
		},
		{
			name: "global handler with path param",
			globals: []*wsnext.ErrorHandlers{{Owner: &chat{}, Callbacks: []wsnext.Callback{
				{Event: wsnext.OnError, Method: (*chat).OnRoomError, PathParams: []string{"room"}},
			}}},
			want: wsnext.InvalidCallback,
		},
		{
			name: "pong with non-buffer message",
			endpoints: []*wsnext.Endpoint{{Path: "/a", Owner: &chat{}, Callbacks: []wsnext.Callback{
				{Event: wsnext.OnPongMessage, Method: (*chat).PongString},
			}}},
			want: wsnext.InvalidCallback,
		},
		{
			name: "close returning a value",
			endpoints: []*wsnext.Endpoint{{Path: "/a", Owner: &chat{}, Callbacks: []wsnext.Callback{
				{Event: wsnext.OnTextMessage, Method: (*chat).Say},
				{Event: wsnext.OnClose, Method: (*chat).LeaveWithResult},
			}}},
			want: wsnext.InvalidCallback,
		},
		{
			name: "text callback without message",
			endpoints: []*wsnext.Endpoint{{Path: "/a", Owner: &chat{}, Callbacks: []wsnext.Callback{
				{Event: wsnext.OnTextMessage, Method: (*chat).NoMessage},
			}}},
			want: wsnext.InvalidCallback,
		},
		{
			name: "text callback with two messages",
			endpoints: []*wsnext.Endpoint{{Path: "/a", Owner: &chat{}, Callbacks: []wsnext.Callback{
				{Event: wsnext.OnTextMessage, Method: (*chat).TwoMessages},
			}}},
			want: wsnext.InvalidCallback,
		},
		{
			name: "error callback with two errors",
			endpoints: []*wsnext.Endpoint{{Path: "/a", Owner: &chat{}, Callbacks: []wsnext.Callback{
				{Event: wsnext.OnTextMessage, Method: (*chat).Say},
				{Event: wsnext.OnError, Method: (*chat).OnTwoErrors},
			}}},
			want: wsnext.InvalidCallback,
		},
		{
			name: "unclaimed open parameter",
			endpoints: []*wsnext.Endpoint{{Path: "/a", Owner: &chat{}, Callbacks: []wsnext.Callback{
				{Event: wsnext.OnOpen, Method: (*chat).OpenWithPayload},
			}}},
			want: wsnext.UnclaimedParameter,
		},
		{
			name: "path param not in path",
			endpoints: []*wsnext.Endpoint{{Path: "/a/{user}", Owner: &chat{}, Callbacks: []wsnext.Callback{
				{Event: wsnext.OnOpen, Method: (*chat).Join, PathParams: []string{"room"}},
			}}},
			want: wsnext.InvalidCallback,
		},
		{
			name: "nil method",
			endpoints: []*wsnext.Endpoint{{Path: "/a", Owner: &chat{}, Callbacks: []wsnext.Callback{
				{Event: wsnext.OnOpen},
			}}},
			want: wsnext.InvalidCallback,
		},
		{
			name: "method is not a func",
			endpoints: []*wsnext.Endpoint{{Path: "/a", Owner: &chat{}, Callbacks: []wsnext.Callback{
				{Event: wsnext.OnOpen, Method: "Join"},
			}}},
			want: wsnext.InvalidCallback,
		},
		{
			name:      "nil endpoint",
			endpoints: []*wsnext.Endpoint{nil},
			want:      wsnext.InvalidEndpoint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			models, registry, err := Discover(tt.endpoints, tt.globals, nil)
			require.Error(t, err)
			assert.True(t, wsnext.IsDiscoveryError(err, tt.want), "want %s, got %v", tt.want, err)
			assert.Nil(t, models)
			assert.Nil(t, registry)
		})
	}
}

func TestDuplicateErrorNamesBothMethods(t *testing.T) {
	t.Parallel()

	_, _, err := Discover(nil, []*wsnext.ErrorHandlers{{Owner: &errorHandlers{}, Callbacks: []wsnext.Callback{
		{Event: wsnext.OnError, Method: (*errorHandlers).Any},
		{Event: wsnext.OnError, Method: (*errorHandlers).AnyAgain},
	}}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model.(*errorHandlers).Any()")
	assert.Contains(t, err.Error(), "model.(*errorHandlers).AnyAgain()")
}

func TestGlobalRegistry(t *testing.T) {
	t.Parallel()

	_, registry, err := Discover(nil, []*wsnext.ErrorHandlers{{Owner: &errorHandlers{}, Callbacks: []wsnext.Callback{
		{Event: wsnext.OnError, Method: (*errorHandlers).Any},
	}}}, nil)
	require.NoError(t, err)
	require.Len(t, registry.Handlers(), 1)

	cb := registry.Lookup(reflect.TypeFor[error]())
	require.NotNil(t, cb)
	assert.True(t, cb.Global)
	assert.Equal(t, "*model.errorHandlers", cb.OwnerID)
	assert.Nil(t, registry.Lookup(reflect.TypeFor[*wsnext.PanicError]()))
}

func TestClassifyReturns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fn       any
		kind     ReturnKind
		result   reflect.Type
		withErr  bool
		void     bool
		execMode wsnext.ExecutionModel
	}{
		{name: "void", fn: func() {}, kind: ReturnVoid, void: true, execMode: wsnext.WorkerThread},
		{name: "error only", fn: func() error { return nil }, kind: ReturnVoid, withErr: true, void: true, execMode: wsnext.WorkerThread},
		{name: "value", fn: func() string { return "" }, kind: ReturnValue, result: reflect.TypeFor[string](), execMode: wsnext.WorkerThread},
		{name: "value and error", fn: (*chat).Say, kind: ReturnValue, result: reflect.TypeFor[string](), withErr: true, execMode: wsnext.WorkerThread},
		{name: "future", fn: (*chat).Upload, kind: ReturnAsync, result: reflect.TypeFor[int](), execMode: wsnext.EventLoop},
		{name: "future void", fn: (*chat).LeaveAsync, kind: ReturnAsync, result: reflect.TypeFor[wsnext.Void](), void: true, execMode: wsnext.EventLoop},
		{name: "stream", fn: (*chat).Ticks, kind: ReturnStream, result: reflect.TypeFor[int](), execMode: wsnext.EventLoop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			kind, result, withErr, err := classifyReturn(reflect.TypeOf(tt.fn))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.result, result)
			assert.Equal(t, tt.withErr, withErr)

			cb := &Callback{Return: kind, ResultType: result}
			assert.Equal(t, tt.void, cb.IsVoid())
			assert.Equal(t, tt.execMode, ResolveExecutionModel(wsnext.NoMarker, kind, false))
		})
	}

	_, _, _, err := classifyReturn(reflect.TypeOf(func() (string, int) { return "", 0 }))
	assert.Error(t, err)
	_, _, _, err = classifyReturn(reflect.TypeOf(func() (error, error) { return nil, nil }))
	assert.Error(t, err)
}

func TestResolveExecutionModelMarkers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, wsnext.VirtualThread, ResolveExecutionModel(wsnext.RunOnVirtualThread, ReturnAsync, false))
	assert.Equal(t, wsnext.WorkerThread, ResolveExecutionModel(wsnext.Blocking, ReturnStream, false))
	assert.Equal(t, wsnext.EventLoop, ResolveExecutionModel(wsnext.NonBlocking, ReturnValue, false))
	assert.Equal(t, wsnext.VirtualThread, ResolveExecutionModel(wsnext.NoMarker, ReturnVoid, true))
	assert.Equal(t, wsnext.WorkerThread, ResolveExecutionModel(wsnext.Blocking, ReturnVoid, true))
}

func TestStreamConsumerCallbacks(t *testing.T) {
	t.Parallel()

	m, err := discoverOne(t, &wsnext.Endpoint{
		Path:  "/feed",
		Owner: &chat{},
		Callbacks: []wsnext.Callback{
			{Event: wsnext.OnTextMessage, Method: (*chat).Consume},
		},
	})
	require.NoError(t, err)

	cb := m.Callback(wsnext.OnTextMessage)
	require.NotNil(t, cb)
	assert.True(t, cb.ConsumesStream)
	assert.Equal(t, reflect.TypeFor[<-chan string](), cb.MessageType())
	assert.Equal(t, reflect.TypeFor[string](), cb.MessageItemType())
	assert.Equal(t, wsnext.VirtualThread, cb.ExecutionModel)

	say := &Callback{Args: nil}
	assert.Nil(t, say.MessageItemType())

	_, err = discoverOne(t, &wsnext.Endpoint{
		Path:  "/feed",
		Owner: &chat{},
		Callbacks: []wsnext.Callback{
			{Event: wsnext.OnTextMessage, Method: (*chat).Produce},
		},
	})
	assert.True(t, wsnext.IsDiscoveryError(err, wsnext.InvalidCallback), "got %v", err)
}

func TestPlainFunctionCallbacks(t *testing.T) {
	t.Parallel()

	m, err := discoverOne(t, &wsnext.Endpoint{
		Path: "/echo",
		ID:   "echo",
		Callbacks: []wsnext.Callback{
			{Event: wsnext.OnTextMessage, Method: func(msg string) string { return msg }},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "echo", m.ID)
	assert.False(t, m.OnTextMessage.HasOwner())
	assert.Empty(t, m.OnTextMessage.OwnerID)
}
