// Package model validates endpoint declarations and turns them into
// immutable endpoint models.
package model

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/luciancaetano/wsnext"
	"github.com/luciancaetano/wsnext/internal/argument"
	"github.com/luciancaetano/wsnext/internal/hierarchy"
)

// ReturnKind classifies a callback's result.
type ReturnKind int

const (
	ReturnVoid ReturnKind = iota
	ReturnValue
	ReturnAsync
	ReturnStream
)

func (k ReturnKind) String() string {
	switch k {
	case ReturnVoid:
		return "void"
	case ReturnValue:
		return "value"
	case ReturnAsync:
		return "async"
	case ReturnStream:
		return "stream"
	default:
		return "unknown"
	}
}

var (
	awaitableType = reflect.TypeFor[wsnext.Awaitable]()
	voidType      = reflect.TypeFor[wsnext.Void]()
	bufferType    = reflect.TypeFor[wsnext.Buffer]()
	pathParamType = reflect.TypeFor[wsnext.PathParam]()
)

// Callback is a validated handler method.
type Callback struct {
	Event wsnext.Event

	// OwnerID is empty for plain functions.
	OwnerID   string
	OwnerType reflect.Type

	// Method is the diagnostic name, e.g. "main.(*Chat).Join()".
	Method string
	Func   reflect.Value
	Args   []argument.Argument

	// ConsumesStream is set when the message parameter is a receive
	// channel. The callback is invoked once and frames are delivered to the
	// channel item by item.
	ConsumesStream bool

	Return       ReturnKind
	ReturnsError bool
	// ResultType is the declared result for values, the item type for async
	// and stream results, and nil for void.
	ResultType reflect.Type

	ExecutionModel wsnext.ExecutionModel
	Broadcast      bool
	InputCodec     string
	OutputCodec    string

	// ErrorType is the error parameter type of error callbacks.
	ErrorType reflect.Type
	Global    bool
}

// HasOwner reports whether the callback needs an owner instance.
func (c *Callback) HasOwner() bool {
	return c.OwnerType != nil
}

// MessageType returns the type of the message parameter, or nil.
func (c *Callback) MessageType() reflect.Type {
	if a, ok := argument.Find(c.Args, argument.KindMessage); ok {
		return a.Type
	}
	return nil
}

// MessageItemType returns the type a single frame decodes to: the element
// type for stream consumers, otherwise the message parameter type.
func (c *Callback) MessageItemType() reflect.Type {
	mt := c.MessageType()
	if mt != nil && c.ConsumesStream {
		return mt.Elem()
	}
	return mt
}

// IsVoid reports whether the callback produces no frame: void results and
// Future[Void].
func (c *Callback) IsVoid() bool {
	return c.Return == ReturnVoid || (c.Return == ReturnAsync && c.ResultType == voidType)
}

// String returns the diagnostic method name.
func (c *Callback) String() string {
	return c.Method
}

// methodName returns pkg.(*T).Method() for method expressions and
// pkg.Func() for functions.
func methodName(fn reflect.Value) string {
	f := runtime.FuncForPC(fn.Pointer())
	if f == nil {
		return fn.Type().String()
	}
	name := f.Name()
	name = strings.TrimSuffix(name, "-fm")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name + "()"
}

// classifyReturn inspects the result list of fn.
func classifyReturn(ft reflect.Type) (kind ReturnKind, result reflect.Type, returnsError bool, err error) {
	errType := hierarchy.ErrorType()
	switch ft.NumOut() {
	case 0:
		return ReturnVoid, nil, false, nil
	case 1:
		out := ft.Out(0)
		if out == errType {
			return ReturnVoid, nil, true, nil
		}
		kind, result = classifyResult(out)
		return kind, result, false, nil
	case 2:
		if ft.Out(1) != errType {
			return 0, nil, false, fmt.Errorf("second result must be error, got %v", ft.Out(1))
		}
		if ft.Out(0) == errType {
			return 0, nil, false, errors.New("first result must not be error")
		}
		kind, result = classifyResult(ft.Out(0))
		return kind, result, true, nil
	default:
		return 0, nil, false, fmt.Errorf("too many results: %d", ft.NumOut())
	}
}

func classifyResult(out reflect.Type) (ReturnKind, reflect.Type) {
	if out.Implements(awaitableType) && out.Kind() == reflect.Pointer && out.Elem().Kind() == reflect.Struct {
		if f, ok := out.Elem().FieldByName("value"); ok {
			return ReturnAsync, f.Type
		}
	}
	if out.Kind() == reflect.Chan && out.ChanDir()&reflect.RecvDir != 0 {
		return ReturnStream, out.Elem()
	}
	return ReturnValue, out
}

// bindMethod splits fn into owner and bindable parameters. A function whose
// first parameter accepts the owner type is treated as a method expression.
func bindMethod(fn reflect.Value, ownerType reflect.Type) (params []reflect.Type, bound bool) {
	ft := fn.Type()
	start := 0
	if ownerType != nil && ft.NumIn() > 0 && ownerType.AssignableTo(ft.In(0)) && ft.In(0) != reflect.TypeFor[any]() {
		start = 1
		bound = true
	}
	for i := start; i < ft.NumIn(); i++ {
		params = append(params, ft.In(i))
	}
	return params, bound
}

// ResolveExecutionModel derives where a callback runs. Markers win; stream
// consumers live as long as the connection and get their own goroutine;
// otherwise void and plain value results run on the worker pool, while
// async and stream results run on the event loop.
func ResolveExecutionModel(marker wsnext.Marker, ret ReturnKind, consumesStream bool) wsnext.ExecutionModel {
	switch marker {
	case wsnext.RunOnVirtualThread:
		return wsnext.VirtualThread
	case wsnext.Blocking:
		return wsnext.WorkerThread
	case wsnext.NonBlocking:
		return wsnext.EventLoop
	}
	if consumesStream {
		return wsnext.VirtualThread
	}
	switch ret {
	case ReturnAsync, ReturnStream:
		return wsnext.EventLoop
	default:
		return wsnext.WorkerThread
	}
}

// scope describes where a callback is declared.
type scope struct {
	ownerID      string
	ownerType    reflect.Type
	endpointPath string
	global       bool
}

// newCallback validates one declaration and binds its parameters.
func newCallback(decl wsnext.Callback, sc scope, resolvers argument.Resolvers) (*Callback, error) {
	if decl.Method == nil {
		return nil, wsnext.NewDiscoveryError(wsnext.InvalidCallback, "%s callback has no method", decl.Event)
	}
	fn := reflect.ValueOf(decl.Method)
	if fn.Kind() != reflect.Func {
		return nil, wsnext.NewDiscoveryError(wsnext.InvalidCallback, "%s callback method is a %v, not a func", decl.Event, fn.Kind())
	}
	if fn.IsNil() {
		return nil, wsnext.NewDiscoveryError(wsnext.InvalidCallback, "%s callback method is nil", decl.Event)
	}
	name := methodName(fn)
	ft := fn.Type()
	if ft.IsVariadic() {
		return nil, wsnext.NewDiscoveryError(wsnext.InvalidCallback, "%s must not be variadic", name)
	}

	cb := &Callback{
		Event:       decl.Event,
		Method:      name,
		Func:        fn,
		Broadcast:   decl.Broadcast,
		InputCodec:  decl.InputCodec,
		OutputCodec: decl.OutputCodec,
		Global:      sc.global,
	}

	params, bound := bindMethod(fn, sc.ownerType)
	if bound {
		cb.OwnerID = sc.ownerID
		cb.OwnerType = ft.In(0)
	}

	kind, result, returnsError, err := classifyReturn(ft)
	if err != nil {
		return nil, wsnext.NewDiscoveryError(wsnext.InvalidCallback, "%s: %v", name, err)
	}
	cb.Return, cb.ResultType, cb.ReturnsError = kind, result, returnsError

	pathParamIdx := 0
	for i, pt := range params {
		d := argument.Descriptor{
			Index:        i,
			Type:         pt,
			Event:        decl.Event,
			Method:       name,
			EndpointPath: sc.endpointPath,
			Global:       sc.global,
		}
		if pt == pathParamType {
			if pathParamIdx < len(decl.PathParams) {
				d.PathParam = decl.PathParams[pathParamIdx]
			}
			pathParamIdx++
		}
		arg, err := resolvers.Resolve(d)
		if err != nil {
			var ue *argument.UnclaimedError
			if errors.As(err, &ue) {
				return nil, wsnext.NewDiscoveryError(wsnext.UnclaimedParameter, "%v", err)
			}
			return nil, wsnext.NewDiscoveryError(wsnext.InvalidCallback, "%v", err)
		}
		cb.Args = append(cb.Args, arg)
	}
	if pathParamIdx < len(decl.PathParams) {
		return nil, wsnext.NewDiscoveryError(wsnext.InvalidCallback,
			"%s declares %d path parameter names but has %d PathParam parameters", name, len(decl.PathParams), pathParamIdx)
	}

	if err := validateShape(cb); err != nil {
		return nil, err
	}
	cb.ExecutionModel = ResolveExecutionModel(decl.Marker, cb.Return, cb.ConsumesStream)
	return cb, nil
}

func validateShape(cb *Callback) error {
	messages := argument.Count(cb.Args, argument.KindMessage)
	switch cb.Event {
	case wsnext.OnTextMessage, wsnext.OnBinaryMessage:
		if messages == 0 {
			return wsnext.NewDiscoveryError(wsnext.InvalidCallback, "%s must accept a message parameter", cb.Method)
		}
		if messages > 1 {
			return wsnext.NewDiscoveryError(wsnext.InvalidCallback, "%s accepts more than one message parameter", cb.Method)
		}
		if mt := cb.MessageType(); mt.Kind() == reflect.Chan {
			if mt.ChanDir()&reflect.RecvDir == 0 {
				return wsnext.NewDiscoveryError(wsnext.InvalidCallback, "%s message stream %v must be receivable", cb.Method, mt)
			}
			cb.ConsumesStream = true
		}
	case wsnext.OnPongMessage:
		if messages > 1 {
			return wsnext.NewDiscoveryError(wsnext.InvalidCallback, "%s accepts more than one message parameter", cb.Method)
		}
		if mt := cb.MessageType(); mt != nil && mt != bufferType {
			return wsnext.NewDiscoveryError(wsnext.InvalidCallback, "%s must accept wsnext.Buffer, not %v", cb.Method, mt)
		}
		if !cb.IsVoid() {
			return wsnext.NewDiscoveryError(wsnext.InvalidCallback, "%s must return nothing or *wsnext.Future[wsnext.Void]", cb.Method)
		}
	case wsnext.OnClose:
		if !cb.IsVoid() {
			return wsnext.NewDiscoveryError(wsnext.InvalidCallback, "%s must return nothing or *wsnext.Future[wsnext.Void]", cb.Method)
		}
	case wsnext.OnError:
		errs := argument.Count(cb.Args, argument.KindError)
		if errs != 1 {
			return wsnext.NewDiscoveryError(wsnext.InvalidCallback, "%s must accept exactly one error parameter, has %d", cb.Method, errs)
		}
		a, _ := argument.Find(cb.Args, argument.KindError)
		cb.ErrorType = a.Type
	case wsnext.OnOpen:
	default:
		return wsnext.NewDiscoveryError(wsnext.InvalidCallback, "%s is bound to unknown event %d", cb.Method, int(cb.Event))
	}
	return nil
}
