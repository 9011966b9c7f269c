package compiler

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/luciancaetano/wsnext"
	"github.com/luciancaetano/wsnext/internal/argument"
	"github.com/luciancaetano/wsnext/internal/hierarchy"
	"github.com/luciancaetano/wsnext/internal/model"
	"github.com/luciancaetano/wsnext/internal/protocol"
)

// Outbound is the connection side an adapter sends results to.
type Outbound interface {
	// Connection is the handle bound to Connection parameters.
	Connection() wsnext.Connection

	// Send queues a frame. The returned future resolves once the frame is
	// written. It fails with wsnext.ErrConnectionClosed when the connection
	// is closing; such results are dropped.
	Send(kind protocol.FrameKind, data []byte, broadcast bool) *wsnext.Future[wsnext.Void]

	// Fail closes the connection abnormally. It is called when a callback
	// running detached from frame dispatch fails and so does its error
	// routing.
	Fail(err error)
}

// Scheduler runs tasks on an execution model.
type Scheduler interface {
	Execute(em wsnext.ExecutionModel, task func())
}

// Adapter dispatches the events of one connection to the compiled
// callbacks. It is never shared between connections.
type Adapter struct {
	compiled  *Compiled
	out       Outbound
	sched     Scheduler
	container wsnext.Container

	mu      sync.Mutex
	streams map[*handler]*inputStream
	closed  bool
}

// NewAdapter binds the table to one connection.
func (c *Compiled) NewAdapter(out Outbound, sched Scheduler, container wsnext.Container) *Adapter {
	return &Adapter{
		compiled:  c,
		out:       out,
		sched:     sched,
		container: container,
		streams:   make(map[*handler]*inputStream),
	}
}

// Compiled returns the table the adapter dispatches to.
func (a *Adapter) Compiled() *Compiled {
	return a.compiled
}

// OnOpen runs the open callback.
func (a *Adapter) OnOpen() *wsnext.Future[wsnext.Void] {
	return a.dispatch(a.compiled.onOpen, nil)
}

// OnTextMessage decodes and dispatches a text frame.
func (a *Adapter) OnTextMessage(data []byte) *wsnext.Future[wsnext.Void] {
	if h := a.compiled.onText; h != nil && h.cb.ConsumesStream {
		return a.consume(h, data)
	}
	return a.dispatch(a.compiled.onText, data)
}

// OnBinaryMessage decodes and dispatches a binary frame.
func (a *Adapter) OnBinaryMessage(data []byte) *wsnext.Future[wsnext.Void] {
	if h := a.compiled.onBinary; h != nil && h.cb.ConsumesStream {
		return a.consume(h, data)
	}
	return a.dispatch(a.compiled.onBinary, data)
}

// OnPongMessage dispatches a pong frame.
func (a *Adapter) OnPongMessage(data []byte) *wsnext.Future[wsnext.Void] {
	return a.dispatch(a.compiled.onPong, data)
}

// OnClose closes the message streams, then runs the close callback.
func (a *Adapter) OnClose() *wsnext.Future[wsnext.Void] {
	a.mu.Lock()
	a.closed = true
	streams := a.streams
	a.streams = nil
	a.mu.Unlock()
	for _, in := range streams {
		in.close()
	}
	return a.dispatch(a.compiled.onClose, nil)
}

// OnError routes err to the most specific matching error handler. The
// returned future fails with err when no handler matches, and with the
// handler's own failure when the handler fails; handler failures are never
// routed again.
func (a *Adapter) OnError(err error) *wsnext.Future[wsnext.Void] {
	for _, h := range a.compiled.errorChain {
		if !hierarchy.Is(err, h.cb.ErrorType) {
			continue
		}
		done := wsnext.NewFuture[wsnext.Void]()
		a.sched.Execute(h.cb.ExecutionModel, func() {
			a.invoke(h, &argument.Invocation{Err: err}).OnComplete(func(_ wsnext.Void, herr error) {
				if herr != nil {
					done.Fail(&HandlerError{Method: h.cb.Method, Cause: err, Err: herr})
					return
				}
				done.Complete(wsnext.Void{})
			})
		})
		return done
	}
	return wsnext.Failed[wsnext.Void](&UnhandledError{Err: err})
}

// ExecutionModel returns where the callback for ev runs.
func (a *Adapter) ExecutionModel(ev wsnext.Event) wsnext.ExecutionModel {
	return a.compiled.ExecutionModel(ev)
}

// StreamItemType returns the item type of a streaming callback, or nil.
func (a *Adapter) StreamItemType(ev wsnext.Event) reflect.Type {
	return a.compiled.StreamItemType(ev)
}

// EncodeStreamItem encodes one item of a streaming callback's result.
func (a *Adapter) EncodeStreamItem(ev wsnext.Event, v any) ([]byte, error) {
	return a.compiled.EncodeStreamItem(ev, v)
}

// ConsumedItemType returns the item type of a stream consumer, or nil.
func (a *Adapter) ConsumedItemType(ev wsnext.Event) reflect.Type {
	return a.compiled.ConsumedItemType(ev)
}

// DecodeStreamItem decodes one frame for a stream consumer.
func (a *Adapter) DecodeStreamItem(ev wsnext.Event, data []byte) (any, error) {
	return a.compiled.DecodeStreamItem(ev, data)
}

// dispatch runs h on its execution model. Failures go through OnError; the
// returned future fails only when error dispatch fails.
func (a *Adapter) dispatch(h *handler, payload []byte) *wsnext.Future[wsnext.Void] {
	if h == nil {
		return wsnext.Completed(wsnext.Void{})
	}
	done := wsnext.NewFuture[wsnext.Void]()
	a.sched.Execute(h.cb.ExecutionModel, func() {
		inv := &argument.Invocation{}
		if h.decode != nil {
			msg, err := h.decode(payload)
			if err != nil {
				wsnext.Forward(a.OnError(err), done)
				return
			}
			inv.Message = msg
		}
		a.invoke(h, inv).OnComplete(func(_ wsnext.Void, err error) {
			if err != nil {
				wsnext.Forward(a.OnError(err), done)
				return
			}
			done.Complete(wsnext.Void{})
		})
	})
	return done
}

// invoke calls the callback and sends its result. The future resolves once
// the result is sent, or fails with the first error along the way.
func (a *Adapter) invoke(h *handler, inv *argument.Invocation) *wsnext.Future[wsnext.Void] {
	cb := h.cb
	inv.Conn = a.out.Connection()
	inv.Ctx = a.context()

	args := make([]reflect.Value, 0, len(cb.Args)+1)
	if cb.HasOwner() {
		owner, err := a.resolveOwner(cb.OwnerID, cb.OwnerType)
		if err != nil {
			return wsnext.Failed[wsnext.Void](err)
		}
		args = append(args, owner)
	}
	values, err := argument.Produce(cb.Args, inv)
	if err != nil {
		return wsnext.Failed[wsnext.Void](err)
	}
	args = append(args, values...)

	results, err := call(cb.Func, args)
	if err != nil {
		return wsnext.Failed[wsnext.Void](err)
	}
	if cb.ReturnsError {
		if errv := results[len(results)-1]; !errv.IsNil() {
			return wsnext.Failed[wsnext.Void](errv.Interface().(error))
		}
	}
	if cb.Return == model.ReturnVoid {
		return wsnext.Completed(wsnext.Void{})
	}

	result := results[0]
	switch cb.Return {
	case model.ReturnAsync:
		return a.await(h, result)
	case model.ReturnStream:
		return a.stream(inv.Ctx, h, result)
	default:
		return a.send(h, result)
	}
}

func (a *Adapter) context() context.Context {
	if conn := a.out.Connection(); conn != nil {
		return conn.Context()
	}
	return context.Background()
}

func (a *Adapter) resolveOwner(id string, t reflect.Type) (reflect.Value, error) {
	if a.container == nil {
		return reflect.Value{}, fmt.Errorf("%s: %s", wsnext.ErrMsgOwnerNotFound, id)
	}
	inst, err := a.container.ResolveInstance(id)
	if err != nil {
		return reflect.Value{}, err
	}
	if inst == nil {
		return reflect.Value{}, fmt.Errorf("%s: %s", wsnext.ErrMsgOwnerNotFound, id)
	}
	v := reflect.ValueOf(inst)
	if !v.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("%s: %s is %v, want %v", wsnext.ErrMsgOwnerMismatch, id, v.Type(), t)
	}
	return v, nil
}

// send encodes a single result. A nil result sends nothing.
func (a *Adapter) send(h *handler, v reflect.Value) *wsnext.Future[wsnext.Void] {
	if isNil(v) {
		return wsnext.Completed(wsnext.Void{})
	}
	data, err := h.encode(v)
	if err != nil {
		return wsnext.Failed[wsnext.Void](err)
	}
	done := wsnext.NewFuture[wsnext.Void]()
	a.out.Send(h.kind, data, h.cb.Broadcast).OnComplete(func(_ wsnext.Void, err error) {
		if err != nil && !errors.Is(err, wsnext.ErrConnectionClosed) {
			done.Fail(err)
			return
		}
		done.Complete(wsnext.Void{})
	})
	return done
}

// await subscribes to an async result and sends its value once resolved.
func (a *Adapter) await(h *handler, fut reflect.Value) *wsnext.Future[wsnext.Void] {
	if isNil(fut) {
		return wsnext.Completed(wsnext.Void{})
	}
	done := wsnext.NewFuture[wsnext.Void]()
	fut.Interface().(wsnext.Awaitable).Subscribe(func(value any, err error) {
		if err != nil {
			done.Fail(err)
			return
		}
		if h.encode == nil || value == nil {
			done.Complete(wsnext.Void{})
			return
		}
		wsnext.Forward(a.send(h, reflect.ValueOf(value)), done)
	})
	return done
}

// stream drains a result channel, sending one frame per item in order. Item
// encode failures are routed to the error handlers one by one; the stream
// fails only if that routing fails. Draining stops when ctx is done.
func (a *Adapter) stream(ctx context.Context, h *handler, ch reflect.Value) *wsnext.Future[wsnext.Void] {
	if isNil(ch) {
		return wsnext.Completed(wsnext.Void{})
	}
	done := wsnext.NewFuture[wsnext.Void]()
	go func() {
		cases := []reflect.SelectCase{
			{Dir: reflect.SelectRecv, Chan: ch},
			{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
		}
		last := wsnext.Completed(wsnext.Void{})
		for {
			chosen, item, ok := reflect.Select(cases)
			if chosen == 1 || !ok {
				break
			}
			if isNil(item) {
				continue
			}
			data, err := h.encode(item)
			if err != nil {
				if _, herr := a.OnError(err).Await(ctx); herr != nil && ctx.Err() == nil {
					done.Fail(herr)
					return
				}
				continue
			}
			last = a.out.Send(h.kind, data, h.cb.Broadcast)
		}
		last.OnComplete(func(_ wsnext.Void, err error) {
			if err != nil && !errors.Is(err, wsnext.ErrConnectionClosed) {
				done.Fail(err)
				return
			}
			done.Complete(wsnext.Void{})
		})
	}()
	return done
}

// consume feeds one frame to the stream consumer h. The consumer is invoked
// on the first frame. The returned future resolves once the item is taken
// or the stream is closed; decode failures go through OnError.
func (a *Adapter) consume(h *handler, payload []byte) *wsnext.Future[wsnext.Void] {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return wsnext.Completed(wsnext.Void{})
	}
	in, ok := a.streams[h]
	if !ok {
		in = newInputStream(h.cb.MessageItemType())
		a.streams[h] = in
	}
	a.mu.Unlock()

	fut, accepted := in.next(func() *wsnext.Future[wsnext.Void] {
		msg, err := h.decode(payload)
		if err != nil {
			return a.OnError(err)
		}
		return in.deliver(msg)
	})
	if !accepted {
		a.compiled.logger.Debug("frame dropped, message stream closed", "callback", h.cb.Method)
		return wsnext.Completed(wsnext.Void{})
	}
	if !ok {
		a.startConsumer(h, in)
	}
	return fut
}

// startConsumer invokes h once with the receive side of in. The stream is
// closed when the consumer returns or the connection context ends.
func (a *Adapter) startConsumer(h *handler, in *inputStream) {
	stop := context.AfterFunc(a.context(), in.close)
	a.sched.Execute(h.cb.ExecutionModel, func() {
		a.invoke(h, &argument.Invocation{Message: in.ch}).OnComplete(func(_ wsnext.Void, err error) {
			stop()
			in.close()
			if err == nil {
				return
			}
			a.OnError(err).OnComplete(func(_ wsnext.Void, herr error) {
				if herr != nil {
					a.out.Fail(herr)
				}
			})
		})
	})
}

// inputStream is the channel a stream consumer reads frames from. Items are
// delivered in the order they were queued.
type inputStream struct {
	ch   reflect.Value
	quit chan struct{}

	mu     sync.Mutex
	last   *wsnext.Future[wsnext.Void]
	closed bool
}

func newInputStream(item reflect.Type) *inputStream {
	return &inputStream{
		ch:   reflect.MakeChan(reflect.ChanOf(reflect.BothDir, item), 0),
		quit: make(chan struct{}),
		last: wsnext.Completed(wsnext.Void{}),
	}
}

// next runs step once every earlier step has completed. It reports false
// once the stream is closed.
func (s *inputStream) next(step func() *wsnext.Future[wsnext.Void]) (*wsnext.Future[wsnext.Void], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	prev := s.last
	done := wsnext.NewFuture[wsnext.Void]()
	s.last = done
	prev.OnComplete(func(wsnext.Void, error) {
		go func() { wsnext.Forward(step(), done) }()
	})
	return done, true
}

// deliver blocks until the consumer takes v or the stream is closed.
func (s *inputStream) deliver(v reflect.Value) *wsnext.Future[wsnext.Void] {
	elem := s.ch.Type().Elem()
	switch {
	case !v.IsValid():
		v = reflect.Zero(elem)
	case v.Type() != elem && v.Type().ConvertibleTo(elem):
		v = v.Convert(elem)
	}
	reflect.Select([]reflect.SelectCase{
		{Dir: reflect.SelectSend, Chan: s.ch, Send: v},
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.quit)},
	})
	return wsnext.Completed(wsnext.Void{})
}

// close stops accepting frames, aborts pending deliveries and closes the
// channel once they have returned. It is idempotent.
func (s *inputStream) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	prev := s.last
	s.mu.Unlock()

	close(s.quit)
	prev.OnComplete(func(wsnext.Void, error) {
		s.ch.Close()
	})
}

// call invokes fn, turning a panic into a *wsnext.PanicError.
func call(fn reflect.Value, args []reflect.Value) (out []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = wsnext.NewPanicError(r)
		}
	}()
	return fn.Call(args), nil
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return v.IsNil()
	}
	return false
}

// UnhandledError is the failure of OnError when no handler matches.
type UnhandledError struct {
	Err error
}

func (e *UnhandledError) Error() string { return fmt.Sprintf("%s: %v", wsnext.ErrMsgUnhandledError, e.Err) }
func (e *UnhandledError) Unwrap() error { return e.Err }

// HandlerError is the failure of an error handler.
type HandlerError struct {
	Method string
	Cause  error
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("error handler %s failed while handling %v: %v", e.Method, e.Cause, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
