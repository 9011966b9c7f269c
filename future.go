package wsnext

import (
	"context"
	"sync"
)

// Void is the value type of futures that carry no result.
type Void = struct{}

// Awaitable is the type-erased view of a Future.
type Awaitable interface {
	// Subscribe registers fn to be called once the future resolves. If the
	// future is already resolved fn runs immediately on the caller.
	Subscribe(fn func(value any, err error))
}

// Future is an asynchronous single value. Callbacks returning a *Future run
// on the event loop by default; the result is encoded and sent once the
// future resolves.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	resolved  bool
	value     T
	err       error
	listeners []func(T, error)
}

// NewFuture returns an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a future resolved with v.
func Completed[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Complete(v)
	return f
}

// Failed returns a future failed with err.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Fail(err)
	return f
}

// Async runs fn on a new goroutine and resolves the future with its result.
// A panic in fn fails the future with a *PanicError.
func Async[T any](fn func() (T, error)) *Future[T] {
	f := NewFuture[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.Fail(NewPanicError(r))
			}
		}()
		v, err := fn()
		f.resolve(v, err)
	}()
	return f
}

// Complete resolves the future with v. It reports false if the future was
// already resolved.
func (f *Future[T]) Complete(v T) bool {
	return f.resolve(v, nil)
}

// Fail resolves the future with err.
func (f *Future[T]) Fail(err error) bool {
	var zero T
	return f.resolve(zero, err)
}

func (f *Future[T]) resolve(v T, err error) bool {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return false
	}
	f.resolved = true
	f.value = v
	f.err = err
	listeners := f.listeners
	f.listeners = nil
	close(f.done)
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(v, err)
	}
	return true
}

// Done is closed once the future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future resolves or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnComplete registers fn to be called with the result. fn runs on the
// goroutine that resolves the future, or immediately if already resolved.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	f.mu.Lock()
	if !f.resolved {
		f.listeners = append(f.listeners, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()
	fn(v, err)
}

// Subscribe implements Awaitable.
func (f *Future[T]) Subscribe(fn func(value any, err error)) {
	f.OnComplete(func(v T, err error) {
		fn(v, err)
	})
}

// Forward resolves dst with the outcome of src.
func Forward[T any](src, dst *Future[T]) {
	src.OnComplete(func(v T, err error) {
		dst.resolve(v, err)
	})
}
