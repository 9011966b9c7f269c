package model

import (
	"reflect"

	"github.com/luciancaetano/wsnext"
)

// Endpoint is the validated, immutable model of one declared endpoint.
type Endpoint struct {
	ID            string
	Path          string
	ExecutionMode wsnext.ExecutionMode

	OwnerID   string
	OwnerType reflect.Type

	OnOpen          *Callback
	OnTextMessage   *Callback
	OnBinaryMessage *Callback
	OnPongMessage   *Callback
	OnClose         *Callback

	// OnErrors holds the endpoint-local error handlers in declaration order.
	OnErrors []*Callback
}

// Callback returns the callback bound to a non-error event, or nil.
func (e *Endpoint) Callback(ev wsnext.Event) *Callback {
	switch ev {
	case wsnext.OnOpen:
		return e.OnOpen
	case wsnext.OnTextMessage:
		return e.OnTextMessage
	case wsnext.OnBinaryMessage:
		return e.OnBinaryMessage
	case wsnext.OnPongMessage:
		return e.OnPongMessage
	case wsnext.OnClose:
		return e.OnClose
	}
	return nil
}

// Callbacks returns every callback of the endpoint, error handlers last.
func (e *Endpoint) Callbacks() []*Callback {
	var out []*Callback
	for _, cb := range []*Callback{e.OnOpen, e.OnTextMessage, e.OnBinaryMessage, e.OnPongMessage, e.OnClose} {
		if cb != nil {
			out = append(out, cb)
		}
	}
	return append(out, e.OnErrors...)
}

// LocalErrorHandler returns the local handler declared for exactly t.
func (e *Endpoint) LocalErrorHandler(t reflect.Type) *Callback {
	for _, cb := range e.OnErrors {
		if cb.ErrorType == t {
			return cb
		}
	}
	return nil
}

func (e *Endpoint) set(cb *Callback) bool {
	var slot **Callback
	switch cb.Event {
	case wsnext.OnOpen:
		slot = &e.OnOpen
	case wsnext.OnTextMessage:
		slot = &e.OnTextMessage
	case wsnext.OnBinaryMessage:
		slot = &e.OnBinaryMessage
	case wsnext.OnPongMessage:
		slot = &e.OnPongMessage
	case wsnext.OnClose:
		slot = &e.OnClose
	default:
		return false
	}
	if *slot != nil {
		return false
	}
	*slot = cb
	return true
}
