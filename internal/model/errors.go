package model

import (
	"reflect"

	"github.com/luciancaetano/wsnext"
)

// ErrorRegistry holds the global error handlers. It is read-only after
// discovery.
type ErrorRegistry struct {
	handlers []*Callback
}

// Handlers returns the global handlers in declaration order.
func (r *ErrorRegistry) Handlers() []*Callback {
	if r == nil {
		return nil
	}
	return r.handlers
}

// Lookup returns the global handler declared for exactly t.
func (r *ErrorRegistry) Lookup(t reflect.Type) *Callback {
	if r == nil {
		return nil
	}
	for _, cb := range r.handlers {
		if cb.ErrorType == t {
			return cb
		}
	}
	return nil
}

func (r *ErrorRegistry) add(cb *Callback) error {
	if prev := r.Lookup(cb.ErrorType); prev != nil {
		return wsnext.NewDiscoveryError(wsnext.DuplicateErrorHandler,
			"multiple global error handlers for %v: %s and %s", cb.ErrorType, prev.Method, cb.Method)
	}
	r.handlers = append(r.handlers, cb)
	return nil
}
