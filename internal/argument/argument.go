// Package argument binds callback parameters to runtime values.
//
// At discovery time each parameter is offered to the resolvers in priority
// order; the first that claims it produces a Producer. At dispatch time the
// compiled adapter only runs producers.
package argument

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/luciancaetano/wsnext"
)

// Kind is the category of a bound parameter.
type Kind int

const (
	KindMessage Kind = iota + 1
	KindConnection
	KindPathParam
	KindHandshake
	KindError
	KindContext
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindConnection:
		return "connection"
	case KindPathParam:
		return "path-param"
	case KindHandshake:
		return "handshake"
	case KindError:
		return "error"
	case KindContext:
		return "context"
	default:
		return "custom"
	}
}

// Descriptor describes one callback parameter being resolved.
type Descriptor struct {
	// Index is the position among the callback's bindable parameters.
	Index int
	Type  reflect.Type
	Event wsnext.Event

	// Method is the diagnostic method name used in errors.
	Method string

	// EndpointPath is the normalized path of the declaring endpoint; empty
	// for global error handlers.
	EndpointPath string
	Global       bool

	// PathParam is the declared name when Type is wsnext.PathParam.
	PathParam string
}

// Invocation is the per-dispatch input of producers.
type Invocation struct {
	Ctx     context.Context
	Conn    wsnext.Connection
	Message reflect.Value
	Err     error
}

// Producer computes one argument value for an invocation.
type Producer func(inv *Invocation) (reflect.Value, error)

// Argument is a resolved parameter.
type Argument struct {
	Index    int
	Type     reflect.Type
	Kind     Kind
	Resolver string
	Produce  Producer
}

// Resolver claims and binds callback parameters.
type Resolver interface {
	Name() string
	Kind() Kind
	Priority() int
	Claims(d Descriptor) bool
	Bind(d Descriptor) (Producer, error)
}

// Resolvers is a priority-sorted list of resolvers.
type Resolvers []Resolver

// Sort returns rs ordered by descending priority. Ties keep their input
// order.
func Sort(rs []Resolver) Resolvers {
	out := make(Resolvers, len(rs))
	copy(out, rs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() > out[j].Priority()
	})
	return out
}

// Defaults returns the built-in resolvers, sorted.
func Defaults() Resolvers {
	return Sort([]Resolver{
		ErrorResolver{},
		MessageResolver{},
		ConnectionResolver{},
		PathParamResolver{},
		HandshakeResolver{},
		ContextResolver{},
	})
}

// With returns the defaults extended with custom resolvers.
func (rs Resolvers) With(extra ...Resolver) Resolvers {
	all := make([]Resolver, 0, len(rs)+len(extra))
	all = append(all, rs...)
	all = append(all, extra...)
	return Sort(all)
}

// UnclaimedError is returned when no resolver claims a parameter.
type UnclaimedError struct {
	Method string
	Index  int
	Type   reflect.Type
}

func (e *UnclaimedError) Error() string {
	return fmt.Sprintf("unable to bind parameter %d of type %v of %s", e.Index, e.Type, e.Method)
}

// Resolve binds a single parameter with the first resolver that claims it.
func (rs Resolvers) Resolve(d Descriptor) (Argument, error) {
	for _, r := range rs {
		if !r.Claims(d) {
			continue
		}
		p, err := r.Bind(d)
		if err != nil {
			return Argument{}, fmt.Errorf("%s: parameter %d: %w", d.Method, d.Index, err)
		}
		return Argument{
			Index:    d.Index,
			Type:     d.Type,
			Kind:     r.Kind(),
			Resolver: r.Name(),
			Produce:  p,
		}, nil
	}
	return Argument{}, &UnclaimedError{Method: d.Method, Index: d.Index, Type: d.Type}
}

// Produce computes all argument values in order.
func Produce(args []Argument, inv *Invocation) ([]reflect.Value, error) {
	out := make([]reflect.Value, len(args))
	for i, a := range args {
		v, err := a.Produce(inv)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Count returns the number of arguments of the given kind.
func Count(args []Argument, k Kind) int {
	n := 0
	for _, a := range args {
		if a.Kind == k {
			n++
		}
	}
	return n
}

// Find returns the first argument of the given kind.
func Find(args []Argument, k Kind) (Argument, bool) {
	for _, a := range args {
		if a.Kind == k {
			return a, true
		}
	}
	return Argument{}, false
}
