package argument

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/luciancaetano/wsnext"
	"github.com/luciancaetano/wsnext/internal/hierarchy"
	"github.com/luciancaetano/wsnext/internal/path"
)

var (
	connectionType = reflect.TypeFor[wsnext.Connection]()
	pathParamType  = reflect.TypeFor[wsnext.PathParam]()
	pathParamsType = reflect.TypeFor[wsnext.PathParams]()
	handshakeType  = reflect.TypeFor[*wsnext.HandshakeRequest]()
	contextType    = reflect.TypeFor[context.Context]()
)

// Reserved reports whether t is bound by a non-message resolver.
func Reserved(t reflect.Type) bool {
	switch t {
	case connectionType, pathParamType, pathParamsType, handshakeType, contextType:
		return true
	}
	return false
}

// ErrorResolver binds the error parameter of error callbacks.
type ErrorResolver struct{}

func (ErrorResolver) Name() string  { return "error" }
func (ErrorResolver) Kind() Kind    { return KindError }
func (ErrorResolver) Priority() int { return 500 }

func (ErrorResolver) Claims(d Descriptor) bool {
	return d.Event == wsnext.OnError && hierarchy.IsError(d.Type) && !Reserved(d.Type)
}

func (ErrorResolver) Bind(d Descriptor) (Producer, error) {
	target := d.Type
	return func(inv *Invocation) (reflect.Value, error) {
		v, ok := hierarchy.Match(inv.Err, target)
		if !ok {
			return reflect.Value{}, fmt.Errorf("error %T is not assignable to %v", inv.Err, target)
		}
		return v, nil
	}, nil
}

// MessageResolver binds the decoded frame payload.
type MessageResolver struct{}

func (MessageResolver) Name() string  { return "message" }
func (MessageResolver) Kind() Kind    { return KindMessage }
func (MessageResolver) Priority() int { return 400 }

func (MessageResolver) Claims(d Descriptor) bool {
	return d.Event.AcceptsMessage() && !Reserved(d.Type)
}

func (MessageResolver) Bind(d Descriptor) (Producer, error) {
	t := d.Type
	return func(inv *Invocation) (reflect.Value, error) {
		if !inv.Message.IsValid() {
			return reflect.Zero(t), nil
		}
		if inv.Message.Type() != t {
			if !inv.Message.Type().ConvertibleTo(t) {
				return reflect.Value{}, fmt.Errorf("message of type %v is not assignable to %v", inv.Message.Type(), t)
			}
			return inv.Message.Convert(t), nil
		}
		return inv.Message, nil
	}, nil
}

// ConnectionResolver binds wsnext.Connection.
type ConnectionResolver struct{}

func (ConnectionResolver) Name() string  { return "connection" }
func (ConnectionResolver) Kind() Kind    { return KindConnection }
func (ConnectionResolver) Priority() int { return 300 }

func (ConnectionResolver) Claims(d Descriptor) bool {
	return d.Type == connectionType
}

func (ConnectionResolver) Bind(Descriptor) (Producer, error) {
	return func(inv *Invocation) (reflect.Value, error) {
		if inv.Conn == nil {
			return reflect.Zero(connectionType), nil
		}
		return reflect.ValueOf(&inv.Conn).Elem(), nil
	}, nil
}

// PathParamResolver binds wsnext.PathParam and wsnext.PathParams.
type PathParamResolver struct{}

func (PathParamResolver) Name() string  { return "path-param" }
func (PathParamResolver) Kind() Kind    { return KindPathParam }
func (PathParamResolver) Priority() int { return 200 }

func (PathParamResolver) Claims(d Descriptor) bool {
	return d.Type == pathParamType || d.Type == pathParamsType
}

func (PathParamResolver) Bind(d Descriptor) (Producer, error) {
	if d.Global {
		return nil, errors.New("path parameters cannot be bound in global error handlers")
	}
	if d.Type == pathParamsType {
		return func(inv *Invocation) (reflect.Value, error) {
			if inv.Conn == nil {
				return reflect.ValueOf(wsnext.PathParams{}), nil
			}
			return reflect.ValueOf(inv.Conn.PathParams()), nil
		}, nil
	}
	name := d.PathParam
	if name == "" {
		return nil, errors.New("path parameter has no name")
	}
	if !path.HasParam(d.EndpointPath, name) {
		return nil, fmt.Errorf("path parameter %q is not defined in endpoint path %s", name, d.EndpointPath)
	}
	return func(inv *Invocation) (reflect.Value, error) {
		if inv.Conn == nil {
			return reflect.ValueOf(wsnext.PathParam("")), nil
		}
		return reflect.ValueOf(wsnext.PathParam(inv.Conn.PathParam(name))), nil
	}, nil
}

// HandshakeResolver binds *wsnext.HandshakeRequest.
type HandshakeResolver struct{}

func (HandshakeResolver) Name() string  { return "handshake" }
func (HandshakeResolver) Kind() Kind    { return KindHandshake }
func (HandshakeResolver) Priority() int { return 100 }

func (HandshakeResolver) Claims(d Descriptor) bool {
	return d.Type == handshakeType
}

func (HandshakeResolver) Bind(Descriptor) (Producer, error) {
	return func(inv *Invocation) (reflect.Value, error) {
		if inv.Conn == nil {
			return reflect.Zero(handshakeType), nil
		}
		return reflect.ValueOf(inv.Conn.Handshake()), nil
	}, nil
}

// ContextResolver binds context.Context to the invocation context.
type ContextResolver struct{}

func (ContextResolver) Name() string  { return "context" }
func (ContextResolver) Kind() Kind    { return KindContext }
func (ContextResolver) Priority() int { return 50 }

func (ContextResolver) Claims(d Descriptor) bool {
	return d.Type == contextType
}

func (ContextResolver) Bind(Descriptor) (Producer, error) {
	return func(inv *Invocation) (reflect.Value, error) {
		ctx := inv.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		return reflect.ValueOf(&ctx).Elem(), nil
	}, nil
}
