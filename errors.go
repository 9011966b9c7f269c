package wsnext

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
)

// ErrConnectionClosed is returned when sending on a connection that is
// closing or closed.
var ErrConnectionClosed = errors.New(ErrMsgConnectionClosed)

// DiscoveryErrorKind classifies deploy-time failures.
type DiscoveryErrorKind int

const (
	DuplicatePath DiscoveryErrorKind = iota + 1
	DuplicateID
	UnclaimedParameter
	AmbiguousPathToken
	DuplicateErrorHandler
	MissingCallback
	InvalidCallback
	InvalidEndpoint
)

func (k DiscoveryErrorKind) String() string {
	switch k {
	case DuplicatePath:
		return "duplicate path"
	case DuplicateID:
		return "duplicate endpoint id"
	case UnclaimedParameter:
		return "unclaimed parameter"
	case AmbiguousPathToken:
		return "ambiguous path token"
	case DuplicateErrorHandler:
		return "duplicate error handler"
	case MissingCallback:
		return "missing callback"
	case InvalidCallback:
		return "invalid callback"
	case InvalidEndpoint:
		return "invalid endpoint"
	default:
		return "unknown"
	}
}

// DiscoveryError is returned when endpoint declarations are invalid. It is
// always fatal: no endpoint is registered.
type DiscoveryError struct {
	Kind DiscoveryErrorKind
	Msg  string
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("websocket endpoint discovery failed (%s): %s", e.Kind, e.Msg)
}

// NewDiscoveryError formats a DiscoveryError.
func NewDiscoveryError(kind DiscoveryErrorKind, format string, args ...any) *DiscoveryError {
	return &DiscoveryError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsDiscoveryError reports whether err is a DiscoveryError of the given kind.
func IsDiscoveryError(err error, kind DiscoveryErrorKind) bool {
	var de *DiscoveryError
	return errors.As(err, &de) && de.Kind == kind
}

// CodecError is the parent of all payload conversion errors. An error
// callback accepting *CodecError receives decode, encode and resolution
// failures.
type CodecError struct {
	Type   reflect.Type
	Binary bool
	Err    error
}

func (e *CodecError) Error() string {
	mode := "text"
	if e.Binary {
		mode = "binary"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s codec error for %v: %v", mode, e.Type, e.Err)
	}
	return fmt.Sprintf("%s codec error for %v", mode, e.Type)
}

func (e *CodecError) Unwrap() error { return e.Err }

// CodecResolutionError is returned when no built-in conversion applies and no
// codec is registered for the type (or the named codec does not exist).
type CodecResolutionError struct {
	*CodecError
	Codec string
}

func (e *CodecResolutionError) Error() string {
	if e.Codec != "" {
		return fmt.Sprintf("no codec named %q usable for %v", e.Codec, e.Type)
	}
	mode := "text"
	if e.Binary {
		mode = "binary"
	}
	return fmt.Sprintf("no %s codec found for %v", mode, e.Type)
}

func (e *CodecResolutionError) Unwrap() error { return unwrapCodec(e.CodecError) }

// DecodeError wraps a failure to decode an inbound payload.
type DecodeError struct {
	*CodecError
}

func (e *DecodeError) Error() string { return "decode: " + e.CodecError.Error() }
func (e *DecodeError) Unwrap() error { return unwrapCodec(e.CodecError) }

// EncodeError wraps a failure to encode a callback result.
type EncodeError struct {
	*CodecError
}

func (e *EncodeError) Error() string { return "encode: " + e.CodecError.Error() }
func (e *EncodeError) Unwrap() error { return unwrapCodec(e.CodecError) }

func unwrapCodec(e *CodecError) error {
	if e == nil {
		return nil
	}
	return e
}

// PanicError is a recovered panic from a callback.
type PanicError struct {
	Value any
	Stack []byte
}

// NewPanicError captures the current stack for a recovered value.
func NewPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("callback panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
