// Package codec converts frame payloads to callback parameters and callback
// results to frame payloads.
//
// Built-in conversions are tried first. Other types go through the pluggable
// wsnext.TextCodec / wsnext.BinaryCodec implementations, selected by name or
// by descending priority. Lookups happen once per callback; the returned
// Decoder and Encoder closures are what runs per message.
package codec

import (
	"reflect"
	"sort"

	"github.com/luciancaetano/wsnext"
)

// Decoder turns a frame payload into a value of the parameter type.
type Decoder func(data []byte) (reflect.Value, error)

// Encoder turns a result value into a frame payload.
type Encoder func(v reflect.Value) ([]byte, error)

// Registry holds the codecs available to the compiler. It is read-only once
// built.
type Registry struct {
	text   []wsnext.TextCodec
	binary []wsnext.BinaryCodec
}

// NewRegistry returns a registry with the given codecs plus the defaults
// (JSON for text, CBOR for binary) unless a codec with the same name is
// supplied.
func NewRegistry(text []wsnext.TextCodec, binary []wsnext.BinaryCodec) *Registry {
	r := &Registry{}

	r.text = append(r.text, text...)
	if !hasName(r.text, JSONName) {
		r.text = append(r.text, JSON{})
	}
	sort.SliceStable(r.text, func(i, j int) bool {
		return r.text[i].Priority() > r.text[j].Priority()
	})

	r.binary = append(r.binary, binary...)
	if !hasName(r.binary, CBORName) {
		r.binary = append(r.binary, CBOR{})
	}
	sort.SliceStable(r.binary, func(i, j int) bool {
		return r.binary[i].Priority() > r.binary[j].Priority()
	})
	return r
}

type named interface{ Name() string }

func hasName[C named](cs []C, name string) bool {
	for _, c := range cs {
		if c.Name() == name {
			return true
		}
	}
	return false
}

type supporter interface {
	named
	Supports(t reflect.Type) bool
}

// lookup finds the codec for t: the named one if name is set, otherwise the
// first supporting codec in priority order.
func lookup[C supporter](cs []C, t reflect.Type, name string) (C, bool) {
	var zero C
	for _, c := range cs {
		if name != "" && c.Name() != name {
			continue
		}
		if c.Supports(t) {
			return c, true
		}
		if name != "" {
			return zero, false
		}
	}
	return zero, false
}

func resolutionError(t reflect.Type, binary bool, name string) error {
	return &wsnext.CodecResolutionError{
		CodecError: &wsnext.CodecError{Type: t, Binary: binary},
		Codec:      name,
	}
}

func decodeError(t reflect.Type, binary bool, err error) error {
	return &wsnext.DecodeError{CodecError: &wsnext.CodecError{Type: t, Binary: binary, Err: err}}
}

func encodeError(t reflect.Type, binary bool, err error) error {
	return &wsnext.EncodeError{CodecError: &wsnext.CodecError{Type: t, Binary: binary, Err: err}}
}

// TextDecoder returns the decoder for text frames bound to a parameter of
// type t.
func (r *Registry) TextDecoder(t reflect.Type, name string) (Decoder, error) {
	if d, ok := builtinDecoder(t, false); ok {
		return d, nil
	}
	c, ok := lookup(r.text, t, name)
	if !ok {
		return nil, resolutionError(t, false, name)
	}
	return func(data []byte) (reflect.Value, error) {
		v, err := c.DecodeText(t, string(data))
		if err != nil {
			return reflect.Value{}, decodeError(t, false, err)
		}
		return valueOf(v, t), nil
	}, nil
}

// BinaryDecoder returns the decoder for binary frames bound to a parameter
// of type t.
func (r *Registry) BinaryDecoder(t reflect.Type, name string) (Decoder, error) {
	if d, ok := builtinDecoder(t, true); ok {
		return d, nil
	}
	c, ok := lookup(r.binary, t, name)
	if !ok {
		return nil, resolutionError(t, true, name)
	}
	return func(data []byte) (reflect.Value, error) {
		v, err := c.DecodeBinary(t, data)
		if err != nil {
			return reflect.Value{}, decodeError(t, true, err)
		}
		return valueOf(v, t), nil
	}, nil
}

// TextEncoder returns the encoder for results of type t sent as text.
func (r *Registry) TextEncoder(t reflect.Type, name string) (Encoder, error) {
	if e, ok := builtinEncoder(t, false); ok {
		return e, nil
	}
	c, ok := lookup(r.text, t, name)
	if !ok {
		return nil, resolutionError(t, false, name)
	}
	return func(v reflect.Value) ([]byte, error) {
		s, err := c.EncodeText(v.Interface())
		if err != nil {
			return nil, encodeError(t, false, err)
		}
		return []byte(s), nil
	}, nil
}

// BinaryEncoder returns the encoder for results of type t sent as binary.
func (r *Registry) BinaryEncoder(t reflect.Type, name string) (Encoder, error) {
	if e, ok := builtinEncoder(t, true); ok {
		return e, nil
	}
	c, ok := lookup(r.binary, t, name)
	if !ok {
		return nil, resolutionError(t, true, name)
	}
	return func(v reflect.Value) ([]byte, error) {
		b, err := c.EncodeBinary(v.Interface())
		if err != nil {
			return nil, encodeError(t, true, err)
		}
		return b, nil
	}, nil
}

// FailingDecoder returns a decoder that always fails with err.
func FailingDecoder(err error) Decoder {
	return func([]byte) (reflect.Value, error) {
		return reflect.Value{}, err
	}
}

// FailingEncoder returns an encoder that always fails with err.
func FailingEncoder(err error) Encoder {
	return func(reflect.Value) ([]byte, error) {
		return nil, err
	}
}

// valueOf converts a codec result to a Value of type t. A nil result yields
// the zero value.
func valueOf(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	rv := reflect.ValueOf(v)
	if rv.Type() != t && rv.Type().ConvertibleTo(t) {
		return rv.Convert(t)
	}
	return rv
}
