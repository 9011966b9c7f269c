package wsnext

import "reflect"

// TextCodec converts between text frames and values of the types it
// supports. Codecs are consulted only when no built-in conversion applies.
//
// Codecs with a higher priority are tried first; a callback may select a
// codec explicitly through Callback.InputCodec / OutputCodec.
type TextCodec interface {
	Name() string
	Priority() int
	Supports(t reflect.Type) bool
	EncodeText(v any) (string, error)
	DecodeText(t reflect.Type, text string) (any, error)
}

// BinaryCodec converts between binary frames and values.
type BinaryCodec interface {
	Name() string
	Priority() int
	Supports(t reflect.Type) bool
	EncodeBinary(v any) ([]byte, error)
	DecodeBinary(t reflect.Type, data []byte) (any, error)
}
