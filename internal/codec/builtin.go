package codec

import (
	"errors"
	"reflect"

	"github.com/sugawarayuuta/sonnet"

	"github.com/luciancaetano/wsnext"
)

var (
	stringType     = reflect.TypeFor[string]()
	bytesType      = reflect.TypeFor[[]byte]()
	bufferType     = reflect.TypeFor[wsnext.Buffer]()
	jsonObjectType = reflect.TypeFor[wsnext.JSONObject]()
	jsonArrayType  = reflect.TypeFor[wsnext.JSONArray]()

	errNotObject = errors.New("payload is not a JSON object")
	errNotArray  = errors.New("payload is not a JSON array")
)

// IsBinaryType reports whether results of type t are sent as binary frames
// by callbacks whose frame kind is not fixed by the event.
func IsBinaryType(t reflect.Type) bool {
	return t == bufferType || t == bytesType
}

func builtinDecoder(t reflect.Type, binary bool) (Decoder, bool) {
	switch t {
	case bufferType:
		if binary {
			return func(data []byte) (reflect.Value, error) {
				return reflect.ValueOf(wsnext.Buffer(data)), nil
			}, true
		}
		return func(data []byte) (reflect.Value, error) {
			return reflect.ValueOf(wsnext.Buffer(clone(data))), nil
		}, true
	case bytesType:
		return func(data []byte) (reflect.Value, error) {
			return reflect.ValueOf(clone(data)), nil
		}, true
	case stringType:
		return func(data []byte) (reflect.Value, error) {
			return reflect.ValueOf(string(data)), nil
		}, true
	case jsonObjectType:
		return func(data []byte) (reflect.Value, error) {
			if !isJSONObject(data) {
				return reflect.Value{}, decodeError(t, binary, errNotObject)
			}
			var obj wsnext.JSONObject
			if err := sonnet.Unmarshal(data, &obj); err != nil {
				return reflect.Value{}, decodeError(t, binary, err)
			}
			return reflect.ValueOf(obj), nil
		}, true
	case jsonArrayType:
		return func(data []byte) (reflect.Value, error) {
			if !isJSONArray(data) {
				return reflect.Value{}, decodeError(t, binary, errNotArray)
			}
			var arr wsnext.JSONArray
			if err := sonnet.Unmarshal(data, &arr); err != nil {
				return reflect.Value{}, decodeError(t, binary, err)
			}
			return reflect.ValueOf(arr), nil
		}, true
	}
	return nil, false
}

func builtinEncoder(t reflect.Type, binary bool) (Encoder, bool) {
	switch t {
	case bufferType, bytesType:
		return func(v reflect.Value) ([]byte, error) {
			return v.Bytes(), nil
		}, true
	case stringType:
		return func(v reflect.Value) ([]byte, error) {
			return []byte(v.String()), nil
		}, true
	case jsonObjectType, jsonArrayType:
		return func(v reflect.Value) ([]byte, error) {
			b, err := sonnet.Marshal(v.Interface())
			if err != nil {
				return nil, encodeError(t, binary, err)
			}
			return b, nil
		}, true
	}
	return nil, false
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
