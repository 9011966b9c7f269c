package codec

import (
	"reflect"

	cborlib "github.com/fxamacker/cbor/v2"
)

// CBORName is the name of the default binary codec.
const CBORName = "cbor"

// CBOR is the default binary codec. It supports every type.
type CBOR struct{}

func (CBOR) Name() string               { return CBORName }
func (CBOR) Priority() int              { return 0 }
func (CBOR) Supports(reflect.Type) bool { return true }

func (CBOR) EncodeBinary(v any) ([]byte, error) {
	return cborlib.Marshal(v)
}

func (CBOR) DecodeBinary(t reflect.Type, data []byte) (any, error) {
	ptr := reflect.New(t)
	if err := cborlib.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}
