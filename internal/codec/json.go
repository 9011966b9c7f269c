package codec

import (
	"reflect"

	"github.com/sugawarayuuta/sonnet"
	"github.com/tidwall/gjson"
)

// JSONName is the name of the default text codec.
const JSONName = "json"

// JSON is the default text codec. It supports every type.
type JSON struct{}

func (JSON) Name() string               { return JSONName }
func (JSON) Priority() int              { return 0 }
func (JSON) Supports(reflect.Type) bool { return true }

func (JSON) EncodeText(v any) (string, error) {
	b, err := sonnet.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (JSON) DecodeText(t reflect.Type, text string) (any, error) {
	ptr := reflect.New(t)
	if err := sonnet.Unmarshal([]byte(text), ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

func isJSONObject(raw []byte) bool {
	return gjson.ValidBytes(raw) && gjson.ParseBytes(raw).IsObject()
}

func isJSONArray(raw []byte) bool {
	return gjson.ValidBytes(raw) && gjson.ParseBytes(raw).IsArray()
}
