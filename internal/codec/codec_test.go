package codec

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/wsnext"
)

type chatMessage struct {
	From string `json:"from" cbor:"from"`
	Text string `json:"text" cbor:"text"`
}

// upperCodec handles chatMessage only and upper-cases it on the way out.
type upperCodec struct{ priority int }

func (c upperCodec) Name() string                 { return "upper" }
func (c upperCodec) Priority() int                { return c.priority }
func (c upperCodec) Supports(t reflect.Type) bool { return t == reflect.TypeFor[chatMessage]() }

func (c upperCodec) EncodeText(v any) (string, error) {
	m := v.(chatMessage)
	return strings.ToUpper(m.From + ":" + m.Text), nil
}

func (c upperCodec) DecodeText(_ reflect.Type, text string) (any, error) {
	from, msg, ok := strings.Cut(text, ":")
	if !ok {
		return nil, errors.New("missing separator")
	}
	return chatMessage{From: from, Text: msg}, nil
}

func TestBuiltinTextDecoders(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, nil)

	tests := []struct {
		name    string
		typ     reflect.Type
		in      string
		want    any
		wantErr bool
	}{
		{name: "string", typ: stringType, in: "hi", want: "hi"},
		{name: "bytes", typ: bytesType, in: "hi", want: []byte("hi")},
		{name: "buffer", typ: bufferType, in: "hi", want: wsnext.Buffer("hi")},
		{name: "object", typ: jsonObjectType, in: `{"a":1}`, want: wsnext.JSONObject{"a": float64(1)}},
		{name: "array", typ: jsonArrayType, in: `[1,"x"]`, want: wsnext.JSONArray{float64(1), "x"}},
		{name: "object from array", typ: jsonObjectType, in: `[1]`, wantErr: true},
		{name: "array from object", typ: jsonArrayType, in: `{}`, wantErr: true},
		{name: "invalid json", typ: jsonObjectType, in: `{"a":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dec, err := r.TextDecoder(tt.typ, "")
			require.NoError(t, err)

			v, err := dec([]byte(tt.in))
			if tt.wantErr {
				var de *wsnext.DecodeError
				require.ErrorAs(t, err, &de)
				var ce *wsnext.CodecError
				assert.ErrorAs(t, err, &ce)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Interface())
		})
	}
}

func TestBinaryBufferIsNotCopied(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, nil)
	data := []byte{1, 2, 3}

	dec, err := r.BinaryDecoder(bufferType, "")
	require.NoError(t, err)
	v, err := dec(data)
	require.NoError(t, err)
	buf := v.Interface().(wsnext.Buffer)
	assert.Same(t, &data[0], &buf[0])

	dec, err = r.BinaryDecoder(bytesType, "")
	require.NoError(t, err)
	v, err = dec(data)
	require.NoError(t, err)
	cp := v.Interface().([]byte)
	assert.Equal(t, data, cp)
	assert.NotSame(t, &data[0], &cp[0])
}

func TestDefaultCodecs(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, nil)
	typ := reflect.TypeFor[chatMessage]()
	in := chatMessage{From: "ana", Text: "hello"}

	t.Run("json text", func(t *testing.T) {
		t.Parallel()

		enc, err := r.TextEncoder(typ, "")
		require.NoError(t, err)
		out, err := enc(reflect.ValueOf(in))
		require.NoError(t, err)
		assert.JSONEq(t, `{"from":"ana","text":"hello"}`, string(out))

		dec, err := r.TextDecoder(typ, "")
		require.NoError(t, err)
		v, err := dec(out)
		require.NoError(t, err)
		assert.Equal(t, in, v.Interface())
	})

	t.Run("cbor binary", func(t *testing.T) {
		t.Parallel()

		enc, err := r.BinaryEncoder(typ, "")
		require.NoError(t, err)
		out, err := enc(reflect.ValueOf(in))
		require.NoError(t, err)

		dec, err := r.BinaryDecoder(typ, CBORName)
		require.NoError(t, err)
		v, err := dec(out)
		require.NoError(t, err)
		assert.Equal(t, in, v.Interface())
	})

	t.Run("decode failure", func(t *testing.T) {
		t.Parallel()

		dec, err := r.TextDecoder(typ, "")
		require.NoError(t, err)
		_, err = dec([]byte("not json"))
		var de *wsnext.DecodeError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, typ, de.Type)
		assert.False(t, de.Binary)
	})
}

func TestCustomCodecSelection(t *testing.T) {
	t.Parallel()

	typ := reflect.TypeFor[chatMessage]()
	msg := chatMessage{From: "ana", Text: "hi"}

	t.Run("higher priority wins", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry([]wsnext.TextCodec{upperCodec{priority: 10}}, nil)
		enc, err := r.TextEncoder(typ, "")
		require.NoError(t, err)
		out, err := enc(reflect.ValueOf(msg))
		require.NoError(t, err)
		assert.Equal(t, "ANA:HI", string(out))
	})

	t.Run("lower priority loses to json", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry([]wsnext.TextCodec{upperCodec{priority: -1}}, nil)
		enc, err := r.TextEncoder(typ, "")
		require.NoError(t, err)
		out, err := enc(reflect.ValueOf(msg))
		require.NoError(t, err)
		assert.JSONEq(t, `{"from":"ana","text":"hi"}`, string(out))
	})

	t.Run("named codec", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry([]wsnext.TextCodec{upperCodec{priority: -1}}, nil)
		dec, err := r.TextDecoder(typ, "upper")
		require.NoError(t, err)
		v, err := dec([]byte("ana:hi"))
		require.NoError(t, err)
		assert.Equal(t, msg, v.Interface())
	})

	t.Run("named codec not supporting the type", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry([]wsnext.TextCodec{upperCodec{}}, nil)
		_, err := r.TextDecoder(reflect.TypeFor[int](), "upper")
		var re *wsnext.CodecResolutionError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, "upper", re.Codec)
	})

	t.Run("unknown codec name", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry(nil, nil)
		_, err := r.BinaryEncoder(typ, "protobuf")
		var re *wsnext.CodecResolutionError
		require.ErrorAs(t, err, &re)
		assert.True(t, re.Binary)
	})
}

func TestBuiltinEncoders(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, nil)

	enc, err := r.TextEncoder(jsonObjectType, "")
	require.NoError(t, err)
	out, err := enc(reflect.ValueOf(wsnext.JSONObject{"ok": true}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))

	enc, err = r.BinaryEncoder(bufferType, "")
	require.NoError(t, err)
	out, err = enc(reflect.ValueOf(wsnext.Buffer{9}))
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, out)

	assert.True(t, IsBinaryType(bufferType))
	assert.False(t, IsBinaryType(stringType))
}

func TestFailingClosures(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	_, err := FailingDecoder(boom)(nil)
	assert.ErrorIs(t, err, boom)
	_, err = FailingEncoder(boom)(reflect.Value{})
	assert.ErrorIs(t, err, boom)
}

func TestBinaryRoundTrip(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, nil)

	tests := []struct {
		name string
		in   any
	}{
		{name: "object", in: wsnext.JSONObject{"name": "ana", "age": float64(31), "tags": []any{"a", "b"}}},
		{name: "array", in: wsnext.JSONArray{float64(1), "x", true, nil}},
		{name: "string", in: "hello"},
		{name: "bytes", in: []byte{0, 1, 2}},
		{name: "buffer", in: wsnext.Buffer{3, 4}},
		{name: "cbor struct", in: chatMessage{From: "ana", Text: "hi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			typ := reflect.TypeOf(tt.in)
			enc, err := r.BinaryEncoder(typ, "")
			require.NoError(t, err)
			dec, err := r.BinaryDecoder(typ, "")
			require.NoError(t, err)

			data, err := enc(reflect.ValueOf(tt.in))
			require.NoError(t, err)
			out, err := dec(data)
			require.NoError(t, err)
			assert.Equal(t, tt.in, out.Interface())
		})
	}
}
