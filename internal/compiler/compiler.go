// Package compiler turns endpoint models into dispatch tables.
//
// Everything that can be decided from the declarations is decided here:
// argument producers, codecs, output frame kinds and the ordered error
// chain. A Compiled endpoint is immutable and shared by all connections;
// each connection gets its own Adapter.
package compiler

import (
	"log/slog"
	"reflect"
	"sort"

	"github.com/luciancaetano/wsnext"
	"github.com/luciancaetano/wsnext/internal/codec"
	"github.com/luciancaetano/wsnext/internal/hierarchy"
	"github.com/luciancaetano/wsnext/internal/model"
	"github.com/luciancaetano/wsnext/internal/protocol"
)

// handler is one compiled callback.
type handler struct {
	cb     *model.Callback
	decode codec.Decoder
	encode codec.Encoder
	kind   protocol.FrameKind
	rank   int
}

// Compiled is the dispatch table of one endpoint.
type Compiled struct {
	endpoint *model.Endpoint
	logger   *slog.Logger

	onOpen   *handler
	onText   *handler
	onBinary *handler
	onPong   *handler
	onClose  *handler

	// errorChain is ordered most specific first.
	errorChain []*handler
}

// Compile builds the dispatch table of ep. Global handlers apply only to
// error types with no local handler.
func Compile(ep *model.Endpoint, globals *model.ErrorRegistry, codecs *codec.Registry, logger *slog.Logger) *Compiled {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Compiled{
		endpoint: ep,
		logger:   logger.With("endpoint", ep.ID),
	}

	c.onOpen = c.compile(ep.OnOpen, codecs)
	c.onText = c.compile(ep.OnTextMessage, codecs)
	c.onBinary = c.compile(ep.OnBinaryMessage, codecs)
	c.onPong = c.compile(ep.OnPongMessage, codecs)
	c.onClose = c.compile(ep.OnClose, codecs)

	for _, cb := range ep.OnErrors {
		c.errorChain = append(c.errorChain, c.compile(cb, codecs))
	}
	for _, cb := range globals.Handlers() {
		if ep.LocalErrorHandler(cb.ErrorType) != nil {
			continue
		}
		c.errorChain = append(c.errorChain, c.compile(cb, codecs))
	}
	sort.SliceStable(c.errorChain, func(i, j int) bool {
		return c.errorChain[i].rank > c.errorChain[j].rank
	})
	return c
}

// CompileAll compiles every endpoint.
func CompileAll(eps []*model.Endpoint, globals *model.ErrorRegistry, codecs *codec.Registry, logger *slog.Logger) []*Compiled {
	out := make([]*Compiled, 0, len(eps))
	for _, ep := range eps {
		out = append(out, Compile(ep, globals, codecs, logger))
	}
	return out
}

func (c *Compiled) compile(cb *model.Callback, codecs *codec.Registry) *handler {
	if cb == nil {
		return nil
	}
	h := &handler{cb: cb, kind: outputKind(cb)}
	if cb.Event == wsnext.OnError {
		h.rank = hierarchy.Rank(cb.ErrorType)
	}

	if mt := cb.MessageItemType(); mt != nil {
		var err error
		switch cb.Event {
		case wsnext.OnTextMessage:
			h.decode, err = codecs.TextDecoder(mt, cb.InputCodec)
		default:
			h.decode, err = codecs.BinaryDecoder(mt, cb.InputCodec)
		}
		if err != nil {
			c.logger.Warn("no decoder for callback message, frames will be routed to error handlers",
				"callback", cb.Method, "type", mt.String(), "error", err)
			h.decode = codec.FailingDecoder(err)
		}
	}

	if !cb.IsVoid() {
		var err error
		if h.kind == protocol.BinaryFrame {
			h.encode, err = codecs.BinaryEncoder(cb.ResultType, cb.OutputCodec)
		} else {
			h.encode, err = codecs.TextEncoder(cb.ResultType, cb.OutputCodec)
		}
		if err != nil {
			c.logger.Warn("no encoder for callback result, results will be routed to error handlers",
				"callback", cb.Method, "type", cb.ResultType.String(), "error", err)
			h.encode = codec.FailingEncoder(err)
		}
	}
	return h
}

// outputKind is the frame kind results are sent as. Message callbacks answer
// in kind; other callbacks send binary frames for raw byte results.
func outputKind(cb *model.Callback) protocol.FrameKind {
	switch cb.Event {
	case wsnext.OnTextMessage:
		return protocol.TextFrame
	case wsnext.OnBinaryMessage:
		return protocol.BinaryFrame
	}
	if codec.IsBinaryType(cb.ResultType) {
		return protocol.BinaryFrame
	}
	return protocol.TextFrame
}

// Endpoint returns the model the table was compiled from.
func (c *Compiled) Endpoint() *model.Endpoint {
	return c.endpoint
}

// ID returns the endpoint id.
func (c *Compiled) ID() string {
	return c.endpoint.ID
}

// Path returns the normalized endpoint path.
func (c *Compiled) Path() string {
	return c.endpoint.Path
}

// ExecutionMode returns the endpoint's execution mode.
func (c *Compiled) ExecutionMode() wsnext.ExecutionMode {
	return c.endpoint.ExecutionMode
}

func (c *Compiled) handler(ev wsnext.Event) *handler {
	switch ev {
	case wsnext.OnOpen:
		return c.onOpen
	case wsnext.OnTextMessage:
		return c.onText
	case wsnext.OnBinaryMessage:
		return c.onBinary
	case wsnext.OnPongMessage:
		return c.onPong
	case wsnext.OnClose:
		return c.onClose
	}
	return nil
}

// Has reports whether the endpoint handles ev.
func (c *Compiled) Has(ev wsnext.Event) bool {
	if ev == wsnext.OnError {
		return len(c.errorChain) > 0
	}
	return c.handler(ev) != nil
}

// ExecutionModel returns where the callback for ev runs. Events without a
// callback report EventLoop.
func (c *Compiled) ExecutionModel(ev wsnext.Event) wsnext.ExecutionModel {
	if h := c.handler(ev); h != nil {
		return h.cb.ExecutionModel
	}
	return wsnext.EventLoop
}

// StreamItemType returns the item type of a streaming callback, or nil.
func (c *Compiled) StreamItemType(ev wsnext.Event) reflect.Type {
	h := c.handler(ev)
	if h == nil || h.cb.Return != model.ReturnStream {
		return nil
	}
	return h.cb.ResultType
}

// EncodeStreamItem encodes one item of a streaming callback's result.
func (c *Compiled) EncodeStreamItem(ev wsnext.Event, v any) ([]byte, error) {
	h := c.handler(ev)
	if h == nil || h.cb.Return != model.ReturnStream {
		return nil, &wsnext.EncodeError{CodecError: &wsnext.CodecError{Type: reflect.TypeOf(v)}}
	}
	return h.encode(reflect.ValueOf(v))
}

// ConsumedItemType returns the item type of a stream consumer, or nil.
func (c *Compiled) ConsumedItemType(ev wsnext.Event) reflect.Type {
	h := c.handler(ev)
	if h == nil || !h.cb.ConsumesStream {
		return nil
	}
	return h.cb.MessageItemType()
}

// DecodeStreamItem decodes one frame the way a stream consumer receives it.
func (c *Compiled) DecodeStreamItem(ev wsnext.Event, data []byte) (any, error) {
	h := c.handler(ev)
	if h == nil || !h.cb.ConsumesStream {
		return nil, &wsnext.DecodeError{CodecError: &wsnext.CodecError{Binary: ev == wsnext.OnBinaryMessage}}
	}
	v, err := h.decode(data)
	if err != nil {
		return nil, err
	}
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

// ErrorChain returns the error handler method names, most specific first.
func (c *Compiled) ErrorChain() []string {
	out := make([]string, len(c.errorChain))
	for i, h := range c.errorChain {
		out[i] = h.cb.Method
	}
	return out
}
