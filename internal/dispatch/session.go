// Package dispatch runs compiled endpoints for live connections.
//
// A Session owns the per-connection state: its lifecycle state, the SERIAL
// pending queue and the in-flight count. All of it is touched only by the
// session's owner goroutine; transport reads, invocation completions and
// close requests reach it as events.
package dispatch

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/google/uuid"

	"github.com/luciancaetano/wsnext"
	"github.com/luciancaetano/wsnext/internal/compiler"
	"github.com/luciancaetano/wsnext/internal/protocol"
)

// State is the lifecycle state of a session.
type State int32

const (
	OpenPending State = iota
	Open
	Active
	ClosePending
	Closed
)

func (s State) String() string {
	switch s {
	case OpenPending:
		return "OPEN_PENDING"
	case Open:
		return "OPEN"
	case Active:
		return "ACTIVE"
	case ClosePending:
		return "CLOSE_PENDING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Transport is the frame-level side of a connection.
type Transport interface {
	// WriteFrame queues a frame. The future resolves once the frame is
	// written and fails with wsnext.ErrConnectionClosed if the transport is
	// closed.
	WriteFrame(kind protocol.FrameKind, data []byte) *wsnext.Future[wsnext.Void]

	// Close sends a close frame and tears the transport down. It is
	// idempotent.
	Close(code int, reason string) error

	RemoteAddr() string
}

// OnClosedFn is called once the session is closed. remote is true when the
// peer initiated the closure.
type OnClosedFn = func(conn *Conn, code int, reason string, remote bool)

// Options configures a session.
type Options struct {
	Compiled   *compiler.Compiled
	Transport  Transport
	Executors  *Executors
	Container  wsnext.Container
	Manager    *Manager
	Handshake  *wsnext.HandshakeRequest
	PathParams wsnext.PathParams
	Logger     *slog.Logger
	OnClosed   OnClosedFn
}

type eventKind int

const (
	evOpen eventKind = iota
	evFrame
	evDone
	evClose
	evClosed
	evFailed
)

type event struct {
	kind   eventKind
	frame  protocol.FrameKind
	data   []byte
	err    error
	code   int
	reason string
	remote bool
}

// Session dispatches the frames of one connection.
type Session struct {
	conn      *Conn
	compiled  *compiler.Compiled
	adapter   *compiler.Adapter
	transport Transport
	logger    *slog.Logger
	onClosed  OnClosedFn

	state  atomic.Int32
	events *mailbox[event]
	done   chan struct{}

	// Owned by the run goroutine.
	pending     *queue.Queue
	inFlight    int
	closeCode   int
	closeReason string
	remote      bool
}

// NewSession creates the connection handle and its adapter. The session
// does nothing until Start is called.
func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	manager := opts.Manager
	if manager == nil {
		manager = NewManager(opts.Compiled.ID())
	}

	s := &Session{
		compiled:  opts.Compiled,
		transport: opts.Transport,
		onClosed:  opts.OnClosed,
		events:    newMailbox[event](),
		done:      make(chan struct{}),
		pending:   queue.New(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.conn = &Conn{
		id:         uuid.New().String(),
		endpointID: opts.Compiled.ID(),
		params:     copyParams(opts.PathParams),
		handshake:  opts.Handshake,
		remoteAddr: opts.Transport.RemoteAddr(),
		ctx:        ctx,
		cancel:     cancel,
		session:    s,
		manager:    manager,
	}
	s.logger = logger.With("client_id", s.conn.id, "remote_addr", s.conn.remoteAddr, "endpoint", opts.Compiled.ID())

	var sched compiler.Scheduler
	if opts.Executors != nil {
		sched = opts.Executors.Pin()
	} else {
		sched = goScheduler{}
	}
	s.adapter = opts.Compiled.NewAdapter(s.conn, sched, opts.Container)
	return s
}

// Conn returns the connection handle.
func (s *Session) Conn() *Conn {
	return s.conn
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed once the session reaches Closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start accepts the connection: it registers it for broadcast and runs the
// open callback. Frames received before the open callback completes are
// held back.
func (s *Session) Start() {
	s.conn.manager.add(s.conn)
	go s.run()
	s.events.put(event{kind: evOpen})
}

// OnFrame delivers a frame read from the transport. Frames arriving after
// the session started closing are discarded.
func (s *Session) OnFrame(kind protocol.FrameKind, data []byte) {
	s.events.put(event{kind: evFrame, frame: kind, data: data})
}

// OnTransportClose reports that the peer closed the connection or the
// transport failed.
func (s *Session) OnTransportClose(code int, reason string) {
	s.events.put(event{kind: evClose, code: code, reason: reason, remote: true})
}

// fail closes the connection with 1011 after a detached invocation failed
// and so did its error routing.
func (s *Session) fail(err error) {
	s.events.put(event{kind: evFailed, err: err})
}

// close requests a local closure. It does not wait, and is a no-op once
// the session is closed.
func (s *Session) close(code int, reason string) {
	s.events.put(event{kind: evClose, code: code, reason: reason})
}

func (s *Session) run() {
	for range s.events.signal() {
		for {
			ev, ok := s.events.take()
			if !ok {
				break
			}
			if s.handle(ev) {
				return
			}
		}
	}
}

// handle applies one event. It reports true once the session is closed.
func (s *Session) handle(ev event) bool {
	switch ev.kind {
	case evOpen:
		// A connection closed before Start never opens.
		if s.State() != OpenPending {
			return false
		}
		s.setState(Open)
		s.logger.Debug("connection open")
		s.invoke(s.adapter.OnOpen())

	case evFrame:
		switch s.State() {
		case ClosePending, Closed:
			s.logger.Debug("frame discarded, connection closing", "kind", ev.frame)
			return false
		}
		s.pending.Add(ev)
		s.pump()

	case evDone:
		s.inFlight--
		if ev.err != nil {
			if s.State() < ClosePending {
				s.logger.Warn("error dispatch failed, closing connection", "error", ev.err)
				s.beginClose(wsnext.CloseInternalError, wsnext.ErrMsgUnhandledError, false)
			}
			return false
		}
		if s.State() == Open && s.inFlight == 0 {
			s.setState(Active)
		}
		s.pump()

	case evFailed:
		if s.State() < ClosePending {
			s.logger.Warn("message stream failed, closing connection", "error", ev.err)
			s.beginClose(wsnext.CloseInternalError, wsnext.ErrMsgUnhandledError, false)
		}

	case evClose:
		s.beginClose(ev.code, ev.reason, ev.remote)

	case evClosed:
		if ev.err != nil {
			s.logger.Warn("close callback failed", "error", ev.err)
		}
		s.finish()
		return true
	}
	return false
}

// pump dispatches pending frames as far as the execution mode allows.
func (s *Session) pump() {
	if s.State() != Active {
		return
	}
	serial := s.compiled.ExecutionMode() == wsnext.Serial
	for s.pending.Length() > 0 {
		if serial && s.inFlight > 0 {
			return
		}
		ev := s.pending.Remove().(event)
		s.dispatch(ev.frame, ev.data)
	}
}

func (s *Session) dispatch(kind protocol.FrameKind, data []byte) {
	s.logger.Debug("dispatching frame", "kind", kind, "size", len(data))
	switch kind {
	case protocol.TextFrame:
		s.invoke(s.adapter.OnTextMessage(data))
	case protocol.BinaryFrame:
		s.invoke(s.adapter.OnBinaryMessage(data))
	case protocol.PongFrame:
		s.invoke(s.adapter.OnPongMessage(data))
	default:
		s.logger.Debug("frame ignored", "kind", kind)
	}
}

// invoke tracks one in-flight invocation until its completion resolves.
func (s *Session) invoke(fut *wsnext.Future[wsnext.Void]) {
	s.inFlight++
	fut.OnComplete(func(_ wsnext.Void, err error) {
		s.events.put(event{kind: evDone, err: err})
	})
}

// beginClose moves to ClosePending and runs the close callback. Pending
// frames are dropped; in-flight invocations keep running but their results
// are discarded. A session that never opened skips the close callback.
func (s *Session) beginClose(code int, reason string, remote bool) {
	prev := s.State()
	if prev >= ClosePending {
		return
	}
	s.setState(ClosePending)
	s.closeCode = code
	s.closeReason = reason
	s.remote = remote
	for s.pending.Length() > 0 {
		s.pending.Remove()
	}

	if remote {
		s.logger.Debug("connection closed by peer", "code", code, "reason", reason)
	} else if code != wsnext.CloseNormalClosure {
		s.logger.Warn("closing connection", "code", code, "reason", reason)
	}

	if prev == OpenPending {
		s.events.put(event{kind: evClosed})
		return
	}
	s.adapter.OnClose().OnComplete(func(_ wsnext.Void, err error) {
		s.events.put(event{kind: evClosed, err: err})
	})
}

func (s *Session) finish() {
	s.setState(Closed)
	s.events.close()
	s.conn.cancel()
	s.conn.manager.remove(s.conn)

	if err := s.transport.Close(s.closeCode, s.closeReason); err != nil {
		s.logger.Debug("transport close failed", "error", err)
	}
	if s.onClosed != nil {
		s.onClosed(s.conn, s.closeCode, s.closeReason, s.remote)
	}
	close(s.done)
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// CloseCode returns the code the session closed with. It is only
// meaningful once Done is closed.
func (s *Session) CloseCode() (int, string) {
	<-s.done
	return s.closeCode, s.closeReason
}

func copyParams(p wsnext.PathParams) wsnext.PathParams {
	out := make(wsnext.PathParams, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// goScheduler runs every task on its own goroutine. It is used when no
// executors are configured.
type goScheduler struct{}

func (goScheduler) Execute(_ wsnext.ExecutionModel, task func()) {
	go task()
}
