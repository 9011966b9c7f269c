package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luciancaetano/wsnext"
	"github.com/luciancaetano/wsnext/internal/protocol"
)

// Manager tracks the open connections of one endpoint. It implements
// wsnext.Sender by broadcasting.
type Manager struct {
	endpointID string

	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewManager returns an empty manager for the endpoint.
func NewManager(endpointID string) *Manager {
	return &Manager{
		endpointID: endpointID,
		conns:      make(map[string]*Conn),
	}
}

// EndpointID returns the endpoint the manager tracks.
func (m *Manager) EndpointID() string {
	return m.endpointID
}

func (m *Manager) add(c *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c.id] = c
}

func (m *Manager) remove(c *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, c.id)
}

// Get returns the connection with the given id.
func (m *Manager) Get(id string) (*Conn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	return c, ok
}

// Len returns the number of tracked connections.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Conns returns a snapshot of the open connections.
func (m *Manager) Conns() []*Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		if c.IsAlive() {
			out = append(out, c)
		}
	}
	return out
}

// Broadcast writes a frame to every open connection. The future resolves
// once every write completes. Connections that close meanwhile are skipped;
// other write failures are joined.
func (m *Manager) Broadcast(kind protocol.FrameKind, data []byte) *wsnext.Future[wsnext.Void] {
	conns := m.Conns()
	if len(conns) == 0 {
		return wsnext.Completed(wsnext.Void{})
	}

	done := wsnext.NewFuture[wsnext.Void]()
	var (
		mu        sync.Mutex
		remaining = len(conns)
		errs      []error
	)
	for _, c := range conns {
		c.write(kind, data).OnComplete(func(_ wsnext.Void, err error) {
			mu.Lock()
			if err != nil && !errors.Is(err, wsnext.ErrConnectionClosed) {
				errs = append(errs, fmt.Errorf("%s: %w", c.id, err))
			}
			remaining--
			last := remaining == 0
			mu.Unlock()

			if !last {
				return
			}
			if len(errs) > 0 {
				done.Fail(errors.Join(errs...))
				return
			}
			done.Complete(wsnext.Void{})
		})
	}
	return done
}

// SendText broadcasts a text frame.
func (m *Manager) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", wsnext.ErrMsgContextCancelled, err)
	}
	return queued(m.Broadcast(protocol.TextFrame, []byte(text)))
}

// SendBinary broadcasts a binary frame.
func (m *Manager) SendBinary(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", wsnext.ErrMsgContextCancelled, err)
	}
	return queued(m.Broadcast(protocol.BinaryFrame, data))
}

// CloseAll initiates closure of every open connection.
func (m *Manager) CloseAll(code int, reason string) {
	for _, c := range m.Conns() {
		c.session.close(code, reason)
	}
}
