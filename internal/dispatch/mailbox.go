package dispatch

import (
	"sync"

	"github.com/eapache/queue"
)

// mailbox is an unbounded multi-producer single-consumer queue. put never
// blocks, so completion callbacks may post from any goroutine, including the
// consumer's own.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  *queue.Queue
	wake   chan struct{}
	closed bool
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{
		items: queue.New(),
		wake:  make(chan struct{}, 1),
	}
}

// put appends v. It reports false once the mailbox is closed.
func (m *mailbox[T]) put(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items.Add(v)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

// take pops the oldest item.
func (m *mailbox[T]) take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if m.items.Length() == 0 {
		return zero, false
	}
	return m.items.Remove().(T), true
}

// close drops queued items and rejects further puts.
func (m *mailbox[T]) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for m.items.Length() > 0 {
		m.items.Remove()
	}
}

// seal rejects further puts. Queued items can still be taken.
func (m *mailbox[T]) seal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mailbox[T]) signal() <-chan struct{} {
	return m.wake
}
