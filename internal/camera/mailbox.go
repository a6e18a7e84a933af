package camera

import "sync"

// mailbox is an unbounded FIFO of operations for the controller goroutine.
// post never blocks, so hardware callbacks may post from any goroutine,
// including synchronously from inside an operation.
type mailbox struct {
	mu     sync.Mutex
	ops    []func()
	closed bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) post(op func()) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.ops = append(m.ops, op)
	m.mu.Unlock()
	m.wake()
	return true
}

func (m *mailbox) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// take returns the queued operations and whether the mailbox is closed.
func (m *mailbox) take() ([]func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ops := m.ops
	m.ops = nil
	return ops, m.closed
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wake()
}
