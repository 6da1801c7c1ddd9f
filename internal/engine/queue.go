package engine

import "sync"

// commandQueue is an unbounded FIFO of closures feeding the engine's
// single writer goroutine. Producers never block; the signal channel
// wakes the consumer without requiring one send per item.
type commandQueue struct {
	mu     sync.Mutex
	items  []func()
	signal chan struct{}
	closed bool
}

func newCommandQueue() *commandQueue {
	return &commandQueue{signal: make(chan struct{}, 1)}
}

// push appends a command. Pushing to a closed queue is a silent drop;
// the engine is shutting down and the command's reply channel (if any)
// is abandoned by its waiting caller via context.
func (q *commandQueue) push(cmd func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, cmd)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// drain removes and returns all queued commands in FIFO order.
func (q *commandQueue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// close marks the queue closed and wakes the consumer one last time.
func (q *commandQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}
