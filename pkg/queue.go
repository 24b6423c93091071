package timetagger

import (
	"sync"
	"time"
)

// queue is an unbounded FIFO with a single producer and a single consumer.
// push never blocks.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{notify: make(chan struct{}, 1)}
}

func (q *queue[T]) push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *queue[T]) popAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *queue[T]) tryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// wait returns everything queued once at least one item is present, the
// timeout expires or done is closed. A timeout <= 0 waits without limit.
func (q *queue[T]) wait(timeout time.Duration, done <-chan struct{}) []T {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	for {
		if items := q.popAll(); len(items) > 0 {
			return items
		}
		select {
		case <-q.notify:
		case <-expired:
			return q.popAll()
		case <-done:
			return q.popAll()
		}
	}
}
