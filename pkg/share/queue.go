package share

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrQueueFull indicates Put on a full queue which doesn't overwrite.
	ErrQueueFull = errors.New("queue full")
	// ErrQueueEmpty indicates Get on an empty queue.
	ErrQueueEmpty = errors.New("queue empty")
)

// Queue is a bounded FIFO.
//
// Put never blocks: a cooperative task can't wait for another task to drain
// the queue. Goroutines outside the scheduler use PutWait and GetWait.
type Queue[T any] struct {
	name      string
	overwrite bool

	lock     sync.Mutex
	buf      []T
	head     int
	count    int
	overruns uint64
	// closed and replaced on every change, wakes up waiters.
	changed chan struct{}
}

// NewQueue creates a queue holding at most size items.
// When overwrite is set, Put on a full queue drops the oldest item.
func NewQueue[T any](name string, size int, overwrite bool) *Queue[T] {
	if size < 1 {
		size = 1
	}
	return &Queue[T]{
		name:      name,
		overwrite: overwrite,
		buf:       make([]T, size),
		changed:   make(chan struct{}),
	}
}

// NewFlag creates a single item overwriting queue used as a raise/clear flag.
func NewFlag(name string) *Queue[bool] {
	return NewQueue[bool](name, 1, true)
}

// Name returns the name of the queue.
func (q *Queue[T]) Name() string {
	return q.name
}

// Cap returns the capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// Len returns the number of items queued.
func (q *Queue[T]) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.count
}

// Any reports whether there are items to read.
func (q *Queue[T]) Any() bool {
	return q.Len() > 0
}

// Empty reports whether the queue has nothing to read.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Full reports whether a Put would fail or overwrite.
func (q *Queue[T]) Full() bool {
	return q.Len() == len(q.buf)
}

// Overruns returns how many items were dropped by overwriting.
func (q *Queue[T]) Overruns() uint64 {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.overruns
}

// Put appends an item.
func (q *Queue[T]) Put(v T) error {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.count == len(q.buf) {
		if !q.overwrite {
			return ErrQueueFull
		}
		q.head = (q.head + 1) % len(q.buf)
		q.count--
		q.overruns++
	}
	q.buf[(q.head+q.count)%len(q.buf)] = v
	q.count++
	q.notify()
	return nil
}

// Get removes and returns the oldest item.
func (q *Queue[T]) Get() (v T, err error) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.count == 0 {
		return v, ErrQueueEmpty
	}
	v = q.take()
	q.notify()
	return v, nil
}

// Peek returns the oldest item without removing it.
func (q *Queue[T]) Peek() (v T, err error) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.count == 0 {
		return v, ErrQueueEmpty
	}
	return q.buf[q.head], nil
}

// Clear drops all items.
func (q *Queue[T]) Clear() {
	q.lock.Lock()
	defer q.lock.Unlock()
	var zero T
	for i := range q.buf {
		q.buf[i] = zero
	}
	q.head, q.count = 0, 0
	q.notify()
}

// PutWait appends an item, waiting for room unless the queue overwrites.
func (q *Queue[T]) PutWait(ctx context.Context, v T) error {
	for {
		q.lock.Lock()
		if q.overwrite || q.count < len(q.buf) {
			q.lock.Unlock()
			return q.Put(v)
		}
		ch := q.changed
		q.lock.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// GetWait removes the oldest item, waiting until one is available.
func (q *Queue[T]) GetWait(ctx context.Context) (v T, err error) {
	for {
		q.lock.Lock()
		if q.count > 0 {
			v = q.take()
			q.notify()
			q.lock.Unlock()
			return v, nil
		}
		ch := q.changed
		q.lock.Unlock()
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-ch:
		}
	}
}

// String implements fmt.Stringer.
func (q *Queue[T]) String() string {
	q.lock.Lock()
	defer q.lock.Unlock()
	return fmt.Sprintf("Queue %s: %d/%d, %d overruns", q.name, q.count, len(q.buf), q.overruns)
}

// caller holds the lock.
func (q *Queue[T]) take() T {
	var zero T
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return v
}

// caller holds the lock.
func (q *Queue[T]) notify() {
	close(q.changed)
	q.changed = make(chan struct{})
}
