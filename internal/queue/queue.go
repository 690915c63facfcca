// Package queue implements the FIFO handoff used between the router, the
// decode workers and the presentation side.
//
// A Queue has a single producer and a single consumer. TryPop never suspends
// and reports an empty queue with a false flag. Pop and a Block policy Push
// suspend on a notification channel instead of spinning, and both honour
// context cancellation.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrClosed = errors.New("queue: closed")

// Policy decides what Push does when a bounded queue is full.
type Policy int

const (
	// Unbounded ignores the capacity and grows without limit.
	Unbounded Policy = iota
	// DropOldest evicts the head and hands it to the drop hook.
	DropOldest
	// Block suspends the producer until the consumer makes room.
	Block
)

func (p Policy) String() string {
	switch p {
	case Unbounded:
		return "unbounded"
	case DropOldest:
		return "drop-oldest"
	case Block:
		return "block"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "unbounded":
		return Unbounded, nil
	case "drop-oldest":
		return DropOldest, nil
	case "block":
		return Block, nil
	}
	return Unbounded, fmt.Errorf("queue: unknown policy %q", s)
}

const initialSize = 16

type Option[T any] func(*Queue[T])

// WithCapacity bounds the queue. It has no effect with the Unbounded policy.
func WithCapacity[T any](capacity int, policy Policy) Option[T] {
	return func(q *Queue[T]) {
		q.capacity = capacity
		q.policy = policy
	}
}

// WithOnDrop registers the release hook for items evicted by DropOldest.
func WithOnDrop[T any](fn func(T)) Option[T] {
	return func(q *Queue[T]) {
		q.onDrop = fn
	}
}

type Queue[T any] struct {
	mu sync.Mutex

	items       []T
	head, count int

	capacity int
	policy   Policy
	onDrop   func(T)
	dropped  int64

	closed   bool
	done     chan struct{}
	readable chan struct{}
	writable chan struct{}
}

func New[T any](opts ...Option[T]) *Queue[T] {
	q := &Queue[T]{
		items:    make([]T, initialSize),
		done:     make(chan struct{}),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue[T]) bounded() bool {
	return q.policy != Unbounded && q.capacity > 0
}

// Push appends v. On ErrClosed or a context error the caller keeps ownership
// of v.
func (q *Queue[T]) Push(ctx context.Context, v T) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}

		if !q.bounded() || q.count < q.capacity {
			q.pushLocked(v)
			q.mu.Unlock()
			notify(q.readable)
			return nil
		}

		if q.policy == DropOldest {
			old := q.popLocked()
			q.dropped++
			q.pushLocked(v)
			q.mu.Unlock()

			if q.onDrop != nil {
				q.onDrop(old)
			}
			notify(q.readable)
			return nil
		}

		q.mu.Unlock()

		select {
		case <-q.writable:
		case <-q.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// TryPop returns the head without waiting. An empty queue yields the zero
// value and false.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	if q.count == 0 {
		q.mu.Unlock()
		var zero T
		return zero, false
	}
	v := q.popLocked()
	q.mu.Unlock()

	notify(q.writable)
	return v, true
}

// Pop waits for the head. It returns ErrClosed once the queue is closed and
// every remaining item has been consumed.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, nil
		}

		q.mu.Lock()
		closed := q.closed && q.count == 0
		q.mu.Unlock()

		var zero T
		if closed {
			return zero, ErrClosed
		}

		select {
		case <-q.readable:
		case <-q.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close stops further pushes. Items already queued can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Drain removes every queued item and hands it to release.
func (q *Queue[T]) Drain(release func(T)) int {
	q.mu.Lock()
	items := make([]T, 0, q.count)
	for q.count > 0 {
		items = append(items, q.popLocked())
	}
	q.mu.Unlock()

	notify(q.writable)
	if release != nil {
		for _, v := range items {
			release(v)
		}
	}
	return len(items)
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Dropped counts the items evicted by DropOldest.
func (q *Queue[T]) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *Queue[T]) pushLocked(v T) {
	if q.count == len(q.items) {
		q.grow()
	}
	q.items[(q.head+q.count)%len(q.items)] = v
	q.count++
}

func (q *Queue[T]) popLocked() T {
	var zero T
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.count--
	return v
}

func (q *Queue[T]) grow() {
	items := make([]T, len(q.items)*2)
	for i := 0; i < q.count; i++ {
		items[i] = q.items[(q.head+i)%len(q.items)]
	}
	q.items = items
	q.head = 0
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
