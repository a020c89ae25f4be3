package delivery

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity is the channel capacity used by the streaming commands
const DefaultCapacity = 256

var (
	// ErrSenderClosed is returned when sending on a released sender handle
	ErrSenderClosed = errors.New("delivery: sender is closed")
	// ErrReceiverClosed is returned when the consumer has closed its receiver
	ErrReceiverClosed = errors.New("delivery: receiver is closed")
)

// Status is the outcome of a receive attempt
type Status int

const (
	// Received means an item was returned
	Received Status = iota
	// Timeout means the wait expired with no item
	Timeout
	// Disconnected means all senders are released and the buffer is drained
	Disconnected
)

func (s Status) String() string {
	switch s {
	case Received:
		return "received"
	case Timeout:
		return "timeout"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type channel[T any] struct {
	items chan T
	done  chan struct{}

	// mu guards senders and closed; sends hold it shared so that the last
	// release can close items without racing an in-flight send.
	mu       sync.RWMutex
	senders  int
	closed   bool
	doneOnce sync.Once
}

// New creates a channel with the given capacity and returns its first sender
// handle and its receiver. A capacity below 1 selects DefaultCapacity.
func New[T any](capacity int) (*Sender[T], *Receiver[T]) {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	c := &channel[T]{
		items:   make(chan T, capacity),
		done:    make(chan struct{}),
		senders: 1,
	}
	return &Sender[T]{c: c}, &Receiver[T]{c: c}
}

// Sender is one producer handle. It is safe for concurrent use.
type Sender[T any] struct {
	c        *channel[T]
	released atomic.Bool
}

// Clone returns a new handle on the same channel. Cloning a released handle
// returns a handle that is already released.
func (s *Sender[T]) Clone() *Sender[T] {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	clone := &Sender[T]{c: s.c}
	if s.released.Load() || s.c.closed {
		clone.released.Store(true)
		return clone
	}
	s.c.senders++
	return clone
}

// Send enqueues v, blocking while the channel is full
func (s *Sender[T]) Send(v T) error {
	if s.released.Load() {
		return ErrSenderClosed
	}

	s.c.mu.RLock()
	defer s.c.mu.RUnlock()

	if s.c.closed {
		return ErrSenderClosed
	}

	select {
	case <-s.c.done:
		return ErrReceiverClosed
	default:
	}

	select {
	case s.c.items <- v:
		return nil
	case <-s.c.done:
		return ErrReceiverClosed
	}
}

// TrySend enqueues v without blocking and reports whether it was enqueued
func (s *Sender[T]) TrySend(v T) bool {
	if s.released.Load() {
		return false
	}

	s.c.mu.RLock()
	defer s.c.mu.RUnlock()

	if s.c.closed {
		return false
	}

	select {
	case <-s.c.done:
		return false
	default:
	}

	select {
	case s.c.items <- v:
		return true
	default:
		return false
	}
}

// Close releases this handle. The channel closes when the last handle is
// released. Closing a handle twice is a no-op.
func (s *Sender[T]) Close() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}

	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	s.c.senders--
	if s.c.senders == 0 && !s.c.closed {
		s.c.closed = true
		close(s.c.items)
	}
}

// Receiver is the single consumer handle. It is not safe for concurrent use.
type Receiver[T any] struct {
	c            *channel[T]
	timer        *time.Timer
	disconnected bool
}

// Len returns the number of buffered items
func (r *Receiver[T]) Len() int {
	return len(r.c.items)
}

// Cap returns the channel capacity
func (r *Receiver[T]) Cap() int {
	return cap(r.c.items)
}

// Recv blocks until an item arrives or the channel is disconnected
func (r *Receiver[T]) Recv() (T, Status) {
	if r.disconnected {
		var zero T
		return zero, Disconnected
	}
	v, ok := <-r.c.items
	return r.result(v, ok)
}

// TryRecv returns a buffered item without waiting
func (r *Receiver[T]) TryRecv() (T, Status) {
	if r.disconnected {
		var zero T
		return zero, Disconnected
	}
	select {
	case v, ok := <-r.c.items:
		return r.result(v, ok)
	default:
		var zero T
		return zero, Timeout
	}
}

// RecvTimeout waits at most d for an item
func (r *Receiver[T]) RecvTimeout(d time.Duration) (T, Status) {
	if d <= 0 {
		return r.TryRecv()
	}
	if v, status := r.TryRecv(); status != Timeout {
		return v, status
	}

	if r.timer == nil {
		r.timer = time.NewTimer(d)
	} else {
		r.timer.Reset(d)
	}

	select {
	case v, ok := <-r.c.items:
		r.timer.Stop()
		return r.result(v, ok)
	case <-r.timer.C:
		var zero T
		return zero, Timeout
	}
}

// RecvDeadline waits for an item until the absolute deadline
func (r *Receiver[T]) RecvDeadline(deadline time.Time) (T, Status) {
	return r.RecvTimeout(time.Until(deadline))
}

// Close abandons the channel from the consumer side. Producers blocked on a
// full channel are released with ErrReceiverClosed and later receives report
// Disconnected.
func (r *Receiver[T]) Close() {
	r.disconnected = true
	if r.timer != nil {
		r.timer.Stop()
	}
	r.c.doneOnce.Do(func() {
		close(r.c.done)
	})
}

func (r *Receiver[T]) result(v T, ok bool) (T, Status) {
	if !ok {
		r.disconnected = true
		return v, Disconnected
	}
	return v, Received
}
