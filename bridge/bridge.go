package bridge

import (
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/nuze-go/delivery"
	"github.com/glimte/nuze-go/interrupt"
)

// EventBridge is a live sequence over one delivery channel. It is not
// restartable and not safe for concurrent use.
type EventBridge[T any] struct {
	rx          *delivery.Receiver[T]
	signal      interrupt.Signal
	keepAlive   io.Closer
	granularity time.Duration
	logger      *slog.Logger

	done      bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a bridge over rx. The sequence ends when signal is set or all
// senders of rx are released; keepAlive is closed at that point.
func New[T any](rx *delivery.Receiver[T], signal interrupt.Signal, keepAlive io.Closer, opts ...Option) *EventBridge[T] {
	o := newOptions(opts)
	if signal == nil {
		signal = o.signal
	}
	return &EventBridge[T]{
		rx:          rx,
		signal:      signal,
		keepAlive:   keepAlive,
		granularity: o.granularity,
		logger:      o.logger,
	}
}

// Next returns the next event. It reports false once the sequence has ended,
// and keeps reporting false afterwards.
func (b *EventBridge[T]) Next() (T, bool) {
	var zero T
	if b.done {
		return zero, false
	}

	for {
		if b.signal.IsSet() {
			b.logger.Debug("bridge cancelled")
			b.finish()
			return zero, false
		}

		v, status := b.rx.RecvTimeout(b.granularity)
		switch status {
		case delivery.Received:
			return v, true
		case delivery.Timeout:
			continue
		default:
			b.logger.Debug("bridge producers closed")
			b.finish()
			return zero, false
		}
	}
}

// All returns the remaining events as an iterator. Breaking out of the loop
// closes the bridge.
func (b *EventBridge[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok := b.Next()
			if !ok {
				return
			}
			if !yield(v) {
				b.Close()
				return
			}
		}
	}
}

// Close ends the sequence and releases the keep-alive resource. It is
// idempotent and returns the error of the first release.
func (b *EventBridge[T]) Close() error {
	b.finish()
	return b.closeErr
}

func (b *EventBridge[T]) finish() {
	b.done = true
	b.closeOnce.Do(func() {
		b.rx.Close()
		b.closeErr = closeKeepAlive(b.keepAlive, b.logger)
	})
}

// Stream converts every event of b as it is received
func Stream[T, O any](b *EventBridge[T], convert func(T) O) iter.Seq[O] {
	return func(yield func(O) bool) {
		for v := range b.All() {
			if !yield(convert(v)) {
				return
			}
		}
	}
}

// Collect gathers every event that arrives on rx before deadline. It returns
// when the deadline passes, when all senders are released, or when the
// WithSignal signal is set, then closes rx and keepAlive. Events still
// buffered when the deadline passes are included.
func Collect[T any](rx *delivery.Receiver[T], deadline time.Time, keepAlive io.Closer, opts ...Option) []T {
	o := newOptions(opts)
	defer func() {
		rx.Close()
		_ = closeKeepAlive(keepAlive, o.logger)
	}()

	items := []T{}
	for {
		if o.signal.IsSet() {
			o.logger.Debug("collection cancelled", "items", len(items))
			return items
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return drainBuffered(rx, items)
		}

		v, status := rx.RecvTimeout(min(remaining, o.granularity))
		switch status {
		case delivery.Received:
			items = append(items, v)
		case delivery.Disconnected:
			return items
		}
	}
}

// drainBuffered appends the items already buffered on rx when the deadline
// passed. Items sent after that point are left behind.
func drainBuffered[T any](rx *delivery.Receiver[T], items []T) []T {
	for n := rx.Len(); n > 0; n-- {
		v, status := rx.TryRecv()
		if status != delivery.Received {
			break
		}
		items = append(items, v)
	}
	return items
}

// Aggregate is Collect followed by a conversion of every collected event
func Aggregate[T, O any](rx *delivery.Receiver[T], deadline time.Time, keepAlive io.Closer, convert func(T) O, opts ...Option) []O {
	items := Collect(rx, deadline, keepAlive, opts...)
	out := make([]O, len(items))
	for i, v := range items {
		out[i] = convert(v)
	}
	return out
}
