package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ChannelPool keeps idle AMQP channels for reuse. Channels closed by the
// broker or by a reconnection are discarded on return.
type ChannelPool struct {
	manager  *ConnectionManager
	channels chan *amqp.Channel
	maxSize  int

	mu     sync.Mutex
	closed bool
}

// ChannelPoolOption configures the channel pool
type ChannelPoolOption func(*ChannelPool)

// WithMaxSize sets the maximum number of idle channels
func WithMaxSize(size int) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.maxSize = size
	}
}

// NewChannelPool creates a new channel pool
func NewChannelPool(manager *ConnectionManager, options ...ChannelPoolOption) (*ChannelPool, error) {
	if manager == nil {
		return nil, ErrInvalidConfiguration
	}

	pool := &ChannelPool{
		manager: manager,
		maxSize: 4,
	}
	for _, opt := range options {
		opt(pool)
	}
	if pool.maxSize < 1 {
		return nil, fmt.Errorf("%w: max size must be at least 1", ErrInvalidConfiguration)
	}
	pool.channels = make(chan *amqp.Channel, pool.maxSize)
	return pool, nil
}

// Get returns an idle channel or opens a new one
func (cp *ChannelPool) Get(ctx context.Context) (*amqp.Channel, error) {
	cp.mu.Lock()
	closed := cp.closed
	cp.mu.Unlock()
	if closed {
		return nil, ErrChannelPoolClosed
	}

	for {
		select {
		case ch, ok := <-cp.channels:
			if !ok {
				return nil, ErrChannelPoolClosed
			}
			if !ch.IsClosed() {
				return ch, nil
			}
		default:
			if err := ctx.Err(); err != nil {
				return nil, &ChannelError{Op: "get channel", Err: err, Timestamp: time.Now()}
			}
			return cp.open()
		}
	}
}

func (cp *ChannelPool) open() (*amqp.Channel, error) {
	conn, err := cp.manager.GetConnection()
	if err != nil {
		return nil, &ChannelError{Op: "create channel", Err: err, Timestamp: time.Now()}
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, &ChannelError{
			Op:        "create channel",
			Err:       fmt.Errorf("%w: %v", ErrChannelCreationFailed, err),
			Timestamp: time.Now(),
		}
	}
	return ch, nil
}

// Put returns a channel to the pool
func (cp *ChannelPool) Put(ch *amqp.Channel) {
	if ch == nil || ch.IsClosed() {
		return
	}

	cp.mu.Lock()
	defer cp.mu.Unlock()
	if cp.closed {
		_ = ch.Close()
		return
	}

	select {
	case cp.channels <- ch:
	default:
		_ = ch.Close()
	}
}

// Size returns the number of idle channels
func (cp *ChannelPool) Size() int {
	return len(cp.channels)
}

// Close closes all idle channels
func (cp *ChannelPool) Close() error {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if cp.closed {
		return nil
	}
	cp.closed = true
	close(cp.channels)

	for ch := range cp.channels {
		if !ch.IsClosed() {
			_ = ch.Close()
		}
	}
	return nil
}

// Execute runs fn with a channel from the pool
func (cp *ChannelPool) Execute(ctx context.Context, fn func(*amqp.Channel) error) (err error) {
	ch, err := cp.Get(ctx)
	if err != nil {
		return err
	}
	defer cp.Put(ch)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in channel execution: %v", r)
		}
	}()
	return fn(ch)
}
