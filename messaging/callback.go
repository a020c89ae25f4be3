package messaging

import (
	"sync"

	"github.com/glimte/nuze-go/delivery"
)

// Callback receives the events of one declaration. Drop is optional.
type Callback[T any] struct {
	Call func(T)
	Drop func()
}

// ChannelCallback forwards every event into tx and releases tx on drop.
// Call blocks while the channel is full.
func ChannelCallback[T any](tx *delivery.Sender[T]) Callback[T] {
	return Callback[T]{
		Call: func(v T) {
			_ = tx.Send(v)
		},
		Drop: tx.Close,
	}
}

// guard serializes a callback against its drop: no Call starts after Drop
// and Drop runs once.
type guard[T any] struct {
	cb      Callback[T]
	mu      sync.RWMutex
	dropped bool
}

func newGuard[T any](cb Callback[T]) *guard[T] {
	return &guard[T]{cb: cb}
}

func (g *guard[T]) call(v T) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.dropped || g.cb.Call == nil {
		return false
	}
	g.cb.Call(v)
	return true
}

func (g *guard[T]) drop() {
	g.mu.Lock()
	if g.dropped {
		g.mu.Unlock()
		return
	}
	g.dropped = true
	g.mu.Unlock()

	if g.cb.Drop != nil {
		g.cb.Drop()
	}
}
