package interrupt

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// Signal reports whether the consumer should stop early
type Signal interface {
	// IsSet polls the signal without blocking
	IsSet() bool
}

// Flag is a Signal set explicitly by its owner
type Flag struct {
	set atomic.Bool
}

// NewFlag creates an unset flag
func NewFlag() *Flag {
	return &Flag{}
}

// Set raises the flag. Setting an already raised flag is a no-op.
func (f *Flag) Set() {
	f.set.Store(true)
}

// IsSet implements Signal
func (f *Flag) IsSet() bool {
	return f.set.Load()
}

type never struct{}

func (never) IsSet() bool { return false }

// Never returns a Signal that is never set
func Never() Signal {
	return never{}
}

type contextSignal struct {
	ctx context.Context
}

func (s contextSignal) IsSet() bool {
	return s.ctx.Err() != nil
}

// FromContext returns a Signal that is set once ctx is done
func FromContext(ctx context.Context) Signal {
	return contextSignal{ctx: ctx}
}

// Any returns a Signal that is set as soon as one of signals is set
func Any(signals ...Signal) Signal {
	return anySignal(signals)
}

type anySignal []Signal

func (a anySignal) IsSet() bool {
	for _, s := range a {
		if s != nil && s.IsSet() {
			return true
		}
	}
	return false
}

// Notify returns a flag raised on SIGINT, SIGTERM, or when ctx is done.
// The returned stop function releases the signal handler.
func Notify(ctx context.Context) (*Flag, func()) {
	flag := NewFlag()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			flag.Set()
		case <-ctx.Done():
			flag.Set()
		case <-done:
		}
	}()

	var stopped atomic.Bool
	stop := func() {
		if stopped.CompareAndSwap(false, true) {
			signal.Stop(sigCh)
			close(done)
		}
	}
	return flag, stop
}
