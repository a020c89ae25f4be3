package bridge

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/nuze-go/delivery"
	"github.com/glimte/nuze-go/interrupt"
)

const testGranularity = 5 * time.Millisecond

type countingCloser struct {
	calls atomic.Int32
	err   error
}

func (c *countingCloser) Close() error {
	c.calls.Add(1)
	return c.err
}

func TestEventBridge(t *testing.T) {
	t.Run("yields events in order until producers close", func(t *testing.T) {
		tx, rx := delivery.New[string](4)
		keepAlive := &countingCloser{}
		b := New(rx, interrupt.Never(), keepAlive, WithGranularity(testGranularity))

		go func() {
			defer tx.Close()
			for _, v := range []string{"a", "b", "c"} {
				_ = tx.Send(v)
			}
		}()

		var got []string
		for v := range b.All() {
			got = append(got, v)
		}

		assert.Equal(t, []string{"a", "b", "c"}, got)
		assert.Equal(t, int32(1), keepAlive.calls.Load())

		_, ok := b.Next()
		assert.False(t, ok)
		assert.NoError(t, b.Close())
		assert.Equal(t, int32(1), keepAlive.calls.Load())
	})

	t.Run("empty sequence when producers close before sending", func(t *testing.T) {
		tx, rx := delivery.New[int](4)
		tx.Close()

		b := New(rx, interrupt.Never(), nil, WithGranularity(testGranularity))
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, ok := b.Next()
			assert.False(t, ok)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("bridge did not end")
		}
	})

	t.Run("cancellation ends the stream after the received events", func(t *testing.T) {
		tx, rx := delivery.New[string](4)
		defer tx.Close()
		flag := interrupt.NewFlag()
		b := New(rx, flag, nil, WithGranularity(testGranularity))

		require.NoError(t, tx.Send("e1"))
		require.NoError(t, tx.Send("e2"))

		var got []string
		for v := range b.All() {
			got = append(got, v)
			if len(got) == 2 {
				flag.Set()
			}
		}

		assert.Equal(t, []string{"e1", "e2"}, got)

		// a producer arriving late is released instead of blocking forever
		assert.ErrorIs(t, tx.Send("e3"), delivery.ErrReceiverClosed)
	})

	t.Run("cancellation is observed while waiting", func(t *testing.T) {
		tx, rx := delivery.New[string](4)
		defer tx.Close()
		flag := interrupt.NewFlag()
		b := New(rx, flag, nil, WithGranularity(testGranularity))

		time.AfterFunc(20*time.Millisecond, flag.Set)

		start := time.Now()
		_, ok := b.Next()
		assert.False(t, ok)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("breaking out of All releases the resource", func(t *testing.T) {
		tx, rx := delivery.New[int](4)
		defer tx.Close()
		keepAlive := &countingCloser{err: errors.New("already gone")}
		b := New(rx, interrupt.Never(), keepAlive, WithGranularity(testGranularity))

		require.NoError(t, tx.Send(1))
		require.NoError(t, tx.Send(2))

		for v := range b.All() {
			assert.Equal(t, 1, v)
			break
		}

		assert.Equal(t, int32(1), keepAlive.calls.Load())
		assert.EqualError(t, b.Close(), "already gone")
	})
}

func TestStream(t *testing.T) {
	tx, rx := delivery.New[int](4)
	b := New(rx, interrupt.Never(), nil, WithGranularity(testGranularity))

	go func() {
		defer tx.Close()
		for i := 1; i <= 3; i++ {
			_ = tx.Send(i)
		}
	}()

	var got []int
	for v := range Stream(b, func(i int) int { return i * 10 }) {
		got = append(got, v)
	}
	assert.Equal(t, []int{10, 20, 30}, got)
}

func TestCollect(t *testing.T) {
	t.Run("returns events received before the deadline", func(t *testing.T) {
		tx, rx := delivery.New[string](4)
		defer tx.Close()
		keepAlive := &countingCloser{}

		require.NoError(t, tx.Send("early"))
		time.AfterFunc(150*time.Millisecond, func() {
			_ = tx.Send("late")
		})

		deadline := time.Now().Add(50 * time.Millisecond)
		got := Collect(rx, deadline, keepAlive, WithGranularity(testGranularity))

		assert.Equal(t, []string{"early"}, got)
		assert.Less(t, time.Since(deadline), 100*time.Millisecond)
		assert.Equal(t, int32(1), keepAlive.calls.Load())
	})

	t.Run("includes events buffered before the deadline", func(t *testing.T) {
		tx, rx := delivery.New[int](4)
		defer tx.Close()
		require.NoError(t, tx.Send(1))
		require.NoError(t, tx.Send(2))
		require.NoError(t, tx.Send(3))

		got := Collect(rx, time.Now().Add(-time.Millisecond), nil, WithGranularity(testGranularity))
		assert.Equal(t, []int{1, 2, 3}, got)
	})

	t.Run("returns early when producers close", func(t *testing.T) {
		tx, rx := delivery.New[int](4)
		require.NoError(t, tx.Send(1))
		require.NoError(t, tx.Send(2))
		tx.Close()

		start := time.Now()
		got := Collect(rx, time.Now().Add(time.Minute), nil)

		assert.Equal(t, []int{1, 2}, got)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("returns an empty list when nothing arrives", func(t *testing.T) {
		tx, rx := delivery.New[int](4)
		defer tx.Close()

		got := Collect(rx, time.Now().Add(10*time.Millisecond), nil, WithGranularity(testGranularity))
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("stops when the signal is set", func(t *testing.T) {
		tx, rx := delivery.New[int](4)
		defer tx.Close()
		flag := interrupt.NewFlag()
		time.AfterFunc(20*time.Millisecond, flag.Set)

		start := time.Now()
		got := Collect(rx, time.Now().Add(time.Minute), nil, WithSignal(flag), WithGranularity(testGranularity))

		assert.Empty(t, got)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestAggregate(t *testing.T) {
	tx, rx := delivery.New[int](4)
	require.NoError(t, tx.Send(1))
	require.NoError(t, tx.Send(2))
	tx.Close()

	got := Aggregate(rx, time.Now().Add(time.Second), nil, func(i int) string {
		return string(rune('a' + i - 1))
	})
	assert.Equal(t, []string{"a", "b"}, got)
}
