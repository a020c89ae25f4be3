package wire

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/nuze-go/contracts"
)

type trackerProbe struct {
	mu      sync.Mutex
	replies []contracts.Reply
	done    atomic.Int32
}

func (p *trackerProbe) tracker(settle time.Duration) *Tracker {
	return NewTracker(settle, func(r contracts.Reply) {
		p.mu.Lock()
		p.replies = append(p.replies, r)
		p.mu.Unlock()
	}, func() { p.done.Add(1) })
}

func (p *trackerProbe) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.replies)
}

func TestTracker(t *testing.T) {
	sample := func() (Header, []byte) {
		return EncodeReply(contracts.NewSampleReply("a", contracts.NewSample("k", []byte("v"))))
	}

	t.Run("ends after the last final and the settle window", func(t *testing.T) {
		p := &trackerProbe{}
		tr := p.tracker(20 * time.Millisecond)

		require.NoError(t, tr.Handle(EncodeMarker(ReplyAck, "a"), nil))
		require.NoError(t, tr.Handle(EncodeMarker(ReplyAck, "b"), nil))
		require.NoError(t, tr.Handle(sample()))
		require.NoError(t, tr.Handle(EncodeMarker(ReplyFinal, "a"), nil))

		time.Sleep(50 * time.Millisecond)
		assert.Zero(t, p.done.Load(), "b is still pending")

		require.NoError(t, tr.Handle(EncodeMarker(ReplyFinal, "b"), nil))
		assert.Eventually(t, func() bool { return p.done.Load() == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, 1, p.count())

		require.NoError(t, tr.Handle(sample()))
		assert.Equal(t, 1, p.count())
	})

	t.Run("armed tracker ends without repliers", func(t *testing.T) {
		p := &trackerProbe{}
		tr := p.tracker(10 * time.Millisecond)
		tr.Arm()
		assert.Eventually(t, func() bool { return p.done.Load() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("an acknowledgement holds the window open", func(t *testing.T) {
		p := &trackerProbe{}
		tr := p.tracker(20 * time.Millisecond)
		tr.Arm()
		require.NoError(t, tr.Handle(EncodeMarker(ReplyAck, "a"), nil))
		time.Sleep(50 * time.Millisecond)
		assert.Zero(t, p.done.Load())
		tr.Finish()
		tr.Finish()
		assert.Equal(t, int32(1), p.done.Load())
	})

	t.Run("stop abandons without done", func(t *testing.T) {
		p := &trackerProbe{}
		tr := p.tracker(10 * time.Millisecond)
		tr.Arm()
		assert.True(t, tr.Stop())
		assert.False(t, tr.Stop())
		time.Sleep(30 * time.Millisecond)
		assert.Zero(t, p.done.Load())
	})

	t.Run("malformed message", func(t *testing.T) {
		p := &trackerProbe{}
		assert.ErrorIs(t, p.tracker(time.Second).Handle(Header{}, nil), ErrMalformed)
	})
}
