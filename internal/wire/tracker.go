package wire

import (
	"sync"
	"time"

	"github.com/glimte/nuze-go/contracts"
)

// Tracker follows the repliers of one query. Each replier sends ReplyAck,
// its replies and ReplyFinal; once no replier is pending the query ends
// after the settle window unless another replier acknowledges first.
type Tracker struct {
	settle time.Duration
	reply  func(contracts.Reply)
	done   func()

	mu       sync.Mutex
	open     int
	timer    *time.Timer
	finished bool
}

// NewTracker creates a tracker delivering replies to reply and calling
// done once when the query ends
func NewTracker(settle time.Duration, reply func(contracts.Reply), done func()) *Tracker {
	return &Tracker{settle: settle, reply: reply, done: done}
}

// Arm opens the settle window before any replier acknowledged
func (t *Tracker) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.finished && t.open == 0 {
		t.restart()
	}
}

func (t *Tracker) restart() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.settle, t.Finish)
}

// Handle processes one message received for the query
func (t *Tracker) Handle(h Header, body []byte) error {
	r, marker, err := DecodeReply(h, body)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return nil
	}
	switch marker {
	case ReplyAck:
		t.open++
		if t.timer != nil {
			t.timer.Stop()
		}
	case ReplyFinal:
		t.open--
		if t.open <= 0 {
			t.restart()
		}
	default:
		t.mu.Unlock()
		t.reply(r)
		return nil
	}
	t.mu.Unlock()
	return nil
}

// Stop ends the query without calling done. It reports whether the query
// was still running.
func (t *Tracker) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return false
	}
	t.finished = true
	if t.timer != nil {
		t.timer.Stop()
	}
	return true
}

// Finish ends the query and calls done
func (t *Tracker) Finish() {
	if t.Stop() && t.done != nil {
		t.done()
	}
}
