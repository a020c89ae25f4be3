package bridge

import (
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/delivery"
	"github.com/glimte/nuze-go/interrupt"
)

// Issuer sends one request and returns the channel its replies arrive on.
// The channel closes when every reply to the request has been delivered.
type Issuer[P any] func(payload P) (*delivery.Receiver[contracts.Reply], error)

// ReplyConverter turns replies into output values
type ReplyConverter[O any] interface {
	Convert(sample contracts.Sample) O
	ConvertError(err contracts.ReplyError) O
}

type converterFuncs[O any] struct {
	onSample func(contracts.Sample) O
	onError  func(contracts.ReplyError) O
}

func (c converterFuncs[O]) Convert(s contracts.Sample) O          { return c.onSample(s) }
func (c converterFuncs[O]) ConvertError(e contracts.ReplyError) O { return c.onError(e) }

// Converter builds a ReplyConverter from two functions
func Converter[O any](onSample func(contracts.Sample) O, onError func(contracts.ReplyError) O) ReplyConverter[O] {
	return converterFuncs[O]{onSample: onSample, onError: onError}
}

// StateKind names the state of a Correlator
type StateKind int

const (
	// StateIdle means no reply channel is open
	StateIdle StateKind = iota
	// StateDraining means a request was issued and its replies are being collected
	StateDraining
	// StateTerminal means the sequence has ended
	StateTerminal
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	default:
		return "terminal"
	}
}

type state interface {
	kind() StateKind
}

type idleState struct{}

type drainingState[O any] struct {
	rx    *delivery.Receiver[contracts.Reply]
	batch []O
}

type terminalState struct{}

func (idleState) kind() StateKind         { return StateIdle }
func (*drainingState[O]) kind() StateKind { return StateDraining }
func (terminalState) kind() StateKind     { return StateTerminal }

// Correlator issues the requests of an upstream source one at a time and
// emits one batch of converted replies per request, in request order. At
// most one request is in flight; its batch is delimited by the closure of
// its reply channel.
type Correlator[I, P, O any] struct {
	upstream Source[I]
	coerce   func(I) (P, bool)
	issue    Issuer[P]
	conv     ReplyConverter[O]
	signal   interrupt.Signal

	granularity time.Duration
	keepAlive   io.Closer
	logger      *slog.Logger

	state     state
	err       error
	closeOnce sync.Once
}

// NewCorrelator creates a correlator. Upstream items that coerce rejects are
// skipped.
func NewCorrelator[I, P, O any](upstream Source[I], coerce func(I) (P, bool), issue Issuer[P], conv ReplyConverter[O], signal interrupt.Signal, opts ...Option) *Correlator[I, P, O] {
	o := newOptions(opts)
	if signal == nil {
		signal = o.signal
	}
	return &Correlator[I, P, O]{
		upstream:    upstream,
		coerce:      coerce,
		issue:       issue,
		conv:        conv,
		signal:      signal,
		granularity: o.granularity,
		keepAlive:   o.keepAlive,
		logger:      o.logger,
		state:       idleState{},
	}
}

// State returns the current state
func (c *Correlator[I, P, O]) State() StateKind {
	return c.state.kind()
}

// Err returns the error that ended the sequence, if issuing a request failed
func (c *Correlator[I, P, O]) Err() error {
	return c.err
}

// Next returns the batch of the next request
func (c *Correlator[I, P, O]) Next() ([]O, bool) {
	for {
		switch s := c.state.(type) {
		case idleState:
			if c.signal.IsSet() {
				c.logger.Debug("correlator cancelled while idle")
				c.terminate()
				return nil, false
			}

			item, ok := c.upstream.Next()
			if !ok {
				c.terminate()
				return nil, false
			}

			payload, ok := c.coerce(item)
			if !ok {
				c.logger.Debug("skipping unusable request item")
				continue
			}

			rx, err := c.issue(payload)
			if err != nil {
				c.err = err
				c.terminate()
				return nil, false
			}
			c.state = &drainingState[O]{rx: rx, batch: []O{}}

		case *drainingState[O]:
			if c.signal.IsSet() {
				c.logger.Debug("correlator cancelled while draining", "discarded", len(s.batch))
				c.terminate()
				return nil, false
			}

			reply, status := s.rx.RecvTimeout(c.granularity)
			switch status {
			case delivery.Received:
				switch {
				case reply.Sample != nil:
					s.batch = append(s.batch, c.conv.Convert(*reply.Sample))
				case reply.Err != nil:
					s.batch = append(s.batch, c.conv.ConvertError(*reply.Err))
				default:
					c.logger.Debug("skipping empty reply", "replier", reply.ReplierID)
				}
			case delivery.Timeout:
			case delivery.Disconnected:
				batch := s.batch
				s.rx.Close()
				c.state = idleState{}
				return batch, true
			}

		default:
			return nil, false
		}
	}
}

// All returns the remaining batches as an iterator. Breaking out of the loop
// closes the correlator.
func (c *Correlator[I, P, O]) All() iter.Seq[[]O] {
	return func(yield func([]O) bool) {
		for {
			batch, ok := c.Next()
			if !ok {
				return
			}
			if !yield(batch) {
				c.Close()
				return
			}
		}
	}
}

// Close ends the sequence, discarding a partially collected batch
func (c *Correlator[I, P, O]) Close() error {
	c.terminate()
	return nil
}

func (c *Correlator[I, P, O]) terminate() {
	if s, ok := c.state.(*drainingState[O]); ok {
		s.rx.Close()
	}
	c.state = terminalState{}
	c.closeOnce.Do(func() {
		if closer, ok := c.upstream.(io.Closer); ok {
			_ = closer.Close()
		}
		_ = closeKeepAlive(c.keepAlive, c.logger)
	})
}
