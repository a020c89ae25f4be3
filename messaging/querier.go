package messaging

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/keyexpr"
)

// Get sends one query on selector and delivers its replies to cb. cb is
// dropped when the query is finalized: every queryable answered, or the
// timeout elapsed.
func (s *Session) Get(ctx context.Context, selector string, cb Callback[contracts.Reply], opts GetOptions) error {
	key, params := contracts.ParseSelector(selector)
	return s.get(ctx, key, params, cb, opts, nil)
}

func (s *Session) get(ctx context.Context, key, params string, cb Callback[contracts.Reply], opts GetOptions, rewrite func(contracts.Reply) contracts.Reply) error {
	if s.isClosed() {
		return opError("get", key, ErrSessionClosed)
	}
	if err := keyexpr.Validate(key); err != nil {
		return opError("get", key, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.cfg.QueryTimeout
	}

	q := &pendingQuery{
		guard:   newGuard(cb),
		cons:    newConsolidator(opts.Consolidation, params),
		target:  opts.Target,
		rewrite: rewrite,
	}
	q.arm(timeout, func() {
		s.logger.Debug("query timed out", "keyexpr", key, "timeout", timeout)
		q.abandon()
		q.finalize()
	})

	encoding := opts.Encoding
	if encoding == "" && opts.Payload != nil {
		encoding = contracts.DefaultEncoding
	}
	out := OutboundQuery{
		KeyExpr:     key,
		Parameters:  params,
		Payload:     opts.Payload,
		Encoding:    encoding,
		Attachment:  opts.Attachment,
		Target:      opts.Target,
		Source:      s.zid,
		Destination: opts.AllowedDestination,
		Timeout:     timeout,
	}
	handle, err := s.transport.Query(ctx, out, ReplyHandler{Reply: q.reply, Done: q.finalize})
	if err != nil {
		q.stopTimer()
		q.guard.drop()
		return opError("get", key, err)
	}
	q.setHandle(handle)

	s.logger.Debug("query sent", "keyexpr", key, "parameters", params, "target", opts.Target.String())
	return nil
}

type pendingQuery struct {
	guard   *guard[contracts.Reply]
	cons    *consolidator
	target  contracts.QueryTarget
	rewrite func(contracts.Reply) contracts.Reply

	mu        sync.Mutex
	timer     *time.Timer
	replier   contracts.ZID
	handle    io.Closer
	abandoned bool
	done      bool
}

func (q *pendingQuery) reply(r contracts.Reply) {
	q.mu.Lock()
	if q.done {
		q.mu.Unlock()
		return
	}
	if q.target == contracts.TargetBestMatching {
		if q.replier == "" {
			q.replier = r.ReplierID
		}
		if r.ReplierID != q.replier {
			q.mu.Unlock()
			return
		}
	}
	deliver := q.cons.accept(r)
	q.mu.Unlock()

	if deliver {
		q.deliver(r)
	}
}

func (q *pendingQuery) deliver(r contracts.Reply) {
	if q.rewrite != nil {
		r = q.rewrite(r)
	}
	q.guard.call(r)
}

// arm starts the timeout. The timer is set under mu so that a firing
// callback never sees it unset.
func (q *pendingQuery) arm(timeout time.Duration, fire func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.done {
		return
	}
	q.timer = time.AfterFunc(timeout, fire)
}

func (q *pendingQuery) stopTimer() {
	q.mu.Lock()
	t := q.timer
	q.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

func (q *pendingQuery) setHandle(h io.Closer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handle = h
	if q.abandoned && h != nil {
		_ = h.Close()
	}
}

func (q *pendingQuery) abandon() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.abandoned = true
	if q.handle != nil {
		_ = q.handle.Close()
	}
}

func (q *pendingQuery) finalize() {
	q.mu.Lock()
	if q.done {
		q.mu.Unlock()
		return
	}
	q.done = true
	held := q.cons.flush()
	timer := q.timer
	q.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	for _, r := range held {
		q.deliver(r)
	}
	q.guard.drop()
}

// Querier sends queries on one key expression with fixed options
type Querier struct {
	session *Session
	key     string
	opts    QuerierOptions
	closed  atomic.Bool
}

// DeclareQuerier creates a querier on key
func (s *Session) DeclareQuerier(key string, opts QuerierOptions) (*Querier, error) {
	if err := keyexpr.Validate(key); err != nil {
		return nil, opError("declare querier", key, err)
	}
	q := &Querier{session: s, key: key, opts: opts}
	if err := s.track(q); err != nil {
		return nil, opError("declare querier", key, err)
	}
	return q, nil
}

// KeyExpr returns the queried key expression
func (q *Querier) KeyExpr() string {
	return q.key
}

// Get sends one query with the querier's options
func (q *Querier) Get(ctx context.Context, parameters string, cb Callback[contracts.Reply], opts GetOptions) error {
	if q.closed.Load() {
		return opError("get", q.key, ErrUndeclared)
	}
	opts.QuerierOptions = q.opts
	return q.session.get(ctx, q.key, parameters, cb, opts, nil)
}

// Close undeclares the querier
func (q *Querier) Close() error {
	if q.closed.CompareAndSwap(false, true) {
		q.session.untrack(q)
	}
	return nil
}
