package local

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/keyexpr"
	"github.com/glimte/nuze-go/messaging"
)

// DefaultHub is the hub shared by every local session of the process
var DefaultHub = NewHub()

type subscription struct {
	key     string
	handler func(messaging.Envelope)
}

type servant struct {
	zid     contracts.ZID
	key     string
	handler func(messaging.InboundQuery)
}

// Hub routes samples, queries and hellos between local sessions
type Hub struct {
	mu       sync.RWMutex
	nextID   uint64
	subs     map[uint64]*subscription
	servants map[uint64]*servant
	sessions map[contracts.ZID]contracts.Hello
	scouts   map[uint64]func(contracts.Hello)
	logger   *slog.Logger
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithHubLogger sets the logger
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub creates an empty hub
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:     make(map[uint64]*subscription),
		servants: make(map[uint64]*servant),
		sessions: make(map[contracts.ZID]contracts.Hello),
		scouts:   make(map[uint64]func(contracts.Hello)),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type registration struct {
	once   sync.Once
	remove func()
}

func (r *registration) Close() error {
	r.once.Do(r.remove)
	return nil
}

func (h *Hub) register(add func(id uint64), remove func(id uint64)) io.Closer {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	add(id)
	h.mu.Unlock()

	return &registration{remove: func() {
		h.mu.Lock()
		remove(id)
		h.mu.Unlock()
	}}
}

// Publish delivers env to every intersecting subscription
func (h *Hub) Publish(env messaging.Envelope) {
	h.mu.RLock()
	var targets []func(messaging.Envelope)
	for _, sub := range h.subs {
		if keyexpr.Intersects(sub.key, env.Sample.KeyExpr) {
			targets = append(targets, sub.handler)
		}
	}
	h.mu.RUnlock()

	for _, handler := range targets {
		handler(env)
	}
}

// Subscribe registers handler for samples intersecting key
func (h *Hub) Subscribe(key string, handler func(messaging.Envelope)) io.Closer {
	sub := &subscription{key: key, handler: handler}
	return h.register(
		func(id uint64) { h.subs[id] = sub },
		func(id uint64) { delete(h.subs, id) },
	)
}

// Serve registers handler for queries intersecting key on behalf of zid
func (h *Hub) Serve(zid contracts.ZID, key string, handler func(messaging.InboundQuery)) io.Closer {
	sv := &servant{zid: zid, key: key, handler: handler}
	return h.register(
		func(id uint64) { h.servants[id] = sv },
		func(id uint64) { delete(h.servants, id) },
	)
}

// Query runs q against every intersecting queryable, each on its own
// goroutine, and calls rh.Done once all of them returned
func (h *Hub) Query(q messaging.OutboundQuery, rh messaging.ReplyHandler) io.Closer {
	h.mu.RLock()
	var targets []*servant
	for _, sv := range h.servants {
		if keyexpr.Intersects(sv.key, q.KeyExpr) {
			targets = append(targets, sv)
		}
	}
	h.mu.RUnlock()

	pending := &pendingQuery{rh: rh}

	var wg sync.WaitGroup
	for _, sv := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			query := contracts.NewQuery(q.KeyExpr, q.Parameters, &responder{query: pending, replier: sv.zid})
			query.Payload = q.Payload
			query.Encoding = q.Encoding
			query.Attachment = q.Attachment
			sv.handler(messaging.InboundQuery{
				Query:       query,
				Target:      q.Target,
				Source:      q.Source,
				Destination: q.Destination,
			})
		}()
	}

	go func() {
		wg.Wait()
		if !pending.abandoned.Load() && rh.Done != nil {
			rh.Done()
		}
	}()

	h.logger.Debug("local query dispatched", "keyexpr", q.KeyExpr, "queryables", len(targets))
	return pending
}

type pendingQuery struct {
	rh        messaging.ReplyHandler
	abandoned atomic.Bool
}

func (p *pendingQuery) Close() error {
	p.abandoned.Store(true)
	return nil
}

type responder struct {
	query   *pendingQuery
	replier contracts.ZID
}

func (r *responder) Reply(sample contracts.Sample) error {
	if r.query.abandoned.Load() {
		return contracts.ErrQueryFinalized
	}
	r.query.rh.Reply(contracts.NewSampleReply(r.replier, sample))
	return nil
}

func (r *responder) ReplyErr(e contracts.ReplyError) error {
	if r.query.abandoned.Load() {
		return contracts.ErrQueryFinalized
	}
	r.query.rh.Reply(contracts.NewErrorReply(r.replier, e.Payload, e.Encoding))
	return nil
}

// Join announces a session to scouts
func (h *Hub) Join(hello contracts.Hello) {
	h.mu.Lock()
	h.sessions[hello.ZID] = hello
	scouts := make([]func(contracts.Hello), 0, len(h.scouts))
	for _, s := range h.scouts {
		scouts = append(scouts, s)
	}
	h.mu.Unlock()

	for _, s := range scouts {
		s(hello)
	}
}

// Leave removes a session from scouting answers
func (h *Hub) Leave(zid contracts.ZID) {
	h.mu.Lock()
	delete(h.sessions, zid)
	h.mu.Unlock()
}

// Scout reports every joined session, present and future, to report
func (h *Hub) Scout(report func(contracts.Hello)) io.Closer {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.scouts[id] = report
	present := make([]contracts.Hello, 0, len(h.sessions))
	for _, hello := range h.sessions {
		present = append(present, hello)
	}
	h.mu.Unlock()

	for _, hello := range present {
		report(hello)
	}

	return &registration{remove: func() {
		h.mu.Lock()
		delete(h.scouts, id)
		h.mu.Unlock()
	}}
}
