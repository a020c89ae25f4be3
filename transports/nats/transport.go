package nats

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/internal/wire"
	"github.com/glimte/nuze-go/keyexpr"
	"github.com/glimte/nuze-go/messaging"
)

const (
	statusHeader = "Status"
	noResponders = "503"
)

type servant struct {
	key     string
	handler func(messaging.InboundQuery)
}

// Transport is one session's NATS connection
type Transport struct {
	nc     *nats.Conn
	zid    contracts.ZID
	prefix string
	settle time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	nextID   uint64
	regs     map[uint64]io.Closer
	servants map[uint64]*servant
	querySub *nats.Subscription
	scoutSub *nats.Subscription
}

func newTransport(nc *nats.Conn, zid contracts.ZID, cfg messaging.Config, d *Driver, logger *slog.Logger) (*Transport, error) {
	t := &Transport{
		nc:       nc,
		zid:      zid,
		prefix:   d.prefix,
		settle:   d.settle,
		logger:   logger,
		regs:     make(map[uint64]io.Closer),
		servants: make(map[uint64]*servant),
	}

	body, err := wire.EncodeHello(contracts.Hello{ZID: zid, WhatAmI: cfg.WhatAmI(), Locators: t.Locators()})
	if err != nil {
		return nil, err
	}
	t.scoutSub, err = nc.Subscribe(scoutSubject, func(msg *nats.Msg) {
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(body); err != nil {
			logger.Warn("scouting answer failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats: scouting: %w", err)
	}
	if err := nc.Flush(); err != nil {
		return nil, fmt.Errorf("nats: scouting: %w", err)
	}
	return t, nil
}

func toMsg(subject string, h wire.Header, body []byte) *nats.Msg {
	msg := nats.NewMsg(subject)
	for k, v := range h {
		msg.Header.Set(k, v)
	}
	msg.Data = body
	return msg
}

func fromMsg(msg *nats.Msg) wire.Header {
	h := make(wire.Header, len(msg.Header))
	for k, vs := range msg.Header {
		if len(vs) > 0 {
			h[k] = vs[0]
		}
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

// keep tracks a registration until it or the transport is closed
func (t *Transport) keep(release func()) (io.Closer, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		release()
		return nil, messaging.ErrSessionClosed
	}
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	reg := &registration{remove: func() {
		t.mu.Lock()
		delete(t.regs, id)
		t.mu.Unlock()
		release()
	}}
	t.regs[id] = reg
	return reg, nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Publish implements messaging.Transport
func (t *Transport) Publish(ctx context.Context, env messaging.Envelope) error {
	if t.isClosed() {
		return messaging.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, err := keyexpr.Subject(t.prefix, env.Sample.KeyExpr)
	if err != nil {
		return err
	}
	h := wire.EncodeSample(env.Sample, env.Source, env.Destination)
	if err := t.nc.PublishMsg(toMsg(subject, h, env.Sample.Payload)); err != nil {
		return fmt.Errorf("nats: publish %s: %w", subject, err)
	}
	if env.Sample.CongestionControl == contracts.CongestionBlock {
		return t.nc.Flush()
	}
	return nil
}

// Subscribe implements messaging.Transport
func (t *Transport) Subscribe(key string, handler func(messaging.Envelope)) (io.Closer, error) {
	if t.isClosed() {
		return nil, messaging.ErrSessionClosed
	}
	subjects, _, err := keyexpr.Subjects(t.prefix, key)
	if err != nil {
		return nil, err
	}

	deliver := func(msg *nats.Msg) {
		s, src, dest, err := wire.DecodeSample(fromMsg(msg), msg.Data)
		if err != nil {
			t.logger.Warn("dropping malformed sample", "subject", msg.Subject, "error", err)
			return
		}
		handler(messaging.Envelope{Sample: s, Source: src, Destination: dest})
	}

	subs := make([]*nats.Subscription, 0, len(subjects))
	unsubscribe := func() {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
	}
	for _, subject := range subjects {
		sub, err := t.nc.Subscribe(subject, deliver)
		if err != nil {
			unsubscribe()
			return nil, fmt.Errorf("nats: subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}
	if err := t.nc.Flush(); err != nil {
		unsubscribe()
		return nil, fmt.Errorf("nats: subscribe: %w", err)
	}
	t.logger.Debug("nats subscription declared", "keyexpr", key, "subjects", subjects)
	return t.keep(unsubscribe)
}

// Serve implements messaging.Transport
func (t *Transport) Serve(key string, handler func(messaging.InboundQuery)) (io.Closer, error) {
	if err := keyexpr.Validate(key); err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, messaging.ErrSessionClosed
	}
	if t.querySub == nil {
		sub, err := t.nc.Subscribe(querySubject, t.handleQuery)
		if err != nil {
			t.mu.Unlock()
			return nil, fmt.Errorf("nats: serve: %w", err)
		}
		t.querySub = sub
	}
	t.nextID++
	id := t.nextID
	t.servants[id] = &servant{key: key, handler: handler}
	t.mu.Unlock()

	release := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.servants, id)
		if len(t.servants) == 0 && t.querySub != nil {
			_ = t.querySub.Unsubscribe()
			t.querySub = nil
		}
	}
	if err := t.nc.Flush(); err != nil {
		release()
		return nil, fmt.Errorf("nats: serve: %w", err)
	}
	return t.keep(release)
}

func (t *Transport) respond(inbox string, h wire.Header, body []byte) error {
	if err := t.nc.PublishMsg(toMsg(inbox, h, body)); err != nil {
		return fmt.Errorf("nats: reply: %w", err)
	}
	return nil
}

func (t *Transport) handleQuery(msg *nats.Msg) {
	if msg.Reply == "" {
		return
	}
	q, err := wire.DecodeQuery(fromMsg(msg), msg.Data)
	if err != nil {
		t.logger.Warn("dropping malformed query", "error", err)
		return
	}

	t.mu.Lock()
	var targets []*servant
	for _, sv := range t.servants {
		if keyexpr.Intersects(sv.key, q.KeyExpr) {
			targets = append(targets, sv)
		}
	}
	t.mu.Unlock()

	inbox := msg.Reply
	if err := t.respond(inbox, wire.EncodeMarker(wire.ReplyAck, t.zid), nil); err != nil {
		t.logger.Warn("query acknowledgement failed", "error", err)
		return
	}

	go func() {
		var wg sync.WaitGroup
		for _, sv := range targets {
			wg.Add(1)
			go func() {
				defer wg.Done()
				query := contracts.NewQuery(q.KeyExpr, q.Parameters, &responder{t: t, inbox: inbox})
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
		wg.Wait()
		if err := t.respond(inbox, wire.EncodeMarker(wire.ReplyFinal, t.zid), nil); err != nil {
			t.logger.Warn("query finalization failed", "error", err)
		}
	}()
}

type responder struct {
	t     *Transport
	inbox string
}

func (r *responder) Reply(sample contracts.Sample) error {
	h, body := wire.EncodeReply(contracts.NewSampleReply(r.t.zid, sample))
	return r.t.respond(r.inbox, h, body)
}

func (r *responder) ReplyErr(e contracts.ReplyError) error {
	h, body := wire.EncodeReply(contracts.NewErrorReply(r.t.zid, e.Payload, e.Encoding))
	return r.t.respond(r.inbox, h, body)
}

// Query implements messaging.Transport
func (t *Transport) Query(ctx context.Context, q messaging.OutboundQuery, rh messaging.ReplyHandler) (io.Closer, error) {
	if t.isClosed() {
		return nil, messaging.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inbox := nats.NewInbox()
	var sub *nats.Subscription
	tracker := wire.NewTracker(t.settle, rh.Reply, func() {
		_ = sub.Unsubscribe()
		if rh.Done != nil {
			rh.Done()
		}
	})
	sub, err := t.nc.Subscribe(inbox, func(msg *nats.Msg) {
		if len(msg.Data) == 0 && msg.Header.Get(statusHeader) == noResponders {
			tracker.Finish()
			return
		}
		if err := tracker.Handle(fromMsg(msg), msg.Data); err != nil {
			t.logger.Warn("dropping malformed reply", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats: query: %w", err)
	}

	h := wire.EncodeQuery(wire.Query{
		KeyExpr:     q.KeyExpr,
		Parameters:  q.Parameters,
		Payload:     q.Payload,
		Encoding:    q.Encoding,
		Attachment:  q.Attachment,
		Target:      q.Target,
		Source:      q.Source,
		Destination: q.Destination,
	})
	msg := toMsg(querySubject, h, q.Payload)
	msg.Reply = inbox
	if err := t.nc.PublishMsg(msg); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats: query: %w", err)
	}
	t.logger.Debug("nats query sent", "keyexpr", q.KeyExpr, "inbox", inbox)
	return &pendingQuery{tracker: tracker, sub: sub}, nil
}

// pendingQuery is the handle of a query in flight
type pendingQuery struct {
	tracker *wire.Tracker
	sub     *nats.Subscription
}

// Close abandons the query
func (p *pendingQuery) Close() error {
	if p.tracker.Stop() {
		_ = p.sub.Unsubscribe()
	}
	return nil
}

// Locators implements messaging.Transport
func (t *Transport) Locators() []string {
	return []string{t.nc.ConnectedUrlRedacted()}
}

// Close unsubscribes every registration and closes the connection
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	regs := make([]io.Closer, 0, len(t.regs))
	for _, r := range t.regs {
		regs = append(regs, r)
	}
	t.mu.Unlock()

	for _, r := range regs {
		_ = r.Close()
	}
	_ = t.scoutSub.Unsubscribe()
	err := t.nc.Drain()
	t.logger.Debug("nats transport closed")
	return err
}
