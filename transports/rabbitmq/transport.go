package rabbitmq

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/internal/rabbitmq"
	"github.com/glimte/nuze-go/internal/wire"
	"github.com/glimte/nuze-go/keyexpr"
	"github.com/glimte/nuze-go/messaging"
)

type servant struct {
	key     string
	handler func(messaging.InboundQuery)
}

// Transport is one session's RabbitMQ connection
type Transport struct {
	link   *link
	zid    contracts.ZID
	settle time.Duration
	logger *slog.Logger

	replies *rabbitmq.Consumer
	scouts  *rabbitmq.Consumer

	mu       sync.Mutex
	closed   bool
	nextID   uint64
	regs     map[uint64]io.Closer
	servants map[uint64]*servant
	queries  *rabbitmq.Consumer
	pending  map[string]*wire.Tracker
}

func newTransport(l *link, zid contracts.ZID, cfg messaging.Config, settle time.Duration, logger *slog.Logger) (*Transport, error) {
	t := &Transport{
		link:     l,
		zid:      zid,
		settle:   settle,
		logger:   logger,
		regs:     make(map[uint64]io.Closer),
		servants: make(map[uint64]*servant),
		pending:  make(map[string]*wire.Tracker),
	}

	t.replies = rabbitmq.NewConsumer(l.cm, exclusiveQueue(), nil, t.handleReply, logger)
	if err := t.replies.Start(); err != nil {
		return nil, fmt.Errorf("rabbitmq: reply queue: %w", err)
	}

	hello, err := wire.EncodeHello(contracts.Hello{ZID: zid, WhatAmI: cfg.WhatAmI(), Locators: t.Locators()})
	if err != nil {
		_ = t.replies.Close()
		return nil, err
	}
	t.scouts = rabbitmq.NewConsumer(l.cm, exclusiveQueue(),
		[]rabbitmq.Binding{{Exchange: scoutExchange}},
		func(d amqp.Delivery) {
			if d.ReplyTo == "" {
				return
			}
			if err := t.respond(d.ReplyTo, d.CorrelationId, amqp.Publishing{Body: hello}); err != nil {
				logger.Warn("scouting answer failed", "error", err)
			}
		}, logger)
	if err := t.scouts.Start(); err != nil {
		_ = t.replies.Close()
		return nil, fmt.Errorf("rabbitmq: scouting: %w", err)
	}
	return t, nil
}

func exclusiveQueue() rabbitmq.QueueDeclaration {
	return rabbitmq.QueueDeclaration{Exclusive: true, AutoDelete: true}
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
	key, err := keyexpr.RoutingKey(env.Sample.KeyExpr)
	if err != nil {
		return err
	}
	h := wire.EncodeSample(env.Sample, env.Source, env.Destination)
	return t.link.publish(ctx, dataExchange, key, amqp.Publishing{
		Headers:      toTable(h),
		ContentType:  env.Sample.Encoding,
		DeliveryMode: amqp.Transient,
		Priority:     uint8(8 - env.Sample.Priority),
		Timestamp:    time.Now(),
		Body:         env.Sample.Payload,
	})
}

// Subscribe implements messaging.Transport
func (t *Transport) Subscribe(key string, handler func(messaging.Envelope)) (io.Closer, error) {
	if t.isClosed() {
		return nil, messaging.ErrSessionClosed
	}
	binding, err := keyexpr.RoutingKey(key)
	if err != nil {
		return nil, err
	}

	c := rabbitmq.NewConsumer(t.link.cm, exclusiveQueue(),
		[]rabbitmq.Binding{{Exchange: dataExchange, RoutingKey: binding}},
		func(d amqp.Delivery) {
			s, src, dest, err := wire.DecodeSample(fromTable(d.Headers), d.Body)
			if err != nil {
				t.logger.Warn("dropping malformed sample", "routing_key", d.RoutingKey, "error", err)
				return
			}
			handler(messaging.Envelope{Sample: s, Source: src, Destination: dest})
		}, t.logger)
	if err := c.Start(); err != nil {
		return nil, err
	}
	t.logger.Debug("rabbitmq subscription declared", "keyexpr", key, "binding", binding)
	return t.keep(func() { _ = c.Close() })
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
	if t.queries == nil {
		c := rabbitmq.NewConsumer(t.link.cm, exclusiveQueue(),
			[]rabbitmq.Binding{{Exchange: queryExchange}}, t.handleQuery, t.logger)
		if err := c.Start(); err != nil {
			t.mu.Unlock()
			return nil, fmt.Errorf("rabbitmq: serve: %w", err)
		}
		t.queries = c
	}
	t.nextID++
	id := t.nextID
	t.servants[id] = &servant{key: key, handler: handler}
	t.mu.Unlock()

	return t.keep(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.servants, id)
		if len(t.servants) == 0 && t.queries != nil {
			_ = t.queries.Close()
			t.queries = nil
		}
	})
}

func (t *Transport) respond(replyTo, correlationID string, msg amqp.Publishing) error {
	msg.CorrelationId = correlationID
	return t.link.publish(context.Background(), "", replyTo, msg)
}

func (t *Transport) respondWire(replyTo, correlationID string, h wire.Header, body []byte) error {
	return t.respond(replyTo, correlationID, amqp.Publishing{Headers: toTable(h), Body: body})
}

func (t *Transport) handleQuery(d amqp.Delivery) {
	if d.ReplyTo == "" {
		return
	}
	q, err := wire.DecodeQuery(fromTable(d.Headers), d.Body)
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

	replyTo, id := d.ReplyTo, d.CorrelationId
	if err := t.respondWire(replyTo, id, wire.EncodeMarker(wire.ReplyAck, t.zid), nil); err != nil {
		t.logger.Warn("query acknowledgement failed", "error", err)
		return
	}

	go func() {
		var wg sync.WaitGroup
		for _, sv := range targets {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r := &responder{t: t, replyTo: replyTo, id: id}
				query := contracts.NewQuery(q.KeyExpr, q.Parameters, r)
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
		if err := t.respondWire(replyTo, id, wire.EncodeMarker(wire.ReplyFinal, t.zid), nil); err != nil {
			t.logger.Warn("query finalization failed", "error", err)
		}
	}()
}

type responder struct {
	t       *Transport
	replyTo string
	id      string
}

func (r *responder) Reply(sample contracts.Sample) error {
	h, body := wire.EncodeReply(contracts.NewSampleReply(r.t.zid, sample))
	return r.t.respondWire(r.replyTo, r.id, h, body)
}

func (r *responder) ReplyErr(e contracts.ReplyError) error {
	h, body := wire.EncodeReply(contracts.NewErrorReply(r.t.zid, e.Payload, e.Encoding))
	return r.t.respondWire(r.replyTo, r.id, h, body)
}

func (t *Transport) handleReply(d amqp.Delivery) {
	t.mu.Lock()
	tracker := t.pending[d.CorrelationId]
	t.mu.Unlock()
	if tracker == nil {
		return
	}
	if err := tracker.Handle(fromTable(d.Headers), d.Body); err != nil {
		t.logger.Warn("dropping malformed reply", "error", err)
	}
}

func (t *Transport) forget(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// Query implements messaging.Transport
func (t *Transport) Query(ctx context.Context, q messaging.OutboundQuery, rh messaging.ReplyHandler) (io.Closer, error) {
	id := uuid.NewString()
	tracker := wire.NewTracker(t.settle, rh.Reply, func() {
		t.forget(id)
		if rh.Done != nil {
			rh.Done()
		}
	})

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, messaging.ErrSessionClosed
	}
	t.pending[id] = tracker
	t.mu.Unlock()

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
	err := t.link.publish(ctx, queryExchange, "", amqp.Publishing{
		Headers:       toTable(h),
		ReplyTo:       t.replies.Queue(),
		CorrelationId: id,
		Body:          q.Payload,
	})
	if err != nil {
		tracker.Stop()
		t.forget(id)
		return nil, err
	}
	tracker.Arm()
	t.logger.Debug("rabbitmq query sent", "keyexpr", q.KeyExpr, "correlation_id", id)
	return &pendingQuery{t: t, id: id, tracker: tracker}, nil
}

// pendingQuery is the handle of a query in flight
type pendingQuery struct {
	t       *Transport
	id      string
	tracker *wire.Tracker
}

// Close abandons the query
func (p *pendingQuery) Close() error {
	p.tracker.Stop()
	p.t.forget(p.id)
	return nil
}

// Locators implements messaging.Transport
func (t *Transport) Locators() []string {
	return []string{t.link.locator()}
}

// Close removes every registration and closes the connection
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
	pending := t.pending
	t.pending = make(map[string]*wire.Tracker)
	t.mu.Unlock()

	for _, r := range regs {
		_ = r.Close()
	}
	for _, tracker := range pending {
		tracker.Stop()
	}
	_ = t.scouts.Close()
	_ = t.replies.Close()
	err := t.link.close()
	t.logger.Debug("rabbitmq transport closed")
	return err
}
