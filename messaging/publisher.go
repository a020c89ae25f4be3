package messaging

import (
	"context"
	"sync/atomic"

	"github.com/glimte/nuze-go/keyexpr"
)

// Publisher publishes on one key with fixed options
type Publisher struct {
	session *Session
	key     string
	opts    PublisherOptions
	closed  atomic.Bool
}

// DeclarePublisher creates a publisher on key
func (s *Session) DeclarePublisher(key string, opts PublisherOptions) (*Publisher, error) {
	if err := keyexpr.ValidateConcrete(key); err != nil {
		return nil, opError("declare publisher", key, err)
	}
	p := &Publisher{session: s, key: key, opts: opts}
	if err := s.track(p); err != nil {
		return nil, opError("declare publisher", key, err)
	}
	return p, nil
}

// KeyExpr returns the key the publisher publishes on
func (p *Publisher) KeyExpr() string {
	return p.key
}

// Put publishes payload
func (p *Publisher) Put(ctx context.Context, payload []byte) error {
	return p.PutWith(ctx, payload, PutOptions{})
}

// PutWith publishes payload with a per-publication attachment and timestamp
func (p *Publisher) PutWith(ctx context.Context, payload []byte, opts PutOptions) error {
	if p.closed.Load() {
		return opError("put", p.key, ErrUndeclared)
	}
	opts.PublisherOptions = p.opts
	return p.session.Put(ctx, p.key, payload, opts)
}

// Delete publishes a deletion
func (p *Publisher) Delete(ctx context.Context) error {
	if p.closed.Load() {
		return opError("delete", p.key, ErrUndeclared)
	}
	return p.session.Delete(ctx, p.key, PutOptions{PublisherOptions: p.opts})
}

// Close undeclares the publisher
func (p *Publisher) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		p.session.untrack(p)
	}
	return nil
}
