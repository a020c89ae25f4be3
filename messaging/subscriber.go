package messaging

import (
	"io"
	"sync"

	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/keyexpr"
)

// Subscriber receives the samples published on a key expression
type Subscriber struct {
	session *Session
	key     string
	guard   *guard[contracts.Sample]
	reg     io.Closer

	closeOnce sync.Once
	closeErr  error
}

// DeclareSubscriber subscribes cb to key
func (s *Session) DeclareSubscriber(key string, cb Callback[contracts.Sample], opts SubscriberOptions) (*Subscriber, error) {
	return s.declareSubscriber(key, cb, opts, nil)
}

func (s *Session) declareSubscriber(key string, cb Callback[contracts.Sample], opts SubscriberOptions, rewrite func(contracts.Sample) contracts.Sample) (*Subscriber, error) {
	if s.isClosed() {
		return nil, opError("declare subscriber", key, ErrSessionClosed)
	}
	if err := keyexpr.Validate(key); err != nil {
		return nil, opError("declare subscriber", key, err)
	}

	sub := &Subscriber{session: s, key: key, guard: newGuard(cb)}
	reg, err := s.transport.Subscribe(key, func(env Envelope) {
		local := s.isLocal(env.Source)
		if !opts.AllowedOrigin.Allows(local) || !env.Destination.Allows(local) {
			return
		}
		if !keyexpr.Intersects(key, env.Sample.KeyExpr) {
			return
		}
		sample := env.Sample
		if rewrite != nil {
			sample = rewrite(sample)
		}
		sub.guard.call(sample)
	})
	if err != nil {
		return nil, opError("declare subscriber", key, err)
	}
	sub.reg = reg

	if err := s.track(sub); err != nil {
		_ = sub.Close()
		return nil, opError("declare subscriber", key, err)
	}

	s.logger.Debug("subscriber declared", "keyexpr", key)
	return sub, nil
}

// KeyExpr returns the subscribed key expression
func (sub *Subscriber) KeyExpr() string {
	return sub.key
}

// Close undeclares the subscriber and drops its callback
func (sub *Subscriber) Close() error {
	sub.closeOnce.Do(func() {
		sub.closeErr = sub.reg.Close()
		sub.guard.drop()
		sub.session.untrack(sub)
		sub.session.logger.Debug("subscriber undeclared", "keyexpr", sub.key)
	})
	return sub.closeErr
}
