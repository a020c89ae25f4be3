package messaging

import (
	"context"
	"strings"
	"sync"

	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/keyexpr"
)

// Liveliness declares tokens and observes the tokens of other sessions. A
// token is a put on the key under LivelinessPrefix, answered by a queryable
// for late joiners and withdrawn with a delete.
type Liveliness struct {
	session *Session
}

// Liveliness returns the liveliness API of the session
func (s *Session) Liveliness() *Liveliness {
	return &Liveliness{session: s}
}

func livelinessKey(key string) string {
	return keyexpr.Join(LivelinessPrefix, key)
}

func stripLiveliness(s contracts.Sample) contracts.Sample {
	s.KeyExpr = strings.TrimPrefix(s.KeyExpr, LivelinessPrefix+keyexpr.Separator)
	return s
}

// Token is a declared liveliness token
type Token struct {
	session   *Session
	key       string
	queryable *Queryable

	closeOnce sync.Once
	closeErr  error
}

// DeclareToken announces key as alive until the token is closed
func (l *Liveliness) DeclareToken(ctx context.Context, key string) (*Token, error) {
	s := l.session
	if err := keyexpr.ValidateConcrete(key); err != nil {
		return nil, opError("declare token", key, err)
	}
	lkey := livelinessKey(key)

	qa, err := s.DeclareQueryable(lkey, Callback[*contracts.Query]{
		Call: func(q *contracts.Query) {
			_ = q.Reply(contracts.NewSample(lkey, nil))
		},
	}, QueryableOptions{Complete: true})
	if err != nil {
		return nil, opError("declare token", key, err)
	}

	if err := s.Put(ctx, lkey, nil, PutOptions{}); err != nil {
		_ = qa.Close()
		return nil, opError("declare token", key, err)
	}

	t := &Token{session: s, key: key, queryable: qa}
	if err := s.track(t); err != nil {
		_ = qa.Close()
		return nil, opError("declare token", key, err)
	}

	s.logger.Debug("liveliness token declared", "keyexpr", key)
	return t, nil
}

// KeyExpr returns the token key
func (t *Token) KeyExpr() string {
	return t.key
}

// Close withdraws the token
func (t *Token) Close() error {
	t.closeOnce.Do(func() {
		t.session.untrack(t)
		t.closeErr = t.queryable.Close()
		if err := t.session.Delete(context.Background(), livelinessKey(t.key), PutOptions{}); err != nil && t.closeErr == nil {
			t.closeErr = err
		}
	})
	return t.closeErr
}

// DeclareSubscriber observes tokens appearing (put) and disappearing
// (delete) on key. With History the tokens alive at declaration time are
// reported first.
func (l *Liveliness) DeclareSubscriber(ctx context.Context, key string, cb Callback[contracts.Sample], opts LivelinessSubscriberOptions) (*Subscriber, error) {
	s := l.session
	if err := keyexpr.Validate(key); err != nil {
		return nil, opError("declare liveliness subscriber", key, err)
	}
	lkey := livelinessKey(key)

	sub, err := s.declareSubscriber(lkey, cb, SubscriberOptions{AllowedOrigin: opts.AllowedOrigin}, stripLiveliness)
	if err != nil {
		return nil, err
	}
	sub.key = key

	if opts.History {
		history := Callback[contracts.Reply]{
			Call: func(r contracts.Reply) {
				if r.Sample != nil {
					sub.guard.call(*r.Sample)
				}
			},
		}
		getOpts := GetOptions{QuerierOptions: QuerierOptions{Target: contracts.TargetAll, Consolidation: contracts.ConsolidationNone}}
		if err := s.get(ctx, lkey, "", history, getOpts, stripReply); err != nil {
			_ = sub.Close()
			return nil, err
		}
	}
	return sub, nil
}

func stripReply(r contracts.Reply) contracts.Reply {
	if r.Sample != nil {
		stripped := stripLiveliness(*r.Sample)
		r.Sample = &stripped
	}
	return r
}

// Get queries the tokens currently alive on key
func (l *Liveliness) Get(ctx context.Context, key string, cb Callback[contracts.Reply], opts GetOptions) error {
	if err := keyexpr.Validate(key); err != nil {
		return opError("liveliness get", key, err)
	}
	opts.Target = contracts.TargetAll
	opts.Consolidation = contracts.ConsolidationNone
	return l.session.get(ctx, livelinessKey(key), "", cb, opts, stripReply)
}
