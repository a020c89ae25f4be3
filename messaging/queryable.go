package messaging

import (
	"io"
	"sync"

	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/keyexpr"
)

// Queryable answers the queries addressed to a key expression
type Queryable struct {
	session *Session
	key     string
	guard   *guard[*contracts.Query]
	reg     io.Closer

	closeOnce sync.Once
	closeErr  error
}

// DeclareQueryable serves key with cb. Each query is finalized when cb.Call
// returns, so replies must be sent from within the call.
func (s *Session) DeclareQueryable(key string, cb Callback[*contracts.Query], opts QueryableOptions) (*Queryable, error) {
	if s.isClosed() {
		return nil, opError("declare queryable", key, ErrSessionClosed)
	}
	if err := keyexpr.Validate(key); err != nil {
		return nil, opError("declare queryable", key, err)
	}

	qa := &Queryable{session: s, key: key, guard: newGuard(cb)}
	reg, err := s.transport.Serve(key, func(in InboundQuery) {
		defer in.Query.Finalize()

		local := s.isLocal(in.Source)
		if !opts.AllowedOrigin.Allows(local) || !in.Destination.Allows(local) {
			return
		}
		if !keyexpr.Intersects(key, in.Query.KeyExpr) {
			return
		}
		if in.Target == contracts.TargetAllComplete && !(opts.Complete && keyexpr.Includes(key, in.Query.KeyExpr)) {
			return
		}
		qa.guard.call(in.Query)
	})
	if err != nil {
		return nil, opError("declare queryable", key, err)
	}
	qa.reg = reg

	if err := s.track(qa); err != nil {
		_ = qa.Close()
		return nil, opError("declare queryable", key, err)
	}

	s.logger.Debug("queryable declared", "keyexpr", key, "complete", opts.Complete)
	return qa, nil
}

// KeyExpr returns the served key expression
func (qa *Queryable) KeyExpr() string {
	return qa.key
}

// Close undeclares the queryable and drops its callback
func (qa *Queryable) Close() error {
	qa.closeOnce.Do(func() {
		qa.closeErr = qa.reg.Close()
		qa.guard.drop()
		qa.session.untrack(qa)
	})
	return qa.closeErr
}
