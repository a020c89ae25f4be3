package contracts

import (
	"strings"
	"sync/atomic"
)

// Responder delivers the replies of one query back to the querier
type Responder interface {
	Reply(sample Sample) error
	ReplyErr(err ReplyError) error
}

// Query is a query received by a queryable. It can be answered until it is
// finalized, which happens when the queryable handler returns.
type Query struct {
	KeyExpr    string
	Parameters string
	Payload    []byte
	Encoding   string
	Attachment []byte

	responder Responder
	finalized *atomic.Bool
}

// NewQuery creates a query that answers through r
func NewQuery(keyExpr, parameters string, r Responder) *Query {
	return &Query{
		KeyExpr:    keyExpr,
		Parameters: parameters,
		responder:  r,
		finalized:  &atomic.Bool{},
	}
}

// Selector returns the key expression with its parameters
func (q *Query) Selector() string {
	if q.Parameters == "" {
		return q.KeyExpr
	}
	return q.KeyExpr + "?" + q.Parameters
}

// Reply sends a data reply
func (q *Query) Reply(sample Sample) error {
	if q.finalized.Load() {
		return ErrQueryFinalized
	}
	return q.responder.Reply(sample)
}

// ReplyErr sends an error reply
func (q *Query) ReplyErr(err ReplyError) error {
	if q.finalized.Load() {
		return ErrQueryFinalized
	}
	return q.responder.ReplyErr(err)
}

// Finalize marks the query as answered. It reports whether this call
// finalized it.
func (q *Query) Finalize() bool {
	return q.finalized.CompareAndSwap(false, true)
}

// Finalized reports whether the query no longer accepts replies
func (q *Query) Finalized() bool {
	return q.finalized.Load()
}

// ParseSelector splits "key?params" into its key expression and parameters
func ParseSelector(selector string) (string, string) {
	key, params, _ := strings.Cut(selector, "?")
	return key, params
}
