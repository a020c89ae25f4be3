package messaging

import (
	"strings"

	"github.com/glimte/nuze-go/contracts"
)

// consolidator merges the replies of one query that carry the same key
type consolidator struct {
	mode    contracts.ConsolidationMode
	last    map[string]*contracts.Timestamp
	index   map[string]int
	pending []contracts.Reply
}

func newConsolidator(mode contracts.ConsolidationMode, parameters string) *consolidator {
	if mode == contracts.ConsolidationAuto {
		mode = contracts.ConsolidationLatest
		if strings.Contains(parameters, "_time=") {
			mode = contracts.ConsolidationNone
		}
	}
	return &consolidator{
		mode:  mode,
		last:  make(map[string]*contracts.Timestamp),
		index: make(map[string]int),
	}
}

func newer(a, b *contracts.Timestamp) bool {
	if a == nil || b == nil {
		return true
	}
	return a.Time.After(b.Time)
}

// accept reports whether r is delivered immediately. Replies held back for
// latest consolidation are returned by flush.
func (c *consolidator) accept(r contracts.Reply) bool {
	if r.Sample == nil || c.mode == contracts.ConsolidationNone {
		return true
	}

	key := r.Sample.KeyExpr
	switch c.mode {
	case contracts.ConsolidationMonotonic:
		if prev, seen := c.last[key]; seen && !newer(r.Sample.Timestamp, prev) {
			return false
		}
		c.last[key] = r.Sample.Timestamp
		return true

	default:
		if i, seen := c.index[key]; seen {
			if newer(r.Sample.Timestamp, c.pending[i].Sample.Timestamp) {
				c.pending[i] = r
			}
			return false
		}
		c.index[key] = len(c.pending)
		c.pending = append(c.pending, r)
		return false
	}
}

// flush returns the held back replies in order of first arrival
func (c *consolidator) flush() []contracts.Reply {
	out := c.pending
	c.pending = nil
	c.index = make(map[string]int)
	return out
}
