// Package bridge turns callback-pushed events into lazily pulled sequences.
//
// Transports deliver events on their own goroutines through a
// delivery.Sender. The types in this package own the matching
// delivery.Receiver and expose the events to a single consumer:
//
//   - EventBridge: a live, cancellable sequence of raw events
//   - Collect and Aggregate: every event that arrives before a deadline, in one slice
//   - Stream: a live sequence of converted events
//   - Correlator: one batch of replies per request pulled from an upstream source
//
// Every wait is sliced at the poll granularity (50ms by default) and the
// interrupt.Signal is checked between slices, so cancellation never needs to
// preempt a blocked receive. Termination is always reported as the end of
// the sequence:
//
//	b := bridge.New(rx, signal, subscriber)
//	defer b.Close()
//
//	for sample := range b.All() {
//	    fmt.Println(sample.KeyExpr)
//	}
//
// The keep-alive resource passed to a bridge (a subscriber, a scout, a
// querier) is closed when the sequence ends.
package bridge
