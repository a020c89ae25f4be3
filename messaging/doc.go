// Package messaging provides the session API used by the commands.
//
// A Session is opened through a registered Driver and is backed by a
// Transport that moves samples, queries and replies between sessions. The
// session layer implements everything that does not depend on the wire:
//   - Publishers and one-shot puts and deletes
//   - Subscribers with origin filtering
//   - Queriers and one-shot gets with target selection, consolidation and timeouts
//   - Queryables that finalize each query when their handler returns
//   - Liveliness tokens, subscribers and gets on top of the above
//
// Events are delivered through a Callback. Call runs on a transport
// goroutine; Drop runs exactly once after the last Call, when the
// subscriber, queryable or scout is closed or when a query is finalized.
// ChannelCallback forwards events into a delivery channel:
//
//	tx, rx := delivery.New[contracts.Sample](delivery.DefaultCapacity)
//	sub, err := session.DeclareSubscriber("demo/**", messaging.ChannelCallback(tx), messaging.SubscriberOptions{})
//	if err != nil {
//	    return err
//	}
//
//	for sample := range bridge.New(rx, signal, sub).All() {
//	    fmt.Println(sample.KeyExpr)
//	}
package messaging
