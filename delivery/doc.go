// Package delivery provides the bounded multi-producer, single-consumer channel
// that carries events from transport callbacks to a poll-driven consumer.
//
// The producer side is a Sender handle. Each callback context gets its own
// clone, and every clone must be released with Close. The channel reports
// closure to the consumer once every sender handle has been released, after
// any buffered items have been received:
//
//	tx, rx := delivery.New[contracts.Sample](delivery.DefaultCapacity)
//	sub, err := sess.DeclareSubscriber("demo/**", opts, messaging.ChannelCallback(tx))
//
//	for {
//	    sample, status := rx.RecvTimeout(50 * time.Millisecond)
//	    switch status {
//	    case delivery.Received:
//	        handle(sample)
//	    case delivery.Timeout:
//	        // poll a cancellation signal, then wait again
//	    case delivery.Disconnected:
//	        return
//	    }
//	}
//
// Sends block while the channel is full. A consumer that gives up early closes
// its Receiver, which unblocks producers with ErrReceiverClosed.
package delivery
