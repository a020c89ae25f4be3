// Package interrupt provides the cancellation signal polled by streaming consumers.
//
// A Signal is a read-only, non-blocking flag. Consumers poll it between bounded
// waits instead of blocking on it, which keeps the consumer single-goroutine and
// makes cancellation latency a fixed, known quantity (one poll interval).
//
// Basic usage:
//
//	flag, stop := interrupt.Notify(ctx)
//	defer stop()
//
//	for event := range bridge.New(rx, flag, sub).All() {
//	    // runs until Ctrl-C, producer closure, or ctx cancellation
//	}
//
// Once a Signal reports true it never reverts to false.
package interrupt
