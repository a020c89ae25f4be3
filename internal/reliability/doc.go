// Package reliability provides retry policies for transport connection setup.
//
// A RetryPolicy decides whether a failed attempt is tried again and how long
// to wait first. Retry runs an operation under a policy, logging each failed
// attempt and reporting exhaustion as a *RetryError.
//
//	policy := reliability.NewExponentialBackoff(100*time.Millisecond, 5*time.Second, 2.0, 5)
//	err := reliability.Retry(ctx, policy, "connect", func(ctx context.Context) error {
//	    return dial(ctx)
//	})
//
// Wrap an error with Permanent to stop retrying immediately.
package reliability
