// Package retry provides bounded retry with backoff for transient failures.
//
// Do runs an operation until it succeeds, returns an error the RetryIf
// predicate rejects, or MaxAttempts is spent. Between attempts it waits for
// the backoff delay, or for the Retry-After carried by an
// errors.Error when the server asked for longer. The wait goes through
// Config.Sleep so callers can plug in the same clock their rate limiter uses.
//
//	cfg := &retry.Config{
//		MaxAttempts: retry.AttemptsForRetries(5),
//		Backoff:     retry.DefaultExponentialBackoff(),
//		RetryIf:     retry.DefaultRetryIf,
//		Logger:      logger.GetLogger(),
//	}
//	err := retry.Do(ctx, func() error {
//		return fetchOnce(ctx)
//	}, cfg)
//	if errors.Is(err, retry.ErrExhausted) {
//		// every attempt failed
//	}
package retry
