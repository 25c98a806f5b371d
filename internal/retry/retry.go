package retry

import (
	"context"
	"time"
)

// Policy controls retry behavior for operations against storage
type Policy struct {
	MaxRetries  int           // max retry attempts after the first call
	BaseBackoff time.Duration // initial backoff duration
	MaxBackoff  time.Duration // upper bound on backoff
	JitterFn    func(time.Duration) time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  3,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
		JitterFn:    func(d time.Duration) time.Duration { return d / 2 }, // default jitter: 50%
	}
}

// Do executes fn with retries, backoff, and cancellation support.
//
// fn must return nil on success.
// Any non-nil error is treated as retryable.
// onRetry, if set, is called before each wait with the attempt number and error.
func Do(
	ctx context.Context,
	policy Policy,
	fn func() error,
	onRetry func(attempt int, err error),
) error {
	attempt := 0
	backoff := policy.BaseBackoff

	for {
		err := fn()
		if err == nil {
			return nil
		}

		attempt++
		if attempt > policy.MaxRetries {
			return err
		}

		delay := backoff
		if policy.JitterFn != nil {
			delay += policy.JitterFn(backoff)
		}
		if policy.MaxBackoff > 0 && delay > policy.MaxBackoff {
			delay = policy.MaxBackoff
		}

		if onRetry != nil {
			onRetry(attempt, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
			backoff *= 2
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
