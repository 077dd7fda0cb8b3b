// Package retry runs an operation a bounded number of times while a predicate
// says its failure is transient.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultAttempts is the total number of tries, including the first.
	DefaultAttempts = 3
	// DefaultDelay is the fixed pause between tries.
	DefaultDelay = time.Second
)

// Policy bounds a retry loop.
type Policy struct {
	Attempts int
	Delay    time.Duration
	// Transient reports whether err is worth another attempt. A nil predicate
	// retries nothing.
	Transient func(error) bool
	// OnRetry is called before each sleep with the failed attempt number.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Do runs op until it succeeds, returns a non-transient error, the attempts
// are used up, or ctx ends. The last operation error is returned.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	delay := policy.Delay
	if delay < 0 {
		delay = 0
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(delay)
	b = backoff.WithMaxRetries(b, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if policy.Transient == nil || !policy.Transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err, wait)
		}
	}
	return backoff.RetryNotify(operation, b, notify)
}
