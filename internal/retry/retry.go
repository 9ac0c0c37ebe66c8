// Package retry runs an operation under an explicit retry policy.
package retry

import (
	"context"
	"time"
)

// Policy bounds how often and how far apart an operation is retried.
// MaxRetries counts retries after the first attempt.
type Policy struct {
	MaxRetries int
	Delay      func(retry int) time.Duration
	// Classify decides whether err is worth another attempt. A nil Classify
	// retries every error. It may return a replacement error to surface.
	Classify func(ctx context.Context, attempt int, err error) (bool, error)
	// Sleep waits between attempts; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Fixed returns a Policy retrying up to maxRetries times with a constant delay.
func Fixed(maxRetries int, delay time.Duration) Policy {
	return Policy{
		MaxRetries: maxRetries,
		Delay:      func(int) time.Duration { return delay },
	}
}

// Do runs op until it succeeds, the policy gives up, or ctx is done. attempt
// starts at 0.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		value, err := op(ctx, attempt)
		if err == nil {
			return value, nil
		}
		if attempt >= p.MaxRetries {
			return zero, err
		}
		if p.Classify != nil {
			again, replaced := p.Classify(ctx, attempt, err)
			if replaced != nil {
				err = replaced
			}
			if !again {
				return zero, err
			}
		}
		var wait time.Duration
		if p.Delay != nil {
			wait = p.Delay(attempt + 1)
		}
		if err := p.sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
