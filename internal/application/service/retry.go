package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is a bounded exponential backoff.
type RetryPolicy struct {
	Initial     time.Duration
	Multiplier  float64
	MaxInterval time.Duration
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Initial:     500 * time.Millisecond,
		Multiplier:  2,
		MaxInterval: 5 * time.Second,
		MaxAttempts: 4,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	// Attempts bound the retry, not elapsed time.
	b.MaxElapsedTime = 0
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Retry runs op until it succeeds, returns a backoff.Permanent error, the attempts
// are used up or ctx is done. notify, if set, sees every failed attempt that will be retried.
func Retry(ctx context.Context, p RetryPolicy, op func() error, notify func(err error, wait time.Duration)) error {
	if notify == nil {
		return backoff.Retry(op, p.backOff(ctx))
	}
	return backoff.RetryNotify(op, p.backOff(ctx), notify)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
