package market

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxAttempts = 3
	DefaultTimeout     = 10 * time.Second
	DefaultDelay       = 2 * time.Second
)

// RetryPolicy bounds how long one coin fetch may take. The worst case is
// MaxAttempts*Timeout plus (MaxAttempts-1)*Delay.
type RetryPolicy struct {
	MaxAttempts int
	// Timeout applies to every single attempt
	Timeout time.Duration
	// Delay is the wait between attempts when NewBackOff is nil
	Delay time.Duration
	// NewBackOff overrides the constant delay between attempts
	NewBackOff func() backoff.BackOff
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Timeout:     DefaultTimeout,
		Delay:       DefaultDelay,
	}
}

func (x RetryPolicy) attempts() int {
	if x.MaxAttempts < 1 {
		return 1
	}
	return x.MaxAttempts
}

func (x RetryPolicy) backOff() backoff.BackOff {
	if x.NewBackOff != nil {
		return x.NewBackOff()
	}
	return backoff.NewConstantBackOff(x.Delay)
}
