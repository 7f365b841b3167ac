package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/freshcart/order-engine/internal/config"
)

// Backoff computes the delay before retrying attempt n (zero-based):
// base * 2^n, capped at policy.Max, with +/- JitterFactor of random spread so
// synchronized retriers do not stampede a recovering downstream.
func Backoff(policy config.Retry, attempt int) time.Duration {
	d := policy.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if policy.Max > 0 && d >= policy.Max {
			d = policy.Max
			break
		}
	}

	if policy.JitterFactor > 0 {
		jitter := 1 + policy.JitterFactor*(2*rand.Float64()-1)
		d = time.Duration(float64(d) * jitter)
	}
	if policy.Max > 0 && d > policy.Max {
		d = policy.Max
	}
	return d
}

// Do runs fn up to attempts times, sleeping Backoff between failures.
// Cancellation of ctx interrupts the sleep and returns ctx.Err().
func Do(ctx context.Context, policy config.Retry, attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(Backoff(policy, i)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
