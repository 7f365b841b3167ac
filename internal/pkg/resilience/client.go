// Package resilience consolidates the retry, timeout and circuit-breaking
// policy applied to every downstream call. Call sites name one of the closed
// set of targets below instead of dispatching on free-form strings, and each
// target keeps its own breaker state in the injected registry.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/freshcart/order-engine/internal/config"
	"github.com/freshcart/order-engine/internal/observability"
	"github.com/freshcart/order-engine/internal/pkg/breaker"
	"github.com/freshcart/order-engine/internal/pkg/retry"
)

var (
	// ErrCircuitOpen is yielded without a network attempt when the target's
	// breaker disallows the call.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrUnavailable means every attempt failed; it wraps the last
	// underlying failure for diagnostics.
	ErrUnavailable = errors.New("downstream unavailable")
)

// Target names a downstream collaborator together with its per-attempt
// timeout and attempt budget. The set of targets is closed: cart store plus
// one target per notification channel, so per-channel failure isolation falls
// out of per-target breaker state.
type Target struct {
	Name        string
	Timeout     time.Duration
	MaxAttempts int
}

const (
	TargetCart  = "cart"
	TargetPush  = "notify-push"
	TargetEmail = "notify-email"
	TargetInApp = "notify-inapp"
)

// NewTarget binds a target name to its config section.
func NewTarget(name string, cfg config.Target) Target {
	return Target{
		Name:        name,
		Timeout:     cfg.Timeout,
		MaxAttempts: cfg.MaxAttempts,
	}
}

type Client struct {
	registry *breaker.Registry
	policy   config.Retry
	logger   *zap.Logger
	metrics  observability.Metrics
}

func NewClient(registry *breaker.Registry, policy config.Retry, logger *zap.Logger, metrics observability.Metrics) *Client {
	return &Client{
		registry: registry,
		policy:   policy,
		logger:   logger,
		metrics:  metrics,
	}
}

// Call runs op against the target with the full resilience policy: the
// breaker is consulted before every attempt (fail-fast with ErrCircuitOpen,
// no attempt consumed), each attempt is bounded by the target timeout, and
// failed attempts back off exponentially with jitter. Operations passed here
// must be idempotent; the caller supplies idempotency keys so a retried
// side effect never double-applies downstream.
func (c *Client) Call(ctx context.Context, t Target, op func(ctx context.Context) error) error {
	brk := c.registry.For(t.Name)
	attempts := t.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := brk.Allow(); err != nil {
			c.metrics.IncCircuitOpen(t.Name)
			c.logger.Warn("call blocked by circuit breaker",
				zap.String("target", t.Name),
			)
			return fmt.Errorf("%w: target %s", ErrCircuitOpen, t.Name)
		}

		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, t.Timeout)
		err := op(attemptCtx)
		cancel()
		durMs := float64(time.Since(start).Microseconds()) / 1000.0

		if err == nil {
			brk.Success()
			c.metrics.ObserveDownstream(t.Name, true, durMs)
			return nil
		}

		brk.Failure()
		c.metrics.ObserveDownstream(t.Name, false, durMs)
		last = err
		c.logger.Warn("downstream attempt failed",
			zap.String("target", t.Name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)

		if attempt == attempts-1 {
			break
		}
		select {
		case <-time.After(retry.Backoff(c.policy, attempt)):
		case <-ctx.Done():
			return fmt.Errorf("%w: target %s: %v", ErrUnavailable, t.Name, ctx.Err())
		}
	}
	return fmt.Errorf("%w: target %s: %v", ErrUnavailable, t.Name, last)
}
