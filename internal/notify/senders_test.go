package notify

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/freshcart/order-engine/internal/config"
	"github.com/freshcart/order-engine/internal/observability"
	"github.com/freshcart/order-engine/internal/pkg/breaker"
	"github.com/freshcart/order-engine/internal/pkg/resilience"
)

func testResilience(t *testing.T, name string) (*resilience.Client, resilience.Target) {
	t.Helper()
	reg := breaker.NewRegistry(config.Breaker{
		Threshold:   5,
		OpenTimeout: 30 * time.Second,
		MaxHalfOpen: 1,
	})
	rc := resilience.NewClient(reg, config.Retry{
		Base:         time.Millisecond,
		Max:          5 * time.Millisecond,
		JitterFactor: 0,
	}, zap.NewNop(), observability.NewNoop())

	return rc, resilience.NewTarget(name, config.Target{
		Timeout:     time.Second,
		MaxAttempts: 1,
	})
}
