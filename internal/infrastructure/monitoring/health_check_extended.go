package monitoring

import (
	"context"
	"fmt"
	"time"

	"worklens/pkg/circuitbreaker"
)

// Pinger is anything that can report its own health, such as the
// repository factory.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// AddStorageCheck adds a check backed by the storage layer.
func (h *HealthChecker) AddStorageCheck(storage Pinger, interval, timeout time.Duration) {
	h.AddCheck("storage", func(ctx context.Context) (bool, error) {
		if err := storage.HealthCheck(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddBreakerCheck fails while the breaker behind stats is open.
func (h *HealthChecker) AddBreakerCheck(name string, stats func() circuitbreaker.Stats, interval, timeout time.Duration) {
	h.AddCheck(name, func(ctx context.Context) (bool, error) {
		s := stats()
		if s.State == circuitbreaker.StateOpen {
			return false, fmt.Errorf("circuit open since %s", s.LastChangedAt.Format(time.RFC3339))
		}
		return true, nil
	}, interval, timeout)
}

// AddRelayCheck fails once the relay has stopped accepting connections.
func (h *HealthChecker) AddRelayCheck(accepting func() bool, interval, timeout time.Duration) {
	h.AddCheck("relay", func(ctx context.Context) (bool, error) {
		return accepting(), nil
	}, interval, timeout)
}
