// Package flaky provides the failure injector used to exercise activity
// retry policies and timeouts. Per invocation it fails one-third of the
// time, stalls long enough to trip the activity start-to-close timeout
// one-third of the time, and succeeds otherwise.
//
// The injector is a test harness: it is disabled by default and gated by
// FLAKY_ENABLED in the worker hosts.
package flaky

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrInjected is the failure returned by an injected error outcome.
var ErrInjected = errors.New("forced failure for testing")

// stallDuration is long enough that the activity layer times out first.
const stallDuration = 300 * time.Second

// Injector injects failures into activity executions.
type Injector struct {
	enabled bool

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns an injector. When enabled is false, Call always succeeds.
func New(enabled bool) *Injector {
	return &Injector{
		enabled: enabled,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewSeeded returns an enabled injector with a deterministic sequence,
// for tests.
func NewSeeded(seed int64) *Injector {
	return &Injector{
		enabled: true,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Call rolls the dice once. Outcomes: error, stall until the context is
// canceled (simulating a timeout), or success. A nil receiver succeeds.
func (i *Injector) Call(ctx context.Context) error {
	if i == nil || !i.enabled {
		return nil
	}

	i.mu.Lock()
	roll := i.rng.Float64()
	i.mu.Unlock()

	switch {
	case roll < 1.0/3.0:
		return ErrInjected
	case roll < 2.0/3.0:
		select {
		case <-time.After(stallDuration):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		return nil
	}
}
