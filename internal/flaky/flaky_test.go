package flaky

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCall_DisabledAlwaysSucceeds(t *testing.T) {
	inj := New(false)
	for i := 0; i < 100; i++ {
		require.NoError(t, inj.Call(context.Background()))
	}
}

func TestCall_NilInjectorSucceeds(t *testing.T) {
	var inj *Injector
	require.NoError(t, inj.Call(context.Background()))
}

func TestCall_StallHonorsContext(t *testing.T) {
	inj := NewSeeded(1)

	// Walk the seeded sequence under a short deadline: every outcome must
	// resolve promptly as either success, an injected error, or the
	// context deadline standing in for the activity timeout.
	var sawInjected, sawDeadline bool
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		err := inj.Call(ctx)
		cancel()

		switch {
		case err == nil:
		case errors.Is(err, ErrInjected):
			sawInjected = true
		case errors.Is(err, context.DeadlineExceeded):
			sawDeadline = true
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.True(t, sawInjected, "expected at least one injected failure")
	require.True(t, sawDeadline, "expected at least one stall cut short by the deadline")
}
