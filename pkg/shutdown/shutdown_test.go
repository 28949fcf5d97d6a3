package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdown_RunsHandlersInOrder(t *testing.T) {
	m := NewManager()
	var order []string
	for _, name := range []string{"sweeper", "sessions", "ledger"} {
		name := name
		m.OnShutdown(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Equal(t, 3, m.Shutdown(ctx))
	assert.Equal(t, []string{"sweeper", "sessions", "ledger"}, order)
}

func TestShutdown_FailureDoesNotStopLaterHandlers(t *testing.T) {
	m := NewManager()
	ran := false
	m.OnShutdown("broken", func(ctx context.Context) error { return errors.New("boom") })
	m.OnShutdown("after", func(ctx context.Context) error { ran = true; return nil })

	assert.Equal(t, 1, m.Shutdown(context.Background()))
	assert.True(t, ran)
}

func TestShutdown_StopsAtDeadline(t *testing.T) {
	m := NewManager()
	release := make(chan struct{})
	defer close(release)
	skipped := true
	m.OnShutdown("stuck", func(ctx context.Context) error { <-release; return nil })
	m.OnShutdown("late", func(ctx context.Context) error { skipped = false; return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	assert.Zero(t, m.Shutdown(ctx))
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, skipped)
}

func TestShutdown_IgnoresLateRegistration(t *testing.T) {
	m := NewManager()
	assert.Zero(t, m.Shutdown(context.Background()))

	m.OnShutdown("late", func(ctx context.Context) error { t.Fatal("must not run"); return nil })
	assert.Zero(t, m.Shutdown(context.Background()))
}
