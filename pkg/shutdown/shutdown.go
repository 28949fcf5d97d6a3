// Package shutdown tears process resources down in order on exit.
package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/apexwallet/pkg/logger"
)

// Handler releases one resource. It should return once ctx is done.
type Handler func(ctx context.Context) error

type step struct {
	name    string
	handler Handler
}

// Manager runs registered handlers one after another, in registration order,
// so a resource is released only after everything registered before it that
// may still use it.
type Manager struct {
	mu    sync.Mutex
	steps []step
	done  bool
}

func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown registers a named handler. Registrations after Shutdown are
// ignored.
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return
	}
	m.steps = append(m.steps, step{name: name, handler: handler})
}

// Shutdown runs every handler in order. A failing handler is logged and the
// rest still run. Once ctx is done the remaining handlers are skipped. It
// returns the number of handlers that completed without error.
func (m *Manager) Shutdown(ctx context.Context) int {
	m.mu.Lock()
	steps := m.steps
	m.steps = nil
	m.done = true
	m.mu.Unlock()

	if len(steps) == 0 {
		logger.Info("no shutdown handlers registered")
		return 0
	}
	logger.Infof("graceful shutdown: %d handlers", len(steps))

	ok := 0
	for i, st := range steps {
		if err := ctx.Err(); err != nil {
			logger.Warnf("shutdown timed out before %s (%d skipped): %v", st.name, len(steps)-i, err)
			return ok
		}
		if err := runStep(ctx, st); err != nil {
			logger.Warnf("shutdown %s: %v", st.name, err)
			continue
		}
		logger.Debugf("shutdown %s done", st.name)
		ok++
	}
	logger.Info("shutdown handlers finished")
	return ok
}

// runStep waits for st or ctx, whichever ends first.
func runStep(ctx context.Context, st step) error {
	errc := make(chan error, 1)
	go func() { errc <- st.handler(ctx) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
