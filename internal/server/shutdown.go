package server

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Teardown runs loom's shutdown sequence. Steps execute in registration
// order, which doubles as the dependency order: stop API traffic first,
// snapshot the vector index while the store is still open, flush traces,
// then close stores and clients. A failing step is logged and never blocks
// the steps after it.
type Teardown struct {
	timeout time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	steps []teardownStep

	trigger chan struct{}
	done    chan struct{}
	once    sync.Once
	armOnce sync.Once
}

type teardownStep struct {
	name string
	fn   func(ctx context.Context) error
}

// NewTeardown builds an empty sequence. The timeout bounds the whole run;
// zero means 30 seconds.
func NewTeardown(timeout time.Duration, logger *slog.Logger) *Teardown {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Teardown{
		timeout: timeout,
		logger:  logger,
		trigger: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Step appends a named step. Register in the order things must come down.
func (t *Teardown) Step(name string, fn func(ctx context.Context) error) {
	t.mu.Lock()
	t.steps = append(t.steps, teardownStep{name: name, fn: fn})
	t.mu.Unlock()
}

// Arm starts listening for SIGTERM and SIGINT. Either signal, or a Trigger
// call, runs the sequence exactly once.
func (t *Teardown) Arm() {
	t.armOnce.Do(func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		go func() {
			select {
			case sig := <-sigCh:
				t.logger.Info("shutdown signal received", "signal", sig.String())
			case <-t.trigger:
			}
			signal.Stop(sigCh)
			t.run()
		}()
	})
}

// Trigger starts the sequence without a signal, e.g. when the API listener
// returns on its own.
func (t *Teardown) Trigger() {
	t.once.Do(func() { close(t.trigger) })
}

// Wait blocks until every step has run. Call Arm first; an unarmed teardown
// never completes.
func (t *Teardown) Wait() {
	<-t.done
}

// Done reports completion for select loops.
func (t *Teardown) Done() <-chan struct{} {
	return t.done
}

func (t *Teardown) run() {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	t.mu.Lock()
	steps := make([]teardownStep, len(t.steps))
	copy(steps, t.steps)
	t.mu.Unlock()

	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			t.logger.Error("teardown step failed", "step", step.name, "error", err)
			continue
		}
		t.logger.Debug("teardown step finished", "step", step.name)
	}
	close(t.done)
}
