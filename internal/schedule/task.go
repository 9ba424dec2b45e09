// Package schedule runs periodic background actions.
package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/pslog"
)

// Action is one run of a periodic task. Errors are logged and the task keeps
// running.
type Action func(ctx context.Context) error

// Task runs an Action now and then on every interval until stopped.
type Task struct {
	name string
	log  pslog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	runs    uint64
	failed  uint64
	lastErr error
}

// New returns a stopped task.
func New(name string, logger pslog.Logger) *Task {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Task{name: name, log: logger.With("task", name)}
}

// Start launches the loop. The action runs once immediately. Starting a
// running task is an error.
func (t *Task) Start(ctx context.Context, interval time.Duration, action Action) error {
	if action == nil {
		return errors.New("schedule: action is required")
	}
	if interval <= 0 {
		return errors.New("schedule: interval must be positive")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		return errors.New("schedule: task already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		t.run(ctx, action)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.run(ctx, action)
			}
		}
	}()
	return nil
}

func (t *Task) run(ctx context.Context, action Action) {
	err := action(ctx)
	t.mu.Lock()
	t.runs++
	if err != nil {
		t.failed++
	}
	t.lastErr = err
	t.mu.Unlock()
	if err != nil && ctx.Err() == nil {
		t.log.Warn("scheduled task failed", "err", err)
	}
}

// Stop cancels the loop and waits for the current run to finish. It is safe
// to call more than once and on a task that never started.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	done := t.done
	t.cancel = nil
	t.done = nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Runs returns the number of completed runs and failures.
func (t *Task) Runs() (runs, failed uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs, t.failed
}

// LastError returns the error from the most recent run.
func (t *Task) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}
