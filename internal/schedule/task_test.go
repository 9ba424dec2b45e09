package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskRunsImmediatelyAndRepeats(t *testing.T) {
	task := New("refresh", nil)
	var count atomic.Int32
	if err := task.Start(context.Background(), 10*time.Millisecond, func(context.Context) error {
		count.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer task.Stop()
	deadline := time.Now().Add(2 * time.Second)
	for count.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 3 runs, got %d", count.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTaskStopIsIdempotent(t *testing.T) {
	task := New("noop", nil)
	task.Stop()
	if err := task.Start(context.Background(), time.Hour, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !task.Running() {
		t.Fatalf("expected running task")
	}
	task.Stop()
	task.Stop()
	if task.Running() {
		t.Fatalf("expected stopped task")
	}
	runs, _ := task.Runs()
	if runs != 1 {
		t.Fatalf("expected the immediate run only, got %d", runs)
	}
}

func TestTaskRecordsFailures(t *testing.T) {
	task := New("failing", nil)
	boom := errors.New("boom")
	ran := make(chan struct{}, 1)
	if err := task.Start(context.Background(), time.Hour, func(context.Context) error {
		ran <- struct{}{}
		return boom
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-ran
	task.Stop()
	if _, failed := task.Runs(); failed != 1 {
		t.Fatalf("expected one failure, got %d", failed)
	}
	if !errors.Is(task.LastError(), boom) {
		t.Fatalf("expected last error boom, got %v", task.LastError())
	}
}

func TestTaskRejectsDoubleStart(t *testing.T) {
	task := New("double", nil)
	action := func(context.Context) error { return nil }
	if err := task.Start(context.Background(), time.Hour, action); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer task.Stop()
	if err := task.Start(context.Background(), time.Hour, action); err == nil {
		t.Fatalf("expected error on second start")
	}
	if err := New("bad", nil).Start(context.Background(), 0, action); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}

func TestTaskStopsWithContext(t *testing.T) {
	task := New("ctx", nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	if err := task.Start(ctx, time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("action did not observe cancellation")
	}
	task.Stop()
}
