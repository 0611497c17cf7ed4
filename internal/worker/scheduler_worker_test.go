package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/worker"
)

type countingRunner struct {
	runs atomic.Int32
	err  error
}

func (c *countingRunner) Run(context.Context) (*worker.Report, error) {
	c.runs.Add(1)
	return &worker.Report{}, c.err
}

func TestSchedulerWorker_TicksImmediatelyAndRepeatedly(t *testing.T) {
	runner := &countingRunner{err: errors.New("store down")}
	sw := worker.NewSchedulerWorker(runner, 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runner.runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 runs, got %d", runner.runs.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}

func TestSchedulerWorker_FirstTickIsImmediate(t *testing.T) {
	runner := &countingRunner{}
	sw := worker.NewSchedulerWorker(runner, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for runner.runs.Load() < 1 {
		select {
		case <-deadline:
			t.Fatal("expected an immediate first run")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
	if n := runner.runs.Load(); n != 1 {
		t.Fatalf("expected exactly one run within the hour interval, got %d", n)
	}
}
