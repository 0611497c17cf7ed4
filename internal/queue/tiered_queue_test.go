package queue_test

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/notifyhub/mailqueue/internal/domain"
	"github.com/notifyhub/mailqueue/internal/queue"
)

func item(id int64, status domain.Status) queue.Item {
	r := &domain.QueueRecord{ID: id, Status: status}
	return queue.Item{Record: r, Tier: queue.TierFor(r)}
}

func TestTierFor(t *testing.T) {
	tests := map[domain.Status]queue.Tier{
		domain.StatusPending: queue.TierFirst,
		domain.StatusQueued:  queue.TierFirst,
		domain.StatusSent:    queue.TierFirst,
		domain.StatusFailed:  queue.TierRetry,
	}
	for status, want := range tests {
		if got := queue.TierFor(&domain.QueueRecord{Status: status}); got != want {
			t.Errorf("TierFor(%s) = %s, want %s", status, got, want)
		}
	}
}

// TestTieredQueue_FirstBeforeRetry verifies that a first attempt enqueued
// after a retry is still served first.
func TestTieredQueue_FirstBeforeRetry(t *testing.T) {
	q := queue.New(10)

	_ = q.Enqueue(item(1, domain.StatusFailed))
	_ = q.Enqueue(item(2, domain.StatusQueued))

	got, ok := q.TryDequeue()
	if !ok || got.Record.ID != 2 {
		t.Fatalf("expected first attempt 2, got %+v ok=%v", got.Record, ok)
	}
	got, ok = q.TryDequeue()
	if !ok || got.Record.ID != 1 {
		t.Fatalf("expected retry 1, got %+v ok=%v", got.Record, ok)
	}
	if _, ok := q.TryDequeue(); ok {
		t.Fatal("expected empty queue")
	}
}

func TestTieredQueue_ErrQueueFull(t *testing.T) {
	q := queue.New(2)

	for i := int64(1); i <= 2; i++ {
		if err := q.Enqueue(item(i, domain.StatusPending)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := q.Enqueue(item(3, domain.StatusPending)); !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	// The retry tier has its own capacity.
	if err := q.Enqueue(item(4, domain.StatusFailed)); err != nil {
		t.Fatalf("retry tier should accept, got %v", err)
	}
	if err := q.Enqueue(queue.Item{Record: &domain.QueueRecord{}, Tier: "bogus"}); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}

// TestTieredQueue_ConcurrentEnqueueDequeue verifies every item is delivered
// exactly once while producers and workers run simultaneously.
func TestTieredQueue_ConcurrentEnqueueDequeue(t *testing.T) {
	const producers = 5
	const consumers = 4
	const itemsPerProducer = 100
	const total = producers * itemsPerProducer

	q := queue.New(total)
	deadline := time.Now().Add(5 * time.Second)

	var (
		mu       sync.Mutex
		seen     = make(map[int64]int, total)
		received atomic.Int32
	)
	var consumersDone sync.WaitGroup
	for c := 0; c < consumers; c++ {
		consumersDone.Add(1)
		go func() {
			defer consumersDone.Done()
			for received.Load() < total && time.Now().Before(deadline) {
				it, ok := q.TryDequeue()
				if !ok {
					runtime.Gosched()
					continue
				}
				mu.Lock()
				seen[it.Record.ID]++
				mu.Unlock()
				received.Add(1)
			}
		}()
	}

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for j := 0; j < itemsPerProducer; j++ {
				status := domain.StatusPending
				if j%2 == 0 {
					status = domain.StatusFailed
				}
				if err := q.Enqueue(item(int64(p*itemsPerProducer+j), status)); err != nil {
					t.Errorf("Enqueue: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()
	consumersDone.Wait()

	if len(seen) != total {
		t.Fatalf("received %d/%d distinct items", len(seen), total)
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("item %d delivered %d times", id, n)
		}
	}
}

func TestTieredQueue_Depths(t *testing.T) {
	q := queue.New(10)

	_ = q.Enqueue(item(1, domain.StatusQueued))
	_ = q.Enqueue(item(2, domain.StatusPending))
	_ = q.Enqueue(item(3, domain.StatusFailed))

	first, retry := q.Depths()
	if first != 2 || retry != 1 {
		t.Fatalf("unexpected depths: first=%d retry=%d", first, retry)
	}
}
