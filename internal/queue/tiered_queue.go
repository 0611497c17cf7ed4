package queue

import (
	"fmt"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// TieredQueue holds the due records of a cycle in two buffered channels.
// Workers always drain first attempts before retries so a backlog of failing
// records cannot starve fresh mail.
type TieredQueue struct {
	first chan Item
	retry chan Item
}

// New creates a TieredQueue where each tier holds up to size items.
func New(size int) *TieredQueue {
	if size < 1 {
		size = 1
	}
	return &TieredQueue{
		first: make(chan Item, size),
		retry: make(chan Item, size),
	}
}

// Enqueue places an item on its tier without blocking.
// ErrQueueFull is returned when that tier is at capacity.
func (q *TieredQueue) Enqueue(item Item) error {
	var ch chan Item
	switch item.Tier {
	case TierFirst:
		ch = q.first
	case TierRetry:
		ch = q.retry
	default:
		return fmt.Errorf("unknown tier %q", item.Tier)
	}
	select {
	case ch <- item:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// TryDequeue returns the next item without blocking, preferring first attempts.
// ok is false when both tiers are empty.
func (q *TieredQueue) TryDequeue() (Item, bool) {
	select {
	case item := <-q.first:
		return item, true
	default:
	}
	select {
	case item := <-q.retry:
		return item, true
	default:
		return Item{}, false
	}
}

// Depths returns the number of items waiting in each tier.
func (q *TieredQueue) Depths() (first, retry int) {
	return len(q.first), len(q.retry)
}
