package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/guard"
	"github.com/notifyhub/mailqueue/internal/queue"
	"github.com/notifyhub/mailqueue/internal/repository"
	"github.com/notifyhub/mailqueue/internal/transport"
)

// MetricHooks carries the metric callback functions injected by main.
// Any nil hook is replaced with a no-op.
type MetricHooks struct {
	OnSent       func(latency time.Duration)
	OnFailed     func(latency time.Duration)
	OnSkipped    func(reason string)
	OnConflict   func()
	OnCycle      func(elapsed time.Duration)
	OnQueueDepth func(first, retry int)
}

func (h MetricHooks) withDefaults() MetricHooks {
	if h.OnSent == nil {
		h.OnSent = func(time.Duration) {}
	}
	if h.OnFailed == nil {
		h.OnFailed = func(time.Duration) {}
	}
	if h.OnSkipped == nil {
		h.OnSkipped = func(string) {}
	}
	if h.OnConflict == nil {
		h.OnConflict = func() {}
	}
	if h.OnCycle == nil {
		h.OnCycle = func(time.Duration) {}
	}
	if h.OnQueueDepth == nil {
		h.OnQueueDepth = func(int, int) {}
	}
	return h
}

// Pool runs a fixed number of workers over one cycle's queue.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool creates size identical workers sharing q. collect receives every
// result and must be safe for concurrent use.
func NewPool(
	size int,
	q *queue.TieredQueue,
	repo repository.RecordRepository,
	tr transport.Transport,
	g *guard.Guard,
	now func() time.Time,
	logger *zap.Logger,
	hooks MetricHooks,
	collect func(result),
) *Pool {
	workers := make([]*Worker, size)
	for i := range workers {
		workers[i] = &Worker{
			id:      i,
			q:       q,
			repo:    repo,
			tr:      tr,
			guard:   g,
			now:     now,
			logger:  logger.With(zap.Int("worker_id", i)),
			hooks:   hooks,
			collect: collect,
		}
	}
	return &Pool{workers: workers}
}

// Start launches all workers as goroutines. Each returns once the queue is
// empty or ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
