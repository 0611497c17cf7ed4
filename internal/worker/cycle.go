package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/config"
	"github.com/notifyhub/mailqueue/internal/domain"
	"github.com/notifyhub/mailqueue/internal/guard"
	"github.com/notifyhub/mailqueue/internal/queue"
	"github.com/notifyhub/mailqueue/internal/repository"
	"github.com/notifyhub/mailqueue/internal/transport"
)

// Skip reasons added by the cycle on top of the guard's.
const (
	ReasonQueueFull = "queue_full"
	ReasonCancelled = "cancelled"
)

// Report summarises one dispatch cycle.
type Report struct {
	StartedAt time.Time `json:"startedAt"`
	ElapsedMS int64     `json:"elapsedMs"`
	Listed    int       `json:"listed"`
	Due       int       `json:"due"`
	// Processed counts records the transport was invoked for.
	Processed int            `json:"processed"`
	Sent      int            `json:"sent"`
	Failed    int            `json:"failed"`
	Conflicts int            `json:"conflicts"`
	Skipped   map[string]int `json:"skipped"`
	Errors    []string       `json:"errors"`
}

func newReport(startedAt time.Time) *Report {
	return &Report{StartedAt: startedAt, Skipped: map[string]int{}, Errors: []string{}}
}

func (r *Report) clone() *Report {
	c := *r
	c.Skipped = make(map[string]int, len(r.Skipped))
	for k, v := range r.Skipped {
		c.Skipped[k] = v
	}
	c.Errors = append([]string{}, r.Errors...)
	return &c
}

// Cycle is one execution of the dispatch loop: list eligible records, keep the
// due ones, and dispatch them through a bounded worker pool.
//
// Runs on the same Cycle are serialised. Separate Cycles, in this process or
// another, coordinate only through the store's conditional writes.
type Cycle struct {
	repo    repository.RecordRepository
	tr      transport.Transport
	guard   *guard.Guard
	q       *queue.TieredQueue
	workers int
	now     func() time.Time
	logger  *zap.Logger
	hooks   MetricHooks

	runMu  sync.Mutex
	lastMu sync.RWMutex
	last   *Report
}

// NewCycle builds a Cycle from the dispatch settings in cfg.
func NewCycle(
	cfg *config.Config,
	repo repository.RecordRepository,
	tr transport.Transport,
	logger *zap.Logger,
	hooks MetricHooks,
) *Cycle {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	workers := cfg.DispatchWorkers
	if workers < 1 {
		workers = 1
	}
	return &Cycle{
		repo:    repo,
		tr:      tr,
		guard:   guard.New(loc, cfg.ClaimTTL),
		q:       queue.New(cfg.DispatchQueueSize),
		workers: workers,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
		hooks:   hooks.withDefaults(),
	}
}

// WithClock replaces the clock used for due-ness and attempt timestamps.
func (c *Cycle) WithClock(now func() time.Time) *Cycle {
	c.now = now
	return c
}

// Run executes one cycle. Per-record failures are collected in the report;
// the returned error is non-nil only when the eligible records could not be listed.
func (c *Cycle) Run(ctx context.Context) (*Report, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	began := time.Now()
	now := c.now()
	report := newReport(now)
	defer func() {
		report.ElapsedMS = time.Since(began).Milliseconds()
		c.hooks.OnCycle(time.Since(began))
		c.setLast(report)
	}()

	records, err := c.repo.ListDispatchable(ctx)
	if err != nil {
		serr := &domain.StoreError{Op: "list", Err: err}
		report.Errors = append(report.Errors, serr.Error())
		c.logger.Error("dispatch cycle could not list records", zap.Error(err))
		return report, serr
	}
	report.Listed = len(records)

	for _, r := range records {
		d := c.guard.Evaluate(r, now)
		if !d.Due {
			c.skip(report, d.Reason)
			continue
		}
		if err := c.q.Enqueue(queue.Item{Record: r, Tier: queue.TierFor(r)}); err != nil {
			c.skip(report, ReasonQueueFull)
			continue
		}
		report.Due++
	}
	c.hooks.OnQueueDepth(c.q.Depths())

	var mu sync.Mutex
	collect := func(res result) {
		mu.Lock()
		defer mu.Unlock()
		c.apply(report, res)
	}

	pool := NewPool(c.workers, c.q, c.repo, c.tr, c.guard, c.now, c.logger, c.hooks, collect)
	pool.Start(ctx)
	pool.Wait()

	// Items left behind by a cancelled run stay eligible for the next cycle.
	for {
		if _, ok := c.q.TryDequeue(); !ok {
			break
		}
		c.skip(report, ReasonCancelled)
	}
	c.hooks.OnQueueDepth(c.q.Depths())

	c.logger.Info("dispatch cycle finished",
		zap.Int("listed", report.Listed),
		zap.Int("due", report.Due),
		zap.Int("processed", report.Processed),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("conflicts", report.Conflicts),
		zap.Any("skipped", report.Skipped),
		zap.Duration("elapsed", time.Since(began)),
	)
	return report, nil
}

func (c *Cycle) skip(report *Report, reason string) {
	report.Skipped[reason]++
	c.hooks.OnSkipped(reason)
}

func (c *Cycle) apply(report *Report, res result) {
	if res.invoked {
		report.Processed++
	}
	switch res.kind {
	case resultSent:
		report.Sent++
	case resultFailed:
		report.Failed++
	case resultConflict:
		report.Conflicts++
	case resultCancelled:
		c.skip(report, ReasonCancelled)
	}
	if res.err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("record %d: %v", res.recordID, res.err))
	}
}

func (c *Cycle) setLast(r *Report) {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	c.last = r.clone()
}

// LastReport returns a copy of the most recent report, or nil before the first run.
func (c *Cycle) LastReport() *Report {
	c.lastMu.RLock()
	defer c.lastMu.RUnlock()
	if c.last == nil {
		return nil
	}
	return c.last.clone()
}

// Depths reports the live work queue depth per tier.
func (c *Cycle) Depths() (first, retry int) {
	return c.q.Depths()
}
