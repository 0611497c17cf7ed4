package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Runner executes one dispatch cycle. *Cycle satisfies it.
type Runner interface {
	Run(ctx context.Context) (*Report, error)
}

// SchedulerWorker triggers a dispatch cycle every interval.
//
// Due-ness is re-evaluated on every tick, so a missed tick is simply absorbed
// by the next one; ticks never queue up behind a slow cycle.
type SchedulerWorker struct {
	cycle    Runner
	interval time.Duration
	logger   *zap.Logger
}

func NewSchedulerWorker(cycle Runner, interval time.Duration, logger *zap.Logger) *SchedulerWorker {
	return &SchedulerWorker{cycle: cycle, interval: interval, logger: logger}
}

// Run ticks once immediately and then every interval until ctx is cancelled.
func (sw *SchedulerWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	sw.logger.Info("scheduler worker started", zap.Duration("interval", sw.interval))
	sw.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("scheduler worker stopping")
			return
		case <-ticker.C:
			sw.tick(ctx)
		}
	}
}

func (sw *SchedulerWorker) tick(ctx context.Context) {
	if _, err := sw.cycle.Run(ctx); err != nil && ctx.Err() == nil {
		sw.logger.Error("dispatch cycle failed", zap.Error(err))
	}
}
