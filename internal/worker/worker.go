package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/domain"
	"github.com/notifyhub/mailqueue/internal/guard"
	"github.com/notifyhub/mailqueue/internal/queue"
	"github.com/notifyhub/mailqueue/internal/repository"
	"github.com/notifyhub/mailqueue/internal/transport"
)

type resultKind int

const (
	resultSent resultKind = iota
	resultFailed
	resultConflict
	resultStoreError
	resultCancelled
)

// result is the outcome of processing one queue item.
type result struct {
	recordID int64
	kind     resultKind
	// invoked is true when the transport was called, whatever happened after.
	invoked bool
	err     error
}

// Worker drains the dispatch queue of one cycle. For each record it claims the
// occurrence, sends through the transport and records the outcome, using the
// guard's conditional writes for both store updates.
type Worker struct {
	id      int
	q       *queue.TieredQueue
	repo    repository.RecordRepository
	tr      transport.Transport
	guard   *guard.Guard
	now     func() time.Time
	logger  *zap.Logger
	hooks   MetricHooks
	collect func(result)
}

// Run processes items until the queue is empty or ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for ctx.Err() == nil {
		item, ok := w.q.TryDequeue()
		if !ok {
			return
		}
		w.collect(w.process(ctx, item))
	}
}

func (w *Worker) process(ctx context.Context, item queue.Item) result {
	r := item.Record
	log := w.logger.With(
		zap.Int64("record_id", r.ID),
		zap.String("tier", string(item.Tier)),
	)

	expect, fields := w.guard.Claim(r, w.now())
	ok, err := w.repo.UpdateIfStatus(ctx, r.ID, expect, fields)
	if err != nil {
		if ctx.Err() != nil {
			return result{recordID: r.ID, kind: resultCancelled}
		}
		log.Error("failed to claim record", zap.Error(err))
		return result{recordID: r.ID, kind: resultStoreError, err: &domain.StoreError{Op: "claim", Err: err}}
	}
	if !ok {
		// Another cycle claimed or resolved it after our snapshot.
		log.Debug("claim lost to a concurrent cycle")
		w.hooks.OnConflict()
		return result{recordID: r.ID, kind: resultConflict}
	}

	if ctx.Err() != nil {
		return w.release(ctx, r, log)
	}
	start := time.Now()
	sendErr := w.tr.Send(ctx, transport.FromRecord(r))
	elapsed := time.Since(start)
	if errors.Is(sendErr, transport.ErrAborted) {
		return w.release(ctx, r, log)
	}

	// Shutdown must not lose the outcome of a send that already happened.
	expect, fields = w.guard.Resolve(r, w.now(), sendErr)
	ok, err = w.repo.UpdateIfStatus(context.WithoutCancel(ctx), r.ID, expect, fields)
	if err != nil {
		log.Error("failed to record dispatch outcome",
			zap.Error(err),
			zap.NamedError("send_error", sendErr),
		)
		return result{recordID: r.ID, kind: resultStoreError, invoked: true, err: &domain.StoreError{Op: "resolve", Err: err}}
	}
	if !ok {
		log.Warn("claim expired before the outcome was recorded", zap.Duration("latency", elapsed))
		w.hooks.OnConflict()
		return result{recordID: r.ID, kind: resultConflict, invoked: true}
	}

	if sendErr != nil {
		log.Warn("transport send failed",
			zap.Error(sendErr),
			zap.Int("attempts", fields.Attempts),
		)
		w.hooks.OnFailed(elapsed)
		return result{recordID: r.ID, kind: resultFailed, invoked: true, err: sendErr}
	}

	w.hooks.OnSent(elapsed)
	log.Info("record sent", zap.Duration("latency", elapsed), zap.Int("attempts", fields.Attempts))
	return result{recordID: r.ID, kind: resultSent, invoked: true}
}

// release gives back the claim on r after a cancellation stopped the send
// before delivery. A failed release is left to the claim TTL.
func (w *Worker) release(ctx context.Context, r *domain.QueueRecord, log *zap.Logger) result {
	expect, fields := w.guard.Release(r)
	ok, err := w.repo.UpdateIfStatus(context.WithoutCancel(ctx), r.ID, expect, fields)
	switch {
	case err != nil:
		log.Warn("failed to release claim, it expires after the claim TTL", zap.Error(err))
	case !ok:
		log.Debug("claim taken over before release")
	default:
		log.Info("claim released, send cancelled before delivery")
	}
	return result{recordID: r.ID, kind: resultCancelled}
}
