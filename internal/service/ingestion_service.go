package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/config"
	"github.com/notifyhub/mailqueue/internal/domain"
	"github.com/notifyhub/mailqueue/internal/idempotency"
	"github.com/notifyhub/mailqueue/internal/recurrence"
	"github.com/notifyhub/mailqueue/internal/repository"
)

// IngestHooks carries the metric callbacks injected by main. Nil hooks are no-ops.
type IngestHooks struct {
	OnIngested func(n int)
	OnRejected func(n int)
}

// Request carries the request-scoped values an ingestion call may use.
type Request struct {
	IdempotencyKey string
	CorrelationID  string
}

// IngestionService validates submissions and appends them to the store.
// It never sends mail; delivery belongs to the dispatch cycle.
type IngestionService struct {
	repo     repository.RecordRepository
	claimer  idempotency.Claimer
	loc      *time.Location
	maxBatch int
	now      func() time.Time
	logger   *zap.Logger
	hooks    IngestHooks
}

func NewIngestionService(
	cfg *config.Config,
	repo repository.RecordRepository,
	claimer idempotency.Claimer,
	logger *zap.Logger,
	hooks IngestHooks,
) *IngestionService {
	if claimer == nil {
		claimer = idempotency.NopClaimer{}
	}
	if hooks.OnIngested == nil {
		hooks.OnIngested = func(int) {}
	}
	if hooks.OnRejected == nil {
		hooks.OnRejected = func(int) {}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &IngestionService{
		repo:     repo,
		claimer:  claimer,
		loc:      loc,
		maxBatch: cfg.MaxBatchSize,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
		hooks:    hooks,
	}
}

// WithClock replaces the clock used for createdAt and recurrence checks.
func (s *IngestionService) WithClock(now func() time.Time) *IngestionService {
	s.now = now
	return s
}

// IngestOne persists a single submission with status QUEUED.
// The bool result reports a repeated idempotency key; nothing is appended then.
func (s *IngestionService) IngestOne(ctx context.Context, sub domain.Submission, req Request) (*domain.IngestResult, bool, error) {
	return s.ingest(ctx, []domain.Submission{sub}, -1, domain.StatusQueued, req)
}

// IngestBatch persists every valid row with status PENDING. Invalid rows and
// rows the store rejects are reported in the result without affecting siblings.
func (s *IngestionService) IngestBatch(ctx context.Context, rows []domain.Submission, req Request) (*domain.IngestResult, bool, error) {
	if len(rows) == 0 {
		return nil, false, domain.ErrBatchEmpty
	}
	if s.maxBatch > 0 && len(rows) > s.maxBatch {
		return nil, false, fmt.Errorf("%w: %d rows, limit %d", domain.ErrBatchTooLarge, len(rows), s.maxBatch)
	}
	return s.ingest(ctx, rows, 0, domain.StatusPending, req)
}

// Get returns one persisted record.
func (s *IngestionService) Get(ctx context.Context, id int64) (*domain.QueueRecord, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidID
	}
	return s.repo.GetByID(ctx, id)
}

// ingest appends subs in order. firstRow is the index reported for subs[0],
// or -1 for a single submission.
func (s *IngestionService) ingest(
	ctx context.Context,
	subs []domain.Submission,
	firstRow int,
	status domain.Status,
	req Request,
) (*domain.IngestResult, bool, error) {
	log := s.logger
	if req.CorrelationID != "" {
		log = log.With(zap.String("correlation_id", req.CorrelationID))
	}

	result := &domain.IngestResult{Errors: []string{}, Records: []domain.RecordSummary{}}

	claimed := false
	if req.IdempotencyKey != "" {
		ok, err := s.claimer.Claim(ctx, req.IdempotencyKey)
		switch {
		case err != nil:
			// Fail open: a redis outage must not block intake.
			log.Warn("idempotency claim failed, accepting request", zap.Error(err))
		case !ok:
			log.Info("duplicate ingestion request", zap.String("idempotency_key", req.IdempotencyKey))
			return result, true, nil
		default:
			claimed = true
		}
	}

	now := s.now()
	rejected := 0
	for i := range subs {
		sub := &subs[i]
		row := firstRow
		if firstRow >= 0 {
			row = firstRow + i
		}

		if err := sub.Validate(row); err != nil {
			result.Errors = append(result.Errors, err.Error())
			rejected++
			continue
		}

		rec := sub.ToRecord(now, status)
		if req.CorrelationID != "" {
			if rec.Meta == nil {
				rec.Meta = map[string]string{}
			}
			if _, ok := rec.Meta["correlation_id"]; !ok {
				rec.Meta["correlation_id"] = req.CorrelationID
			}
		}

		id, err := s.repo.Append(ctx, rec)
		if err != nil {
			serr := &domain.StoreError{Op: "append", Err: err}
			log.Error("failed to persist submission", zap.Int("row", row), zap.Error(err))
			msg := serr.Error()
			if row >= 0 {
				msg = fmt.Sprintf("row %d: %s", row, msg)
			}
			result.Errors = append(result.Errors, msg)
			rejected++
			continue
		}

		result.Processed++
		result.Records = append(result.Records, domain.RecordSummary{
			ID:              id,
			To:              rec.To,
			Subject:         rec.Subject,
			RepeatScheduled: recurrence.IsRecurring(rec.Schedule, now, s.loc),
		})
	}

	if claimed && result.Processed == 0 {
		if err := s.claimer.Release(context.WithoutCancel(ctx), req.IdempotencyKey); err != nil {
			log.Warn("failed to release idempotency key", zap.Error(err))
		}
	}

	if result.Processed > 0 {
		s.hooks.OnIngested(result.Processed)
	}
	if rejected > 0 {
		s.hooks.OnRejected(rejected)
	}
	log.Info("ingestion finished",
		zap.Int("submitted", len(subs)),
		zap.Int("processed", result.Processed),
		zap.Int("rejected", rejected),
	)
	return result, false, nil
}
