package repository

import (
	"context"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// RecordRepository is the durable queue record store.
// The pgx implementation is in pg_record_repo.go, the SQLite one in sqlite_record_repo.go.
// Tests use a hand-written mock (mock_record_repo.go).
//
// UpdateIfStatus is the only write a dispatch cycle performs. It must apply
// fields atomically and only when the stored status and attempts still equal
// expect, reporting whether the write happened. Concurrent cycles, possibly in
// different processes, rely on it instead of in-process locking.
type RecordRepository interface {
	Append(ctx context.Context, r *domain.QueueRecord) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.QueueRecord, error)
	// ListDispatchable returns the records QueueRecord.Dispatchable accepts,
	// ordered by id. Terminal one-off records are filtered by the store.
	ListDispatchable(ctx context.Context) ([]*domain.QueueRecord, error)
	UpdateIfStatus(ctx context.Context, id int64, expect domain.Expectation, fields domain.DispatchFields) (bool, error)
}
