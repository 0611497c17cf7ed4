package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/mailqueue/internal/domain"
)

type pgRecordRepository struct {
	pool *pgxpool.Pool
}

// NewPgRecordRepository returns a RecordRepository backed by PostgreSQL.
func NewPgRecordRepository(pool *pgxpool.Pool) RecordRepository {
	return &pgRecordRepository{pool: pool}
}

const recordColumns = `id, created_at, type, from_addr, to_addr, cc_addr, subject, body,
	       weekdays, stop_date, status, attempts, last_attempt_at, claimed_at,
	       last_error, meta`

func (r *pgRecordRepository) Append(ctx context.Context, rec *domain.QueueRecord) (int64, error) {
	meta, err := encodeMeta(rec.Meta)
	if err != nil {
		return 0, err
	}

	var id int64
	err = r.pool.QueryRow(ctx, `
		INSERT INTO queue_records
			(created_at, type, from_addr, to_addr, cc_addr, subject, body,
			 weekdays, stop_date, status, attempts, last_attempt_at, claimed_at,
			 last_error, meta)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15::jsonb)
		RETURNING id`,
		rec.CreatedAt, rec.Type, rec.From, rec.To, rec.Cc, rec.Subject, rec.Body,
		int16(rec.Schedule.Weekdays), rec.Schedule.StopDate, rec.Status, rec.Attempts,
		rec.LastAttemptAt, rec.ClaimedAt, rec.LastError, meta,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert queue record: %w", err)
	}
	rec.ID = id
	return id, nil
}

func (r *pgRecordRepository) GetByID(ctx context.Context, id int64) (*domain.QueueRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM queue_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

func (r *pgRecordRepository) ListDispatchable(ctx context.Context) ([]*domain.QueueRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM queue_records
		WHERE status = ANY($1)
		   OR (status = $2 AND (weekdays & 127) <> 0 AND TRIM(stop_date) <> '')
		ORDER BY id ASC`, openStatusNames(), string(domain.StatusSent))
	if err != nil {
		return nil, fmt.Errorf("list queue records: %w", err)
	}
	defer rows.Close()

	var result []*domain.QueueRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *pgRecordRepository) UpdateIfStatus(ctx context.Context, id int64, expect domain.Expectation, f domain.DispatchFields) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE queue_records
		SET status = $1, attempts = $2, last_attempt_at = $3, claimed_at = $4, last_error = $5
		WHERE id = $6 AND status = $7 AND attempts = $8`,
		f.Status, f.Attempts, f.LastAttemptAt, f.ClaimedAt, f.LastError,
		id, expect.Status, expect.Attempts,
	)
	if err != nil {
		return false, fmt.Errorf("conditional update queue record %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ---- helpers ----

// scanRecord reads a single record row from any pgx row type.
// openStatusNames lists the statuses that are dispatchable whatever the schedule.
func openStatusNames() []string {
	return []string{string(domain.StatusPending), string(domain.StatusQueued), string(domain.StatusFailed)}
}

func scanRecord(row pgx.Row) (*domain.QueueRecord, error) {
	var (
		rec      domain.QueueRecord
		weekdays int16
		meta     []byte
	)
	err := row.Scan(
		&rec.ID, &rec.CreatedAt, &rec.Type, &rec.From, &rec.To, &rec.Cc,
		&rec.Subject, &rec.Body, &weekdays, &rec.Schedule.StopDate, &rec.Status,
		&rec.Attempts, &rec.LastAttemptAt, &rec.ClaimedAt, &rec.LastError, &meta,
	)
	if err != nil {
		return nil, err
	}
	rec.Schedule.Weekdays = domain.Weekdays(weekdays)
	if rec.Meta, err = decodeMeta(meta); err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.LastAttemptAt = utcPtr(rec.LastAttemptAt)
	rec.ClaimedAt = utcPtr(rec.ClaimedAt)
	return &rec, nil
}

func encodeMeta(meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal meta: %w", err)
	}
	return string(b), nil
}

func decodeMeta(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
