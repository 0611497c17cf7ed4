package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/notifyhub/mailqueue/internal/domain"
)

type sqliteRecordRepository struct {
	db *sql.DB
}

// NewSQLiteRecordRepository returns a RecordRepository backed by a SQLite
// database opened with db.OpenSQLite. Intended for single-node deployments.
func NewSQLiteRecordRepository(db *sql.DB) RecordRepository {
	return &sqliteRecordRepository{db: db}
}

func (r *sqliteRecordRepository) Append(ctx context.Context, rec *domain.QueueRecord) (int64, error) {
	meta, err := encodeMeta(rec.Meta)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO queue_records
			(created_at, type, from_addr, to_addr, cc_addr, subject, body,
			 weekdays, stop_date, status, attempts, last_attempt_at, claimed_at,
			 last_error, meta)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		formatTime(rec.CreatedAt), rec.Type, rec.From, rec.To, rec.Cc, rec.Subject, rec.Body,
		int(rec.Schedule.Weekdays), rec.Schedule.StopDate, string(rec.Status), rec.Attempts,
		nullableTime(rec.LastAttemptAt), nullableTime(rec.ClaimedAt), rec.LastError, meta,
	)
	if err != nil {
		return 0, fmt.Errorf("insert queue record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted id: %w", err)
	}
	rec.ID = id
	return id, nil
}

func (r *sqliteRecordRepository) GetByID(ctx context.Context, id int64) (*domain.QueueRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM queue_records WHERE id = ?`, id)
	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

func (r *sqliteRecordRepository) ListDispatchable(ctx context.Context) ([]*domain.QueueRecord, error) {
	open := openStatusNames()
	args := make([]any, 0, len(open)+1)
	for _, s := range open {
		args = append(args, s)
	}
	args = append(args, string(domain.StatusSent))

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM queue_records
		WHERE status IN (`+makePlaceholders(len(open))+`)
		   OR (status = ? AND (weekdays & 127) <> 0 AND TRIM(stop_date) <> '')
		ORDER BY id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue records: %w", err)
	}
	defer rows.Close()

	var result []*domain.QueueRecord
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *sqliteRecordRepository) UpdateIfStatus(ctx context.Context, id int64, expect domain.Expectation, f domain.DispatchFields) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE queue_records
		SET status = ?, attempts = ?, last_attempt_at = ?, claimed_at = ?, last_error = ?
		WHERE id = ? AND status = ? AND attempts = ?`,
		string(f.Status), f.Attempts, nullableTime(f.LastAttemptAt), nullableTime(f.ClaimedAt), f.LastError,
		id, string(expect.Status), expect.Attempts,
	)
	if err != nil {
		return false, fmt.Errorf("conditional update queue record %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func scanSQLiteRecord(scanner interface{ Scan(dest ...any) error }) (*domain.QueueRecord, error) {
	var (
		rec           domain.QueueRecord
		createdAt     string
		weekdays      int
		status        string
		lastAttemptAt sql.NullString
		claimedAt     sql.NullString
		meta          string
	)
	err := scanner.Scan(
		&rec.ID, &createdAt, &rec.Type, &rec.From, &rec.To, &rec.Cc,
		&rec.Subject, &rec.Body, &weekdays, &rec.Schedule.StopDate, &status,
		&rec.Attempts, &lastAttemptAt, &claimedAt, &rec.LastError, &meta,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = domain.Status(status)
	rec.Schedule.Weekdays = domain.Weekdays(weekdays)
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.LastAttemptAt, err = parseNullTime(lastAttemptAt); err != nil {
		return nil, fmt.Errorf("parse last_attempt_at: %w", err)
	}
	if rec.ClaimedAt, err = parseNullTime(claimedAt); err != nil {
		return nil, fmt.Errorf("parse claimed_at: %w", err)
	}
	if rec.Meta, err = decodeMeta([]byte(meta)); err != nil {
		return nil, err
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
