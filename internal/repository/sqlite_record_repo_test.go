package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/notifyhub/mailqueue/internal/db"
	"github.com/notifyhub/mailqueue/internal/domain"
	"github.com/notifyhub/mailqueue/internal/repository"
)

func openSQLite(t *testing.T) repository.RecordRepository {
	t.Helper()
	conn, err := db.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return repository.NewSQLiteRecordRepository(conn)
}

func sample() *domain.QueueRecord {
	return &domain.QueueRecord{
		CreatedAt: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
		Type:      "APPROVAL",
		To:        "a@example.com",
		Cc:        "b@example.com",
		Subject:   "Weekly report",
		Body:      "<p>hello</p>",
		Schedule: domain.Schedule{
			Weekdays: domain.NewWeekdays(time.Monday, time.Wednesday),
			StopDate: "2026-12-31",
		},
		Status: domain.StatusQueued,
		Meta:   map[string]string{"source": "form"},
	}
}

// repositories returns every implementation that can run without external services.
func repositories(t *testing.T) map[string]repository.RecordRepository {
	return map[string]repository.RecordRepository{
		"mock":   repository.NewMockRecordRepository(),
		"sqlite": openSQLite(t),
	}
}

func TestRecordRepository_AppendAndGet(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := sample()

			id, err := repo.Append(ctx, rec)
			if err != nil {
				t.Fatalf("Append: %v", err)
			}
			if id == 0 || rec.ID != id {
				t.Fatalf("expected id to be assigned, got %d (record %d)", id, rec.ID)
			}

			got, err := repo.GetByID(ctx, id)
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if got.To != rec.To || got.Subject != rec.Subject || got.Body != rec.Body {
				t.Fatalf("unexpected record %#v", got)
			}
			if got.Schedule != rec.Schedule {
				t.Fatalf("expected schedule %+v, got %+v", rec.Schedule, got.Schedule)
			}
			if !got.CreatedAt.Equal(rec.CreatedAt) || got.Meta["source"] != "form" {
				t.Fatalf("unexpected createdAt/meta: %s %v", got.CreatedAt, got.Meta)
			}
			if got.LastAttemptAt != nil || got.ClaimedAt != nil {
				t.Fatal("expected no attempt state on a new record")
			}

			if _, err := repo.GetByID(ctx, id+100); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestRecordRepository_ListDispatchable(t *testing.T) {
	oneOff := func(s domain.Status) *domain.QueueRecord {
		r := sample()
		r.Status = s
		r.Schedule = domain.Schedule{}
		return r
	}
	recurring := func(s domain.Status) *domain.QueueRecord {
		r := sample()
		r.Status = s
		return r
	}
	noStopDate := func(s domain.Status) *domain.QueueRecord {
		r := sample()
		r.Status = s
		r.Schedule.StopDate = ""
		return r
	}

	tests := []struct {
		name   string
		record *domain.QueueRecord
		listed bool
	}{
		{"pending one-off", oneOff(domain.StatusPending), true},
		{"queued one-off", oneOff(domain.StatusQueued), true},
		{"failed one-off", oneOff(domain.StatusFailed), true},
		{"sent one-off", oneOff(domain.StatusSent), false},
		{"sent without stop date", noStopDate(domain.StatusSent), false},
		{"sent recurring", recurring(domain.StatusSent), true},
		{"queued recurring", recurring(domain.StatusQueued), true},
	}

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := map[int64]string{}
			for _, tc := range tests {
				id, err := repo.Append(ctx, tc.record)
				if err != nil {
					t.Fatalf("Append %s: %v", tc.name, err)
				}
				if got := tc.record.Dispatchable(); got != tc.listed {
					t.Fatalf("%s: Dispatchable() = %v, want %v", tc.name, got, tc.listed)
				}
				if tc.listed {
					want[id] = tc.name
				}
			}

			got, err := repo.ListDispatchable(ctx)
			if err != nil {
				t.Fatalf("ListDispatchable: %v", err)
			}
			if len(got) != len(want) {
				t.Fatalf("expected %d records, got %d", len(want), len(got))
			}
			for i, r := range got {
				if _, ok := want[r.ID]; !ok {
					t.Errorf("unexpected record %d (%s)", r.ID, r.Status)
				}
				if i > 0 && got[i-1].ID >= r.ID {
					t.Error("expected records ordered by id")
				}
			}
		})
	}
}

func TestRecordRepository_UpdateIfStatus(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := sample()
			id, _ := repo.Append(ctx, rec)
			now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

			ok, err := repo.UpdateIfStatus(ctx, id,
				domain.Expectation{Status: domain.StatusQueued, Attempts: 0},
				domain.DispatchFields{Status: domain.StatusQueued, Attempts: 1, ClaimedAt: &now})
			if err != nil || !ok {
				t.Fatalf("claim: ok=%v err=%v", ok, err)
			}

			// A second writer holding the stale expectation must lose.
			ok, err = repo.UpdateIfStatus(ctx, id,
				domain.Expectation{Status: domain.StatusQueued, Attempts: 0},
				domain.DispatchFields{Status: domain.StatusQueued, Attempts: 1, ClaimedAt: &now})
			if err != nil || ok {
				t.Fatalf("stale claim: expected ok=false, got ok=%v err=%v", ok, err)
			}

			ok, err = repo.UpdateIfStatus(ctx, id,
				domain.Expectation{Status: domain.StatusQueued, Attempts: 1},
				domain.DispatchFields{Status: domain.StatusSent, Attempts: 1, LastAttemptAt: &now})
			if err != nil || !ok {
				t.Fatalf("resolve: ok=%v err=%v", ok, err)
			}

			got, _ := repo.GetByID(ctx, id)
			if got.Status != domain.StatusSent || got.Attempts != 1 {
				t.Fatalf("unexpected final state %s/%d", got.Status, got.Attempts)
			}
			if got.ClaimedAt != nil {
				t.Fatal("expected claim to be cleared")
			}
			if got.LastAttemptAt == nil || !got.LastAttemptAt.Equal(now) {
				t.Fatalf("unexpected lastAttemptAt %v", got.LastAttemptAt)
			}

			ok, err = repo.UpdateIfStatus(ctx, id+100, domain.Expectation{Status: domain.StatusSent, Attempts: 1}, domain.DispatchFields{})
			if err != nil || ok {
				t.Fatalf("missing record: expected ok=false, got ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestRecordRepository_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, _ := repo.Append(ctx, sample())
			now := time.Now().UTC()

			const racers = 8
			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := repo.UpdateIfStatus(ctx, id,
						domain.Expectation{Status: domain.StatusQueued, Attempts: 0},
						domain.DispatchFields{Status: domain.StatusQueued, Attempts: 1, ClaimedAt: &now})
					if err != nil {
						t.Errorf("UpdateIfStatus: %v", err)
						return
					}
					if ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()

			if wins.Load() != 1 {
				t.Fatalf("expected exactly one winning claim, got %d", wins.Load())
			}
		})
	}
}
