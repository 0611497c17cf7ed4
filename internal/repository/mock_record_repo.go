package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// MockRecordRepository is a hand-written, in-memory implementation of
// RecordRepository used in unit tests. Conditional updates are serialised by
// a mutex, which gives the same compare-and-swap semantics as the SQL stores.
type MockRecordRepository struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]*domain.QueueRecord

	// Optional error overrides, set in tests to simulate failure paths.
	AppendErr error
	ListErr   error
	UpdateErr error

	// AppendCalls and UpdateCalls count invocations, successful or not.
	AppendCalls int
	UpdateCalls int
}

func NewMockRecordRepository() *MockRecordRepository {
	return &MockRecordRepository{records: make(map[int64]*domain.QueueRecord)}
}

func (m *MockRecordRepository) Append(_ context.Context, r *domain.QueueRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendCalls++
	if m.AppendErr != nil {
		return 0, m.AppendErr
	}
	m.nextID++
	r.ID = m.nextID
	m.records[r.ID] = r.Clone()
	return r.ID, nil
}

func (m *MockRecordRepository) GetByID(_ context.Context, id int64) (*domain.QueueRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MockRecordRepository) ListDispatchable(_ context.Context) ([]*domain.QueueRecord, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.QueueRecord, 0, len(m.records))
	for _, r := range m.records {
		if r.Dispatchable() {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockRecordRepository) UpdateIfStatus(_ context.Context, id int64, expect domain.Expectation, fields domain.DispatchFields) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.UpdateErr != nil {
		return false, m.UpdateErr
	}
	r, ok := m.records[id]
	if !ok {
		return false, nil
	}
	if r.Status != expect.Status || r.Attempts != expect.Attempts {
		return false, nil
	}
	r.Apply(fields)
	return true, nil
}

// Put stores r as-is, keeping its ID. Tests use it to seed arbitrary states.
func (m *MockRecordRepository) Put(r *domain.QueueRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		m.nextID++
		r.ID = m.nextID
	} else if r.ID > m.nextID {
		m.nextID = r.ID
	}
	m.records[r.ID] = r.Clone()
}

// Len returns the number of stored records.
func (m *MockRecordRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// compile-time check that MockRecordRepository implements RecordRepository
var _ RecordRepository = (*MockRecordRepository)(nil)
