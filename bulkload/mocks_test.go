package bulkload

import (
	"context"
	"io"
	"sync"
)

// --- Mocks ---

type MockRepo struct {
	InsertBatchFunc    func(ctx context.Context, b *Batch) error
	DisableTriggerFunc func(ctx context.Context, t Trigger) error
	EnableTriggerFunc  func(ctx context.Context, t Trigger) error

	mu    sync.Mutex
	calls []string
}

func (m *MockRepo) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *MockRepo) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockRepo) InsertBatch(ctx context.Context, b *Batch) error {
	m.record("insert " + b.Table)
	if m.InsertBatchFunc != nil {
		return m.InsertBatchFunc(ctx, b)
	}
	return nil
}

func (m *MockRepo) DisableTrigger(ctx context.Context, t Trigger) error {
	m.record("disable " + t.Name)
	if m.DisableTriggerFunc != nil {
		return m.DisableTriggerFunc(ctx, t)
	}
	return nil
}

func (m *MockRepo) EnableTrigger(ctx context.Context, t Trigger) error {
	m.record("enable " + t.Name)
	if m.EnableTriggerFunc != nil {
		return m.EnableTriggerFunc(ctx, t)
	}
	return nil
}

// pingingRepo adds Pinger and TableChecker to MockRepo.
type pingingRepo struct {
	*MockRepo
	PingFunc        func(ctx context.Context) error
	TableExistsFunc func(ctx context.Context, table string) (bool, error)
}

func (r *pingingRepo) Ping(ctx context.Context) error {
	if r.PingFunc != nil {
		return r.PingFunc(ctx)
	}
	return nil
}

func (r *pingingRepo) TableExists(ctx context.Context, table string) (bool, error) {
	if r.TableExistsFunc != nil {
		return r.TableExistsFunc(ctx, table)
	}
	return true, nil
}

type MockSource struct {
	ValidateFunc func(ctx context.Context) error
	NextFunc     func(ctx context.Context) (interface{}, error)
	ConvertFunc  func(rawRow interface{}) ([]interface{}, error)
}

func (m *MockSource) Validate(ctx context.Context) error {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx)
	}
	return nil
}

func (m *MockSource) Next(ctx context.Context) (interface{}, error) {
	if m.NextFunc != nil {
		return m.NextFunc(ctx)
	}
	return nil, io.EOF
}

func (m *MockSource) Convert(rawRow interface{}) ([]interface{}, error) {
	if m.ConvertFunc != nil {
		return m.ConvertFunc(rawRow)
	}
	return []interface{}{rawRow}, nil
}

// intSource yields 1..n as single-column rows. Validate rewinds it.
func intSource(n int) *MockSource {
	i := 0
	return &MockSource{
		ValidateFunc: func(ctx context.Context) error {
			i = 0
			return nil
		},
		NextFunc: func(ctx context.Context) (interface{}, error) {
			if i >= n {
				return nil, io.EOF
			}
			i++
			return i, nil
		},
	}
}

// memStore is an in-memory repository that keeps every committed row per table.
type memStore struct {
	MockRepo
	tables map[string][][]interface{}
}

func newMemStore() *memStore {
	s := &memStore{tables: map[string][][]interface{}{}}
	s.InsertBatchFunc = func(ctx context.Context, b *Batch) error {
		s.tables[b.Table] = append(s.tables[b.Table], b.Rows...)
		return nil
	}
	return s
}

func (s *memStore) count(table string) int { return len(s.tables[table]) }

// memCheckpoints is an in-memory Checkpointer.
type memCheckpoints map[string]int

func (m memCheckpoints) Load(key string) (int, error)    { return m[key], nil }
func (m memCheckpoints) Save(key string, rows int) error { m[key] = rows; return nil }
func (m memCheckpoints) Clear(key string) error          { delete(m, key); return nil }
