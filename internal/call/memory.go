package call

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	err     error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) FindByCallID(_ context.Context, callID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	record, ok := m.records[callID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, callID)
	}

	return record.Clone(), nil
}

func (m *MemoryStore) Create(_ context.Context, record *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	if _, ok := m.records[record.CallID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, record.CallID)
	}

	m.records[record.CallID] = record.Clone()

	return nil
}

func (m *MemoryStore) Update(_ context.Context, record *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	stored, ok := m.records[record.CallID]
	if !ok || stored.Version != record.Version {
		return fmt.Errorf("%w: %s", ErrVersionConflict, record.CallID)
	}

	record.Version++
	m.records[record.CallID] = record.Clone()

	return nil
}

// Records returns copies of every stored record.
func (m *MemoryStore) Records() []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]*Record, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, record.Clone())
	}

	return records
}

// SetError makes every subsequent call fail with err. Pass nil to clear.
func (m *MemoryStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.err = err
}
