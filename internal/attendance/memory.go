package attendance

import (
	"context"
	"sync"

	"faceattend/internal/recognition"
)

// MemoryStore is a process-local RecordStore for development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Get(ctx context.Context, id recognition.Identity) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id.Key()]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Upsert(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rec.Identity().Key()
	rec.Version = m.records[key].Version + 1
	m.records[key] = rec
	return nil
}

func (m *MemoryStore) PutIfMatch(ctx context.Context, expected int64, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rec.Identity().Key()
	stored, ok := m.records[key]
	switch {
	case expected == 0 && ok:
		return ErrConflict
	case expected != 0 && (!ok || stored.Version != expected):
		return ErrConflict
	}
	rec.Version = expected + 1
	m.records[key] = rec
	return nil
}

func (m *MemoryStore) ListByClass(ctx context.Context, class string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.records {
		if rec.Class == class {
			out = append(out, rec)
		}
	}
	return out, nil
}
