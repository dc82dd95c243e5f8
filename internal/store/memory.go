package store

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/medicalexcom/avidiatech-match/internal/model"
)

// MemoryStore keeps the index in process. Used by tests and one-off runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[naturalKey]model.IndexEntry
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		entries: make(map[naturalKey]model.IndexEntry),
		now:     utcNow,
	}
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) LookupByNDC(_ context.Context, tenantID, supplierKey, ndcNorm string) (*model.IndexEntry, error) {
	if ndcNorm == "" {
		return nil, nil
	}
	return m.latest(func(e *model.IndexEntry) bool {
		return e.TenantID == tenantID && e.SupplierKey == supplierKey && e.NDCItemCodeNorm == ndcNorm
	}), nil
}

func (m *MemoryStore) LookupBySKU(_ context.Context, tenantID, supplierKey, skuNorm string) (*model.IndexEntry, error) {
	if skuNorm == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[naturalKey{tenantID, supplierKey, skuNorm}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *MemoryStore) latest(match func(*model.IndexEntry) bool) *model.IndexEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *model.IndexEntry
	for _, e := range m.entries {
		if !match(&e) {
			continue
		}
		if best == nil || newer(&e, best) {
			cp := e
			best = &cp
		}
	}
	return best
}

// newer orders like the SQL backends: last_seen_at, updated_at, then id, all
// descending.
func newer(a, b *model.IndexEntry) bool {
	if !a.LastSeenAt.Equal(b.LastSeenAt) {
		return a.LastSeenAt.After(b.LastSeenAt)
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}

func (m *MemoryStore) UpsertEntry(_ context.Context, e *model.IndexEntry) error {
	if err := prepare(e, m.now()); err != nil {
		return eris.Wrap(err, "memory: upsert entry")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(*e)
	return nil
}

func (m *MemoryStore) ImportEntries(_ context.Context, entries []model.IndexEntry) (int64, error) {
	batch, err := prepareBatch(entries, m.now())
	if err != nil {
		return 0, eris.Wrap(err, "memory: import entries")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range batch {
		m.put(e)
	}
	return int64(len(batch)), nil
}

// put keeps the original id and creation time of an existing row.
func (m *MemoryStore) put(e model.IndexEntry) {
	k := keyOf(&e)
	if old, ok := m.entries[k]; ok {
		e.ID = old.ID
		e.CreatedAt = old.CreatedAt
	}
	m.entries[k] = e
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
