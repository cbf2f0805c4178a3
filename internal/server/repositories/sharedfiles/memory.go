package sharedfiles

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/zkshare/internal/common"
)

// MemoryRepository keeps records in a map. Every method holds the lock for
// its whole check-and-write, which gives IncrementDownload the same atomicity
// as the conditional UPDATE in Postgres.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*Record)}
}

func (m *MemoryRepository) Insert(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.FileID]; ok {
		return common.ErrorAlreadyExists
	}
	for _, r := range m.records {
		if r.StorageKey == rec.StorageKey {
			return common.ErrorAlreadyExists
		}
	}
	m.records[rec.FileID] = rec.clone()
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.clone(), nil
}

func (m *MemoryRepository) Update(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[rec.FileID]
	if !ok {
		return common.ErrorNotFound
	}
	r.ExpiresAt = rec.ExpiresAt
	r.IsDeleted = r.IsDeleted || rec.IsDeleted
	return nil
}

func (m *MemoryRepository) MarkDeleted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return common.ErrorNotFound
	}
	r.IsDeleted = true
	return nil
}

func (m *MemoryRepository) ExtendExpiry(_ context.Context, id string, expiresAt time.Time) (*Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok || r.IsDeleted {
		return nil, false, nil
	}
	if expiresAt.After(r.ExpiresAt) {
		r.ExpiresAt = expiresAt
	}
	return r.clone(), true, nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return common.ErrorNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryRepository) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[id]
	return ok, nil
}

func (m *MemoryRepository) IncrementDownload(_ context.Context, id string, now time.Time) (*Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok || !r.IsAvailable(now) {
		return nil, false, nil
	}
	r.DownloadCount++
	return r.clone(), true, nil
}

func (m *MemoryRepository) filter(keep func(*Record) bool) []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out
}

func (m *MemoryRepository) FindExpired(_ context.Context, now time.Time) ([]*Record, error) {
	return m.filter(func(r *Record) bool { return r.IsExpired(now) }), nil
}

func (m *MemoryRepository) FindExhausted(_ context.Context) ([]*Record, error) {
	return m.filter(func(r *Record) bool { return r.IsExhausted() }), nil
}

func (m *MemoryRepository) DeleteMany(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, id := range ids {
		if _, ok := m.records[id]; ok {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) DeleteStale(_ context.Context, now time.Time) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Record
	for id, r := range m.records {
		if r.isStale(now) {
			out = append(out, r)
			delete(m.records, id)
		}
	}
	return out, nil
}

func (m *MemoryRepository) Ping(context.Context) error { return nil }
