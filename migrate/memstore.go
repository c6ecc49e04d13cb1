package migrate

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and ephemeral runs. Safe for
// concurrent use.
type MemStore struct {
	mu      sync.Mutex
	records map[string]Record
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory ledger.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]Record)}
}

func (s *MemStore) Initialize(context.Context) error { return nil }

func (s *MemStore) AppliedMigrations(context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *MemStore) RecordMigration(_ context.Context, m *Migration, took time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[m.Version] = Record{
		Version:    m.Version,
		Name:       m.Name,
		Checksum:   m.Checksum,
		Status:     StatusCompleted,
		AppliedAt:  time.Now(),
		DurationMS: took.Milliseconds(),
	}
	return nil
}

func (s *MemStore) RecordRollback(_ context.Context, m *Migration, took time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[m.Version]
	if !ok {
		rec = Record{Version: m.Version, Name: m.Name, Checksum: m.Checksum}
	}
	rec.Status = StatusRolledBack
	rec.DurationMS = took.Milliseconds()
	rec.Error = ""
	s.records[m.Version] = rec
	return nil
}

func (s *MemStore) UpdateStatus(_ context.Context, version string, status Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[version]
	rec.Version = version
	rec.Status = status
	rec.Error = errMsg
	s.records[version] = rec
	return nil
}

func (s *MemStore) Cleanup(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for version, rec := range s.records {
		if rec.Status == StatusFailed || rec.Status == StatusRunning {
			delete(s.records, version)
		}
	}
	return nil
}
