package lock

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store for tests and dry runs.
type MemoryStore struct {
	guard sync.RWMutex

	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Read(_ context.Context, issueID string) (*Record, error) {
	if err := validateIssueID(issueID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[issueID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) Write(_ context.Context, record Record) error {
	if err := validateIssueID(record.Issue); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Issue] = record
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, issueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, issueID)
	return nil
}

func (s *MemoryStore) List(context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Issue < out[j].Issue })
	return out, nil
}

func (s *MemoryStore) Exclusive(context.Context) (UnlockFunc, error) {
	s.guard.Lock()
	return func() error {
		s.guard.Unlock()
		return nil
	}, nil
}

func (s *MemoryStore) Shared(context.Context) (UnlockFunc, error) {
	s.guard.RLock()
	return func() error {
		s.guard.RUnlock()
		return nil
	}, nil
}
