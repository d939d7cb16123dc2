package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GoPolymarket/reqlog/internal/model"
)

// MemoryRequestStore keeps records in process. Used when no database is
// configured and in tests.
type MemoryRequestStore struct {
	mu      sync.RWMutex
	records map[string]*model.RequestRecord
	seq     map[string]uint64
	next    uint64
	now     func() time.Time
}

func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{
		records: make(map[string]*model.RequestRecord),
		seq:     make(map[string]uint64),
		now:     time.Now,
	}
}

func (s *MemoryRequestStore) Create(_ context.Context, rec *model.RequestRecord) error {
	if rec == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.UpdatedAt = rec.CreatedAt
	s.next++
	s.seq[rec.ID] = s.next
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryRequestStore) Save(_ context.Context, rec *model.RequestRecord) error {
	if rec == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.UpdatedAt = s.now()
	if _, ok := s.seq[rec.ID]; !ok {
		s.next++
		s.seq[rec.ID] = s.next
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryRequestStore) Get(_ context.Context, id string) (*model.RequestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryRequestStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	delete(s.seq, id)
	return nil
}

func (s *MemoryRequestStore) LatestUnfinished(_ context.Context) (*model.RequestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *model.RequestRecord
	for _, rec := range s.records {
		if rec.Finished {
			continue
		}
		if latest == nil || s.newer(rec, latest) {
			latest = rec
		}
	}
	return latest.Clone(), nil
}

func (s *MemoryRequestStore) List(_ context.Context, q model.RequestQuery) ([]*model.RequestRecord, error) {
	s.mu.RLock()
	matched := make([]*model.RequestRecord, 0, len(s.records))
	for _, rec := range s.records {
		if q.Matches(rec) {
			matched = append(matched, rec.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return s.newer(matched[i], matched[j])
	})
	s.mu.RUnlock()

	if limit := q.NormalizedLimit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryRequestStore) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-olderThan)
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, rec := range s.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.records, id)
			delete(s.seq, id)
			removed++
		}
	}
	return removed, nil
}

// newer orders by creation time, then insertion order. Callers hold s.mu.
func (s *MemoryRequestStore) newer(a, b *model.RequestRecord) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return s.seq[a.ID] > s.seq[b.ID]
}

func (s *MemoryRequestStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
