package service

import (
	"context"
	"sync"

	"github.com/GoPolymarket/reqlog/internal/model"
)

// MemoryRecentFeed is a fixed-size ring of the latest finalized records. It
// stands in for the Redis feed when Redis is not configured.
type MemoryRecentFeed struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.RequestRecord
	nextIndex int
}

func NewMemoryRecentFeed(maxSize int) *MemoryRecentFeed {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryRecentFeed{
		maxSize: maxSize,
		records: make([]*model.RequestRecord, 0, maxSize),
	}
}

func (b *MemoryRecentFeed) Push(_ context.Context, rec *model.RequestRecord) error {
	if rec == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	entry := rec.Clone()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, entry)
		return nil
	}
	b.records[b.nextIndex] = entry
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
	return nil
}

// Recent returns up to limit records, newest first.
func (b *MemoryRecentFeed) Recent(_ context.Context, limit int) ([]*model.RequestRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	total := len(b.records)
	results := make([]*model.RequestRecord, 0, min(limit, total))
	for i := 0; i < total; i++ {
		idx := (b.nextIndex + total - 1 - i) % total
		entry := b.records[idx]
		if entry == nil {
			continue
		}
		results = append(results, entry.Clone())
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
