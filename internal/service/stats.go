package service

import (
	"context"
	"sync"

	"github.com/GoPolymarket/reqlog/internal/model"
)

type StatsStore interface {
	Incr(ctx context.Context, rec *model.RequestRecord) error
	Daily(ctx context.Context, day string) (*model.DailyStats, error)
}

// MemoryDailyStats is the in-process StatsStore used without Redis.
type MemoryDailyStats struct {
	mu   sync.Mutex
	days map[string]map[string]int64
}

func NewMemoryDailyStats() *MemoryDailyStats {
	return &MemoryDailyStats{days: make(map[string]map[string]int64)}
}

func (m *MemoryDailyStats) Incr(_ context.Context, rec *model.RequestRecord) error {
	if rec == nil {
		return nil
	}
	day := model.StatsDay(rec.CreatedAt)
	m.mu.Lock()
	defer m.mu.Unlock()
	counts, ok := m.days[day]
	if !ok {
		counts = make(map[string]int64)
		m.days[day] = counts
	}
	counts[model.StatsTotal]++
	counts[model.StatusClass(rec.StatusCode)]++
	return nil
}

func (m *MemoryDailyStats) Daily(_ context.Context, day string) (*model.DailyStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &model.DailyStats{Date: day, Counts: make(map[string]int64)}
	for k, v := range m.days[day] {
		out.Counts[k] = v
	}
	return out, nil
}
