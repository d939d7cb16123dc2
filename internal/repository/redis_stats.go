package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/GoPolymarket/reqlog/internal/model"
)

// statsTTL keeps a few weeks of daily hashes around.
const statsTTL = 35 * 24 * time.Hour

// RedisDailyStats keeps one hash per day: total plus a field per status class.
type RedisDailyStats struct {
	client *RedisClient
	prefix string
}

func NewRedisDailyStats(client *RedisClient) *RedisDailyStats {
	return &RedisDailyStats{
		client: client,
		prefix: "reqlog:stats",
	}
}

func (r *RedisDailyStats) Incr(ctx context.Context, rec *model.RequestRecord) error {
	if rec == nil {
		return nil
	}
	key := r.makeKey(model.StatsDay(rec.CreatedAt))
	pipe := r.client.Client.TxPipeline()
	pipe.HIncrBy(ctx, key, model.StatsTotal, 1)
	pipe.HIncrBy(ctx, key, model.StatusClass(rec.StatusCode), 1)
	pipe.Expire(ctx, key, statsTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisDailyStats) Daily(ctx context.Context, day string) (*model.DailyStats, error) {
	raw, err := r.client.Client.HGetAll(ctx, r.makeKey(day)).Result()
	if err != nil {
		return nil, err
	}
	out := &model.DailyStats{Date: day, Counts: make(map[string]int64, len(raw))}
	for field, val := range raw {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		out.Counts[field] = n
	}
	return out, nil
}

func (r *RedisDailyStats) makeKey(day string) string {
	return fmt.Sprintf("%s:%s", r.prefix, day)
}
