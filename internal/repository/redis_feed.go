package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/GoPolymarket/reqlog/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisRecentFeed mirrors finalized records into a capped Redis list,
// newest first.
type RedisRecentFeed struct {
	client  *RedisClient
	listKey string
	listMax int
}

func NewRedisRecentFeed(client *RedisClient, listKey string, listMax int) *RedisRecentFeed {
	if listKey == "" {
		listKey = "reqlog:recent"
	}
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisRecentFeed{
		client:  client,
		listKey: listKey,
		listMax: listMax,
	}
}

func (r *RedisRecentFeed) Push(ctx context.Context, rec *model.RequestRecord) error {
	if rec == nil {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := r.client.Client.TxPipeline()
	pipe.LPush(ctx, r.listKey, payload)
	pipe.LTrim(ctx, r.listKey, 0, int64(r.listMax-1))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisRecentFeed) Recent(ctx context.Context, limit int) ([]*model.RequestRecord, error) {
	if limit <= 0 || limit > r.listMax {
		limit = 100
	}
	items, err := r.client.Client.LRange(ctx, r.listKey, 0, int64(limit-1)).Result()
	if errors.Is(err, redis.Nil) {
		return []*model.RequestRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	results := make([]*model.RequestRecord, 0, len(items))
	for _, raw := range items {
		var rec model.RequestRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		results = append(results, &rec)
	}
	return results, nil
}
