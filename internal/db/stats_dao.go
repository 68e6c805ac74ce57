package db

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// HashClient is the part of *redis.Client the stats store uses.
type HashClient interface {
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// StatsDao keeps one hash per API mapping outcome -> call count.
type StatsDao struct {
	client HashClient
	prefix string
}

func NewStatsDao(client HashClient, prefix string) *StatsDao {
	return &StatsDao{client: client, prefix: prefix}
}

// Incr bumps the counter of outcome for api and returns the new value.
func (d *StatsDao) Incr(ctx context.Context, api, outcome string) (int64, error) {
	return d.client.HIncrBy(ctx, KeyAPIStats(d.prefix, api), outcome, 1).Result()
}

// Load returns all counters of api. An API never called yields an empty
// map.
func (d *StatsDao) Load(ctx context.Context, api string) (map[string]int64, error) {
	raw, err := d.client.HGetAll(ctx, KeyAPIStats(d.prefix, api)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}
