package economy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const robLogPrefix = "dxbux:roblog:"

// redisHistory keeps the robbery log in Redis with TTL expiry instead of
// prune-at-read. Useful when several processes share one economy.
type redisHistory struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisHistory(client *redis.Client, retaliationWindow time.Duration) HistoryStore {
	return &redisHistory{client: client, ttl: retaliationWindow}
}

func (h *redisHistory) Record(ctx context.Context, ev RobberyEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return h.client.Set(ctx, robLogPrefix+ev.Robber, data, h.ttl).Err()
}

func (h *redisHistory) RecentByVictim(ctx context.Context, victim string, since time.Time) ([]RobberyEvent, error) {
	var out []RobberyEvent
	iter := h.client.Scan(ctx, 0, robLogPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := h.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var ev RobberyEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		if ev.Victim == victim && !ev.At.Before(since) {
			out = append(out, ev)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
