package rating

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Outbox holds match results between the moment a match ends and the moment
// its writes are committed, so a restart does not lose them.
type Outbox interface {
	Put(ctx context.Context, res MatchResult) error
	Delete(ctx context.Context, matchID string) error
	List(ctx context.Context) ([]MatchResult, error)
}

const outboxKey = "rating:outbox"

type redisOutbox struct {
	rdb *redis.Client
	key string
}

func NewRedisOutbox(rdb *redis.Client) Outbox {
	return &redisOutbox{rdb: rdb, key: outboxKey}
}

func (o *redisOutbox) Put(ctx context.Context, res MatchResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return o.rdb.HSet(ctx, o.key, res.MatchID, data).Err()
}

func (o *redisOutbox) Delete(ctx context.Context, matchID string) error {
	return o.rdb.HDel(ctx, o.key, matchID).Err()
}

func (o *redisOutbox) List(ctx context.Context) ([]MatchResult, error) {
	all, err := o.rdb.HGetAll(ctx, o.key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]MatchResult, 0, len(all))
	for id, raw := range all {
		var res MatchResult
		if err := json.Unmarshal([]byte(raw), &res); err != nil {
			return nil, fmt.Errorf("decode outbox entry %s: %w", id, err)
		}
		out = append(out, res)
	}
	sortByEnd(out)
	return out, nil
}

type memOutbox struct {
	mu      sync.Mutex
	entries map[string]MatchResult
}

func NewMemoryOutbox() Outbox {
	return &memOutbox{entries: make(map[string]MatchResult)}
}

func (o *memOutbox) Put(ctx context.Context, res MatchResult) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[res.MatchID] = res
	return nil
}

func (o *memOutbox) Delete(ctx context.Context, matchID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.entries, matchID)
	return nil
}

func (o *memOutbox) List(ctx context.Context) ([]MatchResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]MatchResult, 0, len(o.entries))
	for _, r := range o.entries {
		out = append(out, r)
	}
	sortByEnd(out)
	return out, nil
}

// replay in the order the matches ended
func sortByEnd(rs []MatchResult) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].EndedAt.Equal(rs[j].EndedAt) {
			return rs[i].EndedAt.Before(rs[j].EndedAt)
		}
		return rs[i].MatchID < rs[j].MatchID
	})
}
