package matchmaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRepo struct {
	rdb *redis.Client
}

func NewRedisRepo(rdb *redis.Client) Repo {
	return &redisRepo{rdb: rdb}
}

// keys:
//
//	set: mm:pool:{gameType}                 -> Set(userID,...)
//	kv : mm:player:{userID}                 -> gameType of the pool holding the player
//	kv : mm:match:{matchID}                 -> pairing JSON
//	kv : mm:playerMatch:{gameType}:{userID} -> matchID
func poolKey(gameType string) string {
	return fmt.Sprintf("mm:pool:%s", gameType)
}

func playerKey(userID string) string {
	return fmt.Sprintf("mm:player:%s", userID)
}

func playerMatchKey(gameType, userID string) string {
	return fmt.Sprintf("mm:playerMatch:%s:%s", gameType, userID)
}

func (r *redisRepo) Enqueue(ctx context.Context, gameType, userID string, ttlSeconds int) error {
	p := r.rdb.TxPipeline()
	p.SAdd(ctx, poolKey(gameType), userID)
	p.Set(ctx, playerKey(userID), gameType, time.Duration(ttlSeconds)*time.Second)
	_, err := p.Exec(ctx)
	return err
}

// KEYS[1] = pool key
var popPairScript = redis.NewScript(`
if redis.call("SCARD", KEYS[1]) < 2 then
    return {}
end
return redis.call("SPOP", KEYS[1], 2)
`)

func (r *redisRepo) PopPair(ctx context.Context, gameType string) ([]string, error) {
	key := poolKey(gameType)
	res, err := popPairScript.Run(ctx, r.rdb, []string{key}).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		// no scripting: SPOP is atomic, put a lone player back
		res, err = r.rdb.SPopN(ctx, key, 2).Result()
		if err != nil {
			return nil, err
		}
		if len(res) == 1 {
			_ = r.rdb.SAdd(ctx, key, res[0]).Err()
			return nil, nil
		}
	}
	if len(res) < 2 {
		return nil, nil
	}

	p := r.rdb.Pipeline()
	for _, u := range res {
		p.Del(ctx, playerKey(u))
	}
	_, _ = p.Exec(ctx)
	return res, nil
}

// KEYS[1] = player key, KEYS[2] = pool key, ARGV[1] = userID
var removeScript = redis.NewScript(`
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if redis.call("SCARD", KEYS[2]) == 0 then
    redis.call("DEL", KEYS[2])
end
return 1
`)

func (r *redisRepo) Remove(ctx context.Context, userID string) error {
	gameType, err := r.rdb.Get(ctx, playerKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	poolK := poolKey(gameType)
	playerK := playerKey(userID)
	if err := removeScript.Run(ctx, r.rdb, []string{playerK, poolK}, userID).Err(); err != nil {
		p := r.rdb.Pipeline()
		p.SRem(ctx, poolK, userID)
		p.Del(ctx, playerK)
		if _, execErr := p.Exec(ctx); execErr != nil {
			return execErr
		}
		if n, _ := r.rdb.SCard(ctx, poolK).Result(); n == 0 {
			_ = r.rdb.Del(ctx, poolK).Err()
		}
	}
	return nil
}

func (r *redisRepo) Count(ctx context.Context, gameType string) (int64, error) {
	return r.rdb.SCard(ctx, poolKey(gameType)).Result()
}

func (r *redisRepo) SavePairing(ctx context.Context, pr *Pairing, ttlSeconds int) error {
	data, _ := json.Marshal(pr)
	ttl := time.Duration(ttlSeconds) * time.Second
	p := r.rdb.Pipeline()
	p.Set(ctx, fmt.Sprintf("mm:match:%s", pr.MatchID), data, ttl)
	for _, u := range pr.Players {
		p.Set(ctx, playerMatchKey(pr.GameType, u), pr.MatchID, ttl)
	}
	_, err := p.Exec(ctx)
	return err
}

func (r *redisRepo) PlayerMatch(ctx context.Context, gameType, userID string) (string, error) {
	val, err := r.rdb.Get(ctx, playerMatchKey(gameType, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}
