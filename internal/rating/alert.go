package rating

import (
	"context"
	"encoding/json"
	"time"

	"Scoreboard/internal/utils"

	"github.com/redis/go-redis/v9"
)

const AlertChannel = "alerts:persistence"

// Alert describes a write that exhausted its retries.
type Alert struct {
	MatchID  string    `json:"matchId"`
	GameType string    `json:"gameType"`
	Stage    string    `json:"stage"`
	Error    string    `json:"error"`
	At       time.Time `json:"at"`
}

type Alerter interface {
	Alert(ctx context.Context, a Alert)
}

// logAlerter only logs.
type logAlerter struct{}

func (logAlerter) Alert(_ context.Context, a Alert) {
	utils.Log.Error("persistence failure", "match", a.MatchID, "stage", a.Stage, "err", a.Error)
}

// RedisAlerter logs and publishes every alert on AlertChannel.
type RedisAlerter struct {
	rdb *redis.Client
}

func NewRedisAlerter(rdb *redis.Client) *RedisAlerter {
	return &RedisAlerter{rdb: rdb}
}

func (r *RedisAlerter) Alert(ctx context.Context, a Alert) {
	logAlerter{}.Alert(ctx, a)
	data, _ := json.Marshal(a)
	if err := r.rdb.Publish(ctx, AlertChannel, data).Err(); err != nil {
		utils.Log.Warn("alert publish failed", "match", a.MatchID, "err", err)
	}
}
